// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)}
}

// driverFactories returns every driver runnable in this environment.
// Redis runs only when ASSISTANT_TEST_REDIS_ADDR is set.
func driverFactories(t *testing.T) map[string]func(opts Options) Store {
	t.Helper()
	factories := map[string]func(opts Options) Store{
		DriverMemory: func(opts Options) Store { return NewMemoryStore(opts) },
		DriverBadger: func(opts Options) Store {
			s, err := OpenBadgerStore(BadgerConfig{InMemory: true}, opts)
			require.NoError(t, err)
			return s
		},
	}
	if addr := os.Getenv("ASSISTANT_TEST_REDIS_ADDR"); addr != "" {
		factories[DriverRedis] = func(opts Options) Store {
			s, err := DialRedis(context.Background(), addr, "", 15, opts)
			require.NoError(t, err)
			return s
		}
	}
	return factories
}

func forEachDriver(t *testing.T, fn func(t *testing.T, s Store, clock *testClock)) {
	for name, factory := range driverFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			s := factory(Options{BcryptCost: bcrypt.MinCost, Now: clock.Now})
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s, clock)
		})
	}
}

// uniqueName keeps runs against a shared redis from colliding.
func uniqueName(t *testing.T, base string) string {
	return fmt.Sprintf("%s%d", base, time.Now().UnixNano()%1_000_000_000)
}

// =============================================================================
// Users
// =============================================================================

func TestStore_RegisterAndAuthenticate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, clock *testClock) {
		ctx := context.Background()
		name := uniqueName(t, "alice")

		u, err := s.RegisterUser(ctx, name, "correct horse", name+"@example.com")
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.NotEqual(t, "correct horse", u.PasswordHash)
		assert.True(t, CheckPassword(u.PasswordHash, "correct horse"))

		clock.Advance(time.Minute)
		got, err := s.Authenticate(ctx, name, "correct horse")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.True(t, clock.Now().Equal(got.LastLogin))

		_, err = s.Authenticate(ctx, name, "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = s.Authenticate(ctx, uniqueName(t, "nobody"), "x")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestStore_UniqueUsernameAndEmail(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		ctx := context.Background()
		name := uniqueName(t, "bob")
		email := name + "@example.com"

		_, err := s.RegisterUser(ctx, name, "password1", email)
		require.NoError(t, err)

		_, err = s.RegisterUser(ctx, strings.ToUpper(name), "password1", "other-"+email)
		assert.ErrorIs(t, err, ErrUserExists, "usernames are case-insensitive")

		other := uniqueName(t, "carol")
		_, err = s.RegisterUser(ctx, other, "password1", email)
		assert.ErrorIs(t, err, ErrUserExists)

		// The failed email claim must release the username.
		_, err = s.RegisterUser(ctx, other, "password1", other+"@example.com")
		assert.NoError(t, err)
	})
}

func TestStore_EmptyEmailGetsPlaceholder(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, clock *testClock) {
		ctx := context.Background()
		a, err := s.RegisterUser(ctx, uniqueName(t, "dave"), "password1", "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		b, err := s.RegisterUser(ctx, uniqueName(t, "erin"), "password1", "  ")
		require.NoError(t, err, "two users without email must not collide")

		assert.True(t, strings.HasPrefix(a.Email, "__no_email__"+a.Username+"_"))
		assert.True(t, strings.HasSuffix(a.Email, "@local"))
		assert.NotEqual(t, a.Email, b.Email)
	})
}

func TestStore_RegisterValidation(t *testing.T) {
	s := NewMemoryStore(Options{BcryptCost: bcrypt.MinCost})
	_, err := s.RegisterUser(context.Background(), "  ", "password1", "")
	assert.Error(t, err)
	_, err = s.RegisterUser(context.Background(), "frank", "", "")
	assert.Error(t, err)
}

func TestStore_GetUser(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		_, err := s.GetUser(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// =============================================================================
// Sessions and messages
// =============================================================================

func TestStore_SessionsOrderedByActivity(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, clock *testClock) {
		ctx := context.Background()
		u, err := s.RegisterUser(ctx, uniqueName(t, "gina"), "password1", "")
		require.NoError(t, err)

		first, err := s.CreateSession(ctx, u.ID, "Benefits")
		require.NoError(t, err)
		clock.Advance(time.Minute)
		second, err := s.CreateSession(ctx, u.ID, "")
		require.NoError(t, err)
		assert.Equal(t, DefaultSessionName, second.Name)

		list, err := s.ListSessions(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)

		clock.Advance(time.Minute)
		_, err = s.SaveMessage(ctx, u.ID, first.ID, "user", "How do I enroll?", nil)
		require.NoError(t, err)

		list, err = s.ListSessions(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, list[0].ID, "saving a message bumps last activity")
	})
}

func TestStore_HistoryChronological(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		ctx := context.Background()
		u, err := s.RegisterUser(ctx, uniqueName(t, "hank"), "password1", "")
		require.NoError(t, err)
		sess, err := s.CreateSession(ctx, u.ID, "Onboarding")
		require.NoError(t, err)

		// The clock is frozen; order must still follow write order.
		for i := 0; i < 5; i++ {
			_, err := s.SaveMessage(ctx, u.ID, sess.ID, "user", fmt.Sprintf("m%d", i), map[string]any{"route": "admin_policy"})
			require.NoError(t, err)
		}

		history, err := s.GetHistory(ctx, u.ID, sess.ID, 0)
		require.NoError(t, err)
		require.Len(t, history, 5)
		for i, m := range history {
			assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
		}
		assert.Equal(t, "admin_policy", history[0].Metadata["route"])

		tail, err := s.GetHistory(ctx, u.ID, sess.ID, 2)
		require.NoError(t, err)
		require.Len(t, tail, 2)
		assert.Equal(t, "m3", tail[0].Content)
		assert.Equal(t, "m4", tail[1].Content)
	})
}

func TestStore_SessionOwnership(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		ctx := context.Background()
		owner, err := s.RegisterUser(ctx, uniqueName(t, "ivy"), "password1", "")
		require.NoError(t, err)
		intruder, err := s.RegisterUser(ctx, uniqueName(t, "jack"), "password1", "")
		require.NoError(t, err)
		sess, err := s.CreateSession(ctx, owner.ID, "Private")
		require.NoError(t, err)

		_, err = s.GetHistory(ctx, intruder.ID, sess.ID, 0)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.SaveMessage(ctx, intruder.ID, sess.ID, "user", "hi", nil)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteSession(ctx, intruder.ID, sess.ID), ErrNotFound)

		_, err = s.CreateSession(ctx, "no-such-user", "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_DeleteSessionRemovesMessages(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		ctx := context.Background()
		u, err := s.RegisterUser(ctx, uniqueName(t, "kim"), "password1", "")
		require.NoError(t, err)
		sess, err := s.CreateSession(ctx, u.ID, "Temp")
		require.NoError(t, err)
		_, err = s.SaveMessage(ctx, u.ID, sess.ID, "user", "hello", nil)
		require.NoError(t, err)

		require.NoError(t, s.DeleteSession(ctx, u.ID, sess.ID))

		_, err = s.GetSession(ctx, u.ID, sess.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		list, err := s.ListSessions(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		kvs := s.(*kvStore)
		pairs, err := kvs.db.scan(ctx, messagePrefix(sess.ID))
		require.NoError(t, err)
		assert.Empty(t, pairs, "messages must be deleted with their session")
	})
}

// =============================================================================
// Tokens
// =============================================================================

func TestStore_Tokens(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store, _ *testClock) {
		ctx := context.Background()
		u, err := s.RegisterUser(ctx, uniqueName(t, "lee"), "password1", "")
		require.NoError(t, err)

		token, err := s.IssueToken(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, token, 64)

		got, err := s.ResolveToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		require.NoError(t, s.RevokeToken(ctx, token))
		_, err = s.ResolveToken(ctx, token)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.ResolveToken(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.IssueToken(ctx, "no-such-user")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore_TokenExpiry(t *testing.T) {
	clock := newTestClock()
	s := NewMemoryStore(Options{BcryptCost: bcrypt.MinCost, Now: clock.Now, TokenTTL: time.Hour})
	ctx := context.Background()
	u, err := s.RegisterUser(ctx, "mona", "password1", "")
	require.NoError(t, err)
	token, err := s.IssueToken(ctx, u.ID)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = s.ResolveToken(ctx, token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.ResolveToken(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Helpers and factory
// =============================================================================

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "s3cret-Pass"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret-pass"))
}

func TestPlaceholderEmail(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.Equal(t, "__no_email__nina_1700000000@local", placeholderEmail("nina", ts))
}

func TestNextSeqMonotonic(t *testing.T) {
	clock := newTestClock()
	s := newKVStore(&memoryKV{entries: map[string]memoryEntry{}, now: clock.Now}, Options{Now: clock.Now})
	prev := s.nextSeq()
	for i := 0; i < 100; i++ {
		next := s.nextSeq()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{}, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), Config{Driver: "badger", BadgerPath: t.TempDir()}, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), Config{Driver: "redis"}, Options{}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "sqlite"}, Options{}, nil)
	assert.Error(t, err)
}
