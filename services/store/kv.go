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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// errKeyNotFound is returned by drivers for missing keys.
var errKeyNotFound = errors.New("key not found")

type kvPair struct {
	key   string
	value []byte
}

// kv is the driver contract. ttl 0 means no expiry.
type kv interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// putIfAbsent writes only when key is missing and reports whether it did.
	putIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	del(ctx context.Context, keys ...string) error
	scan(ctx context.Context, prefix string) ([]kvPair, error)
	close() error
}

// Key layout.
func userKey(id string) string          { return "user:" + id }
func usernameKey(name string) string    { return "username:" + strings.ToLower(name) }
func emailKey(email string) string      { return "email:" + strings.ToLower(email) }
func sessionKey(uid, sid string) string { return "session:" + uid + ":" + sid }
func sessionPrefix(uid string) string   { return "session:" + uid + ":" }
func messagePrefix(sid string) string   { return "message:" + sid + ":" }
func tokenKey(token string) string      { return "token:" + token }

func messageKey(sid string, seq int64, id string) string {
	return fmt.Sprintf("%s%020d:%s", messagePrefix(sid), seq, id)
}

// Options tunes a Store.
type Options struct {
	// TokenTTL bounds bearer token lifetime. Default 24h.
	TokenTTL time.Duration
	// BcryptCost for password hashes. 0 uses bcrypt.DefaultCost.
	BcryptCost int
	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// DefaultTokenTTL is how long an issued bearer token stays valid.
const DefaultTokenTTL = 24 * time.Hour

type kvStore struct {
	db   kv
	opts Options
	seq  atomic.Int64
}

func newKVStore(db kv, opts Options) *kvStore {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &kvStore{db: db, opts: opts}
	s.seq.Store(opts.Now().UnixNano())
	return s
}

// nextSeq is strictly increasing across the process and never behind the
// wall clock, so message keys sort in write order.
func (s *kvStore) nextSeq() int64 {
	now := s.opts.Now().UnixNano()
	for {
		cur := s.seq.Load()
		next := cur + 1
		if now > next {
			next = now
		}
		if s.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (s *kvStore) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.put(ctx, key, data, ttl)
}

func (s *kvStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.db.get(ctx, key)
	if errors.Is(err, errKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) RegisterUser(ctx context.Context, username, password, email string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, fmt.Errorf("username and password are required")
	}
	now := s.opts.Now().UTC()
	email = strings.TrimSpace(email)
	if email == "" {
		email = placeholderEmail(username, now)
	}
	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	ok, err := s.db.putIfAbsent(ctx, usernameKey(username), []byte(u.ID))
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrUserExists
	}
	ok, err = s.db.putIfAbsent(ctx, emailKey(email), []byte(u.ID))
	if err != nil || !ok {
		_ = s.db.del(ctx, usernameKey(username))
		if err != nil {
			return User{}, err
		}
		return User{}, ErrUserExists
	}
	if err := s.putJSON(ctx, userKey(u.ID), u, 0); err != nil {
		_ = s.db.del(ctx, usernameKey(username), emailKey(email))
		return User{}, err
	}
	return u, nil
}

func (s *kvStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	id, err := s.db.get(ctx, usernameKey(strings.TrimSpace(username)))
	if errors.Is(err, errKeyNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	u, err := s.GetUser(ctx, string(id))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	u.LastLogin = s.opts.Now().UTC()
	if err := s.putJSON(ctx, userKey(u.ID), u, 0); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *kvStore) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	if err := s.getJSON(ctx, userKey(userID), &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// DefaultSessionName is used when CreateSession is given an empty name.
const DefaultSessionName = "New conversation"

func (s *kvStore) CreateSession(ctx context.Context, userID, name string) (Session, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return Session{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}
	now := s.opts.Now().UTC()
	sess := Session{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: now, LastActivity: now}
	if err := s.putJSON(ctx, sessionKey(userID, sess.ID), sess, 0); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *kvStore) GetSession(ctx context.Context, userID, sessionID string) (Session, error) {
	var sess Session
	if err := s.getJSON(ctx, sessionKey(userID, sessionID), &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *kvStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	pairs, err := s.db.scan(ctx, sessionPrefix(userID))
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(pairs))
	for _, p := range pairs {
		var sess Session
		if err := json.Unmarshal(p.value, &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", p.key, err)
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *kvStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}
	pairs, err := s.db.scan(ctx, messagePrefix(sessionID))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(pairs)+1)
	for _, p := range pairs {
		keys = append(keys, p.key)
	}
	keys = append(keys, sessionKey(userID, sessionID))
	return s.db.del(ctx, keys...)
}

func (s *kvStore) SaveMessage(ctx context.Context, userID, sessionID, role, content string, metadata map[string]any) (Message, error) {
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return Message{}, err
	}
	now := s.opts.Now().UTC()
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		Seq:       s.nextSeq(),
	}
	if err := s.putJSON(ctx, messageKey(sessionID, msg.Seq, msg.ID), msg, 0); err != nil {
		return Message{}, err
	}
	sess.LastActivity = now
	if err := s.putJSON(ctx, sessionKey(userID, sessionID), sess, 0); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *kvStore) GetHistory(ctx context.Context, userID, sessionID string, limit int) ([]Message, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	pairs, err := s.db.scan(ctx, messagePrefix(sessionID))
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(pairs))
	for _, p := range pairs {
		var m Message
		if err := json.Unmarshal(p.value, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", p.key, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *kvStore) IssueToken(ctx context.Context, userID string) (string, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return "", err
	}
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if err := s.db.put(ctx, tokenKey(token), []byte(userID), s.opts.TokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

func (s *kvStore) ResolveToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	id, err := s.db.get(ctx, tokenKey(token))
	if errors.Is(err, errKeyNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, string(id))
}

func (s *kvStore) RevokeToken(ctx context.Context, token string) error {
	return s.db.del(ctx, tokenKey(token))
}

func (s *kvStore) Close() error {
	return s.db.close()
}

var _ Store = (*kvStore)(nil)
