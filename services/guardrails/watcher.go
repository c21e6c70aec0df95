// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 250 * time.Millisecond

// PolicyWatcher reloads a PolicyGuard when its policy file changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file through a rename are still observed.
// A policy that fails to parse or validate is logged and ignored; the guard
// keeps enforcing the last good version.
type PolicyWatcher struct {
	path     string
	guard    *PolicyGuard
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(p *Policy, err error)
}

// NewPolicyWatcher starts watching the directory that contains path.
func NewPolicyWatcher(path string, guard *PolicyGuard, logger *slog.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &PolicyWatcher{
		path:     abs,
		guard:    guard,
		logger:   logger,
		watcher:  w,
		debounce: defaultReloadDebounce,
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Guard policy watcher error", "error", err)
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(w.path)
	if err == nil {
		err = w.guard.Reload(policy)
	}
	if err != nil {
		w.logger.Error("Guard policy reload rejected, keeping previous policy",
			"path", w.path, "error", err)
	} else {
		w.logger.Info("Guard policy reloaded",
			"path", w.path, "fingerprint", policy.Fingerprint())
	}
	if w.OnReload != nil {
		w.OnReload(policy, err)
	}
}
