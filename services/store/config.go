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
	"log/slog"
	"strings"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

// Config selects and configures a driver.
type Config struct {
	Driver string `yaml:"driver"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`

	BadgerPath string `yaml:"badger_path"`
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config, opts Options, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(opts), nil
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis driver requires redis_addr")
		}
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts)
	case DriverBadger:
		return OpenBadgerStore(BadgerConfig{Path: cfg.BadgerPath, Logger: logger}, opts)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
