// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package redis implements the task queue Broker and Backend on Redis.
// Tasks travel through a list (LPUSH / BRPOP); records are JSON strings with
// a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

// Config holds the Redis connection and key layout settings.
type Config struct {
	Addr      string        `mapstructure:"addr" json:"addr" yaml:"addr" validate:"required"`
	Username  string        `mapstructure:"username" json:"username" yaml:"username"`
	Password  string        `mapstructure:"password" json:"password" yaml:"password"`
	DB        int           `mapstructure:"db" json:"db" yaml:"db" validate:"gte=0"`
	KeyPrefix string        `mapstructure:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
	Queue     string        `mapstructure:"queue" json:"queue" yaml:"queue"`
	ResultTTL time.Duration `mapstructure:"result_ttl" json:"result_ttl" yaml:"result_ttl"`
	// PollTimeout bounds each BRPOP so cancellation is noticed.
	PollTimeout time.Duration `mapstructure:"poll_timeout" json:"poll_timeout" yaml:"poll_timeout"`
}

// DefaultConfig returns a configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		KeyPrefix:   "swit-status:",
		Queue:       "checks",
		ResultTTL:   24 * time.Hour,
		PollTimeout: time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.Queue == "" {
		c.Queue = d.Queue
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = d.ResultTTL
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
}

// NewClient opens a client for cfg and verifies it with PING.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	cfg.applyDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Store is both a Broker and a Backend sharing one client.
type Store struct {
	client *redis.Client
	cfg    Config
	owned  bool
	closed atomic.Bool
}

// New wraps an existing client. The client is not closed by Close.
func New(client *redis.Client, cfg Config) *Store {
	cfg.applyDefaults()
	return &Store{client: client, cfg: cfg}
}

// Open connects to Redis and returns a Store that owns the client.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(client, cfg)
	s.owned = true
	return s, nil
}

func (s *Store) queueKey() string { return s.cfg.KeyPrefix + "queue:" + s.cfg.Queue }

func (s *Store) recordKey(id string) string { return s.cfg.KeyPrefix + "task:" + id }

func (s *Store) Publish(ctx context.Context, task *taskqueue.Task) error {
	if s.closed.Load() {
		return taskqueue.ErrClosed
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := s.client.LPush(ctx, s.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to push task: %w", err)
	}
	return nil
}

func (s *Store) Consume(ctx context.Context, fn func(ctx context.Context, task *taskqueue.Task) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed.Load() {
			return taskqueue.ErrClosed
		}

		res, err := s.client.BRPop(ctx, s.cfg.PollTimeout, s.queueKey()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to pop task: %w", err)
		}
		// BRPOP answers [key, value].
		if len(res) != 2 {
			continue
		}

		var task taskqueue.Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			continue
		}
		_ = fn(ctx, &task)
	}
}

func (s *Store) Store(ctx context.Context, rec taskqueue.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(rec.ID), data, s.cfg.ResultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (taskqueue.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return taskqueue.Record{}, taskqueue.ErrNotFound
	}
	if err != nil {
		return taskqueue.Record{}, fmt.Errorf("failed to load record: %w", err)
	}
	var rec taskqueue.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return taskqueue.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// Close marks the store closed. A Store built by Open also closes its client.
// Broker and backend roles may both call Close; only the first has effect.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}
