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

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/config"
	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/status"
)

// ReloadFunc is called after a successful reload with the previous and the
// new configuration.
type ReloadFunc func(old, cur *Config)

// Store holds the current configuration and swaps it when the files on
// disk change. Readers always see a complete, validated Config.
type Store struct {
	manager *config.Manager
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []ReloadFunc
}

// NewStore creates a store reading the layered files described by opts.
func NewStore(opts config.Options) *Store {
	m := config.NewManager(opts)
	for k, v := range Defaults() {
		m.SetDefault(k, v)
	}
	return &Store{manager: m}
}

// Load reads the configuration for the first time.
func (s *Store) Load() (*Config, error) {
	cfg, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}

func (s *Store) read() (*Config, error) {
	if err := s.manager.Load(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := s.manager.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Current returns the configuration in effect, or nil before Load.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload rereads the files. A failed reload keeps the previous
// configuration in effect.
func (s *Store) Reload() error {
	cfg, err := s.read()
	if err != nil {
		logger.GetLogger().Warn("configuration reload failed, keeping previous configuration", zap.Error(err))
		return err
	}
	old := s.current.Swap(cfg)
	logger.GetLogger().Info("configuration reloaded",
		zap.Strings("check_files", cfg.ServiceStatus.CheckFiles))

	s.mu.Lock()
	listeners := append([]ReloadFunc(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(old, cfg)
	}
	return nil
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn ReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Files lists the configuration layer files the store reads.
func (s *Store) Files() []string {
	return s.manager.Files()
}

// Watch reloads the store whenever a layer file changes, until ctx is done.
func (s *Store) Watch(ctx context.Context, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(s.Files(), func() { _ = s.Reload() }, opts...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Sources returns the inline checks followed by the check files of the
// current configuration. It is read on every call so reloads take effect
// on the next run.
func (s *Store) Sources() []status.Source {
	cfg := s.Current()
	if cfg == nil {
		return nil
	}
	sources := []status.Source{status.InlineRaw(cfg.ServiceStatus.Checks)}
	if len(cfg.ServiceStatus.CheckFiles) > 0 {
		sources = append(sources, status.References(cfg.ServiceStatus.CheckFiles...))
	}
	return sources
}

// Resolver resolves check file references against the configured check
// directory, read at resolution time.
func (s *Store) Resolver() status.Resolver {
	return resolverFunc(func(ctx context.Context, ref string) ([]status.CheckSpec, error) {
		dir := "."
		if cfg := s.Current(); cfg != nil && cfg.ServiceStatus.CheckDir != "" {
			dir = cfg.ServiceStatus.CheckDir
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.manager.Options().WorkDir, dir)
		}
		return status.FileResolver{BaseDir: dir}.Resolve(ctx, ref)
	})
}

type resolverFunc func(ctx context.Context, ref string) ([]status.CheckSpec, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) ([]status.CheckSpec, error) {
	return f(ctx, ref)
}
