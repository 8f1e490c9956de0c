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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type testConfig struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Queue struct {
		Broker      string `mapstructure:"broker"`
		Concurrency int    `mapstructure:"concurrency"`
		PollTimeout int    `mapstructure:"poll_timeout"`
	} `mapstructure:"queue"`
}

func TestHierarchicalPrecedence(t *testing.T) {
	t.Setenv("SWIT_STATUS_SERVER_PORT", "9300")
	t.Setenv("SWIT_STATUS_QUEUE_CONCURRENCY", "200")

	tempDir := t.TempDir()

	writeFile(t, tempDir, "swit-status.yaml", `
server:
  port: "9000"
queue:
  broker: memory
  concurrency: 10
  poll_timeout: 5
`)
	writeFile(t, tempDir, "swit-status.dev.yaml", `
server:
  port: "9100"
queue:
  broker: redis
  poll_timeout: 8
`)
	writeFile(t, tempDir, "swit-status.override.yaml", `
server:
  port: "9200"
queue:
  concurrency: 100
`)

	m := NewManager(Options{
		WorkDir:            tempDir,
		EnvironmentName:    "dev",
		EnvPrefix:          "SWIT_STATUS",
		EnableAutomaticEnv: true,
	})
	m.SetDefault("server.port", "8080")
	m.SetDefault("queue.concurrency", 1)
	m.SetDefault("queue.poll_timeout", 2)

	require.NoError(t, m.Load())

	var cfg testConfig
	require.NoError(t, m.Unmarshal(&cfg))

	// defaults(8080) < base(9000) < env(9100) < override(9200) < envvars(9300)
	assert.Equal(t, "9300", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Queue.PollTimeout)
	assert.Equal(t, 200, cfg.Queue.Concurrency)
	assert.Equal(t, "redis", cfg.Queue.Broker)
}

func TestMissingFilesAreIgnored(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, tempDir, "swit-status.yaml", `server: { port: "8000" }`)

	opts := DefaultOptions()
	opts.WorkDir = tempDir
	opts.EnvironmentName = "prod"
	m := NewManager(opts)

	require.NoError(t, m.Load())

	var cfg testConfig
	require.NoError(t, m.Unmarshal(&cfg))
	assert.Equal(t, "8000", cfg.Server.Port)
}

func TestUnmarshalErrors(t *testing.T) {
	m := NewManager(DefaultOptions())
	assert.Error(t, m.Unmarshal(nil))

	var cfg testConfig
	assert.ErrorIs(t, m.Unmarshal(&cfg), ErrNotLoaded)
}

func TestReloadDropsRemovedKeysAndKeepsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, tempDir, "swit-status.yaml", `
server: { port: "9000" }
queue: { broker: redis }
`)
	m := NewManager(Options{WorkDir: tempDir})
	m.SetDefault("queue.broker", "memory")
	require.NoError(t, m.Load())
	assert.Equal(t, "redis", m.Get("queue.broker"))

	writeFile(t, tempDir, "swit-status.yaml", `server: { port: "9001" }`)
	require.NoError(t, m.Reload())

	assert.Equal(t, "9001", m.Get("server.port"))
	assert.Equal(t, "memory", m.Get("queue.broker"))
}

func TestReloadKeepsPreviousViewOnParseError(t *testing.T) {
	tempDir := t.TempDir()
	writeFile(t, tempDir, "swit-status.yaml", `server: { port: "9000" }`)
	m := NewManager(Options{WorkDir: tempDir})
	require.NoError(t, m.Load())

	writeFile(t, tempDir, "swit-status.yaml", "server: [unclosed")
	assert.Error(t, m.Reload())
	assert.Equal(t, "9000", m.Get("server.port"))
}

func TestFiles(t *testing.T) {
	m := NewManager(Options{WorkDir: "/etc/swit", EnvironmentName: "Prod"})

	assert.Equal(t, []string{
		"/etc/swit/swit-status.yaml",
		"/etc/swit/swit-status.prod.yaml",
		"/etc/swit/swit-status.override.yaml",
	}, m.Files())
}

func TestWatcherCallsOnChange(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "swit-status.yaml")
	writeFile(t, tempDir, "swit-status.yaml", "a: 1\n")

	var calls atomic.Int32
	w, err := NewWatcher([]string{path}, func() { calls.Add(1) },
		WithDebounce(20*time.Millisecond), WithWatcherLogger(zap.NewNop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, tempDir, "unrelated.txt", "x")
	writeFile(t, tempDir, "swit-status.yaml", "a: 2\n")
	writeFile(t, tempDir, "swit-status.yaml", "a: 3\n")

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNewWatcherValidates(t *testing.T) {
	_, err := NewWatcher(nil, func() {})
	assert.Error(t, err)

	_, err = NewWatcher([]string{"x.yaml"}, nil)
	assert.Error(t, err)

	_, err = NewWatcher([]string{"/does/not/exist/x.yaml"}, func() {})
	assert.Error(t, err)
}
