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

// Package config loads layered configuration files and environment
// variables into one merged view that can be rebuilt on demand.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Layer represents a configuration layer in the hierarchy.
//
// Precedence (low → high): Defaults < Base < EnvironmentFile < OverrideFile < EnvironmentVariables
type Layer int

const (
	// DefaultsLayer holds hard-coded default values set via SetDefault.
	DefaultsLayer Layer = iota
	// BaseLayer is the base configuration file, e.g. swit-status.yaml.
	BaseLayer
	// EnvironmentFileLayer is the environment-specific file, e.g. swit-status.prod.yaml.
	EnvironmentFileLayer
	// OverrideFileLayer is a local override file, e.g. swit-status.override.yaml.
	OverrideFileLayer
	// EnvironmentVariablesLayer represents environment variables (highest precedence).
	EnvironmentVariablesLayer
)

// Options configures the Manager.
type Options struct {
	// WorkDir is the directory the layer files live in.
	WorkDir string

	// ConfigBaseName is the file name without extension (default: "swit-status").
	ConfigBaseName string

	// ConfigType is the file type (yaml|yml|json). Default: "yaml".
	ConfigType string

	// EnvironmentName selects the environment file, e.g. "dev" → swit-status.dev.yaml.
	EnvironmentName string

	// OverrideFilename is the optional override file name.
	// Default: "<base>.override.<ext>".
	OverrideFilename string

	// EnvPrefix is the prefix for environment variables (e.g., "SWIT_STATUS").
	EnvPrefix string

	// EnableAutomaticEnv binds environment variables with dot→underscore mapping.
	EnableAutomaticEnv bool
}

// DefaultOptions returns the options used by swit-status.
func DefaultOptions() Options {
	return Options{
		WorkDir:            ".",
		ConfigBaseName:     "swit-status",
		ConfigType:         "yaml",
		EnvPrefix:          "SWIT_STATUS",
		EnableAutomaticEnv: true,
	}
}

// ErrNotLoaded is returned by accessors used before the first Load.
var ErrNotLoaded = errors.New("configuration not loaded")

// Manager provides hierarchical configuration loading and access. Every
// Load builds a fresh viper instance from the defaults and the files on
// disk, so keys removed from a file disappear on the next load.
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	defaults map[string]any
	options  Options
	loaded   bool
}

// NewManager creates a new Manager with the given options.
func NewManager(options Options) *Manager {
	if options.ConfigType == "" {
		options.ConfigType = "yaml"
	}
	if options.ConfigBaseName == "" {
		options.ConfigBaseName = "swit-status"
	}
	if options.WorkDir == "" {
		options.WorkDir = "."
	}
	m := &Manager{options: options, defaults: make(map[string]any)}
	m.v = m.newViper()
	return m
}

func (m *Manager) newViper() *viper.Viper {
	v := viper.New()
	if m.options.EnableAutomaticEnv {
		if m.options.EnvPrefix != "" {
			v.SetEnvPrefix(m.options.EnvPrefix)
		}
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	}
	for k, val := range m.defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Options returns the options the manager was created with.
func (m *Manager) Options() Options { return m.options }

// SetDefault sets a default value for the given key.
func (m *Manager) SetDefault(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[key] = value
	m.v.SetDefault(key, value)
}

// Load merges all layers in precedence order into a new view and swaps it
// in. On error the previous view stays in place.
func (m *Manager) Load() error {
	m.mu.RLock()
	v := m.newViper()
	m.mu.RUnlock()

	// 1) Base layer
	if err := mergeFileIfExists(v, m.filePathFor(BaseLayer), m.normalizedConfigExt()); err != nil {
		return fmt.Errorf("load base config: %w", err)
	}

	// 2) Environment file layer
	if m.options.EnvironmentName != "" {
		if err := mergeFileIfExists(v, m.filePathFor(EnvironmentFileLayer), m.normalizedConfigExt()); err != nil {
			return fmt.Errorf("load env config: %w", err)
		}
	}

	// 3) Override file layer
	if err := mergeFileIfExists(v, m.filePathFor(OverrideFileLayer), m.normalizedConfigExt()); err != nil {
		return fmt.Errorf("load override config: %w", err)
	}

	// 4) Environment variables are resolved on access through AutomaticEnv.
	m.mu.Lock()
	m.v = v
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// Reload is Load under the name callers use after a file changed.
func (m *Manager) Reload() error { return m.Load() }

// Files lists the paths of every file layer, whether or not it exists.
func (m *Manager) Files() []string {
	files := []string{m.filePathFor(BaseLayer)}
	if m.options.EnvironmentName != "" {
		files = append(files, m.filePathFor(EnvironmentFileLayer))
	}
	return append(files, m.filePathFor(OverrideFileLayer))
}

// Unmarshal binds all merged settings into the given struct pointer.
func (m *Manager) Unmarshal(target any, opts ...viper.DecoderConfigOption) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if target == nil {
		return errors.New("target must not be nil")
	}
	if !m.loaded {
		return ErrNotLoaded
	}
	return m.v.Unmarshal(target, opts...)
}

// Get returns a value by key from merged configuration.
func (m *Manager) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key)
}

// AllSettings returns a copy of all merged settings as a map.
func (m *Manager) AllSettings() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.v.AllSettings())
}

// filePathFor returns the file path for a given layer.
func (m *Manager) filePathFor(layer Layer) string {
	dir := m.options.WorkDir
	base := m.options.ConfigBaseName
	switch layer {
	case BaseLayer:
		return filepath.Join(dir, fmt.Sprintf("%s.%s", base, m.normalizedConfigExt()))
	case EnvironmentFileLayer:
		env := m.options.EnvironmentName
		return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", base, strings.ToLower(env), m.normalizedConfigExt()))
	case OverrideFileLayer:
		name := m.options.OverrideFilename
		if name == "" {
			name = fmt.Sprintf("%s.override.%s", base, m.normalizedConfigExt())
		}
		return filepath.Join(dir, name)
	default:
		return ""
	}
}

func (m *Manager) normalizedConfigExt() string {
	t := strings.ToLower(m.options.ConfigType)
	switch t {
	case "yml":
		return "yaml"
	case "yaml", "json":
		return t
	default:
		return "yaml"
	}
}

// mergeFileIfExists merges a configuration file if it exists. Missing files are ignored.
func mergeFileIfExists(v *viper.Viper, path, ext string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Parse into a scratch instance so a broken file leaves v untouched.
	tmp := viper.New()
	tmp.SetConfigType(ext)
	if err := tmp.ReadConfig(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return v.MergeConfigMap(tmp.AllSettings())
}
