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

package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SourceKind tells the two configuration source forms apart.
type SourceKind int

const (
	// SourceInline holds check specs directly.
	SourceInline SourceKind = iota
	// SourceReferences holds names of external spec lists.
	SourceReferences
)

// Source is where checks come from: either inline specs or references to
// external spec lists. Construct it with Inline or References.
type Source struct {
	kind    SourceKind
	entries []sourceEntry
	refs    []string
}

// sourceEntry is one inline position: a spec, or the reason it is invalid.
type sourceEntry struct {
	spec CheckSpec
	err  error
}

// Inline builds a source of literal specs.
func Inline(specs ...CheckSpec) Source {
	entries := make([]sourceEntry, len(specs))
	for i, spec := range specs {
		entries[i] = sourceEntry{spec: spec}
	}
	return Source{kind: SourceInline, entries: entries}
}

// InlineRaw decodes raw configuration entries into an inline source. Entries
// that fail to decode keep their position and are reported by the loader.
func InlineRaw(raw any) Source {
	return Source{kind: SourceInline, entries: decodeEntries(raw)}
}

// References builds a source of external references.
func References(refs ...string) Source {
	return Source{kind: SourceReferences, refs: refs}
}

// Kind reports which form the source has.
func (s Source) Kind() SourceKind { return s.kind }

// Specs returns the valid inline specs. It is empty for reference sources.
func (s Source) Specs() []CheckSpec {
	var specs []CheckSpec
	for _, e := range s.entries {
		if e.err == nil {
			specs = append(specs, e.spec)
		}
	}
	return specs
}

// Refs returns the references. It is empty for inline sources.
func (s Source) Refs() []string { return s.refs }

// SourceProvider supplies the current sources, read fresh on every run so
// configuration reloads take effect.
type SourceProvider interface {
	Sources() []Source
}

// StaticSources is a fixed SourceProvider.
type StaticSources []Source

func (s StaticSources) Sources() []Source { return s }

// Resolver maps a reference to the specs it names. It returns an error
// wrapping ErrUnresolved when the reference cannot be found.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]CheckSpec, error)
}

// CatalogResolver resolves references against named in-process spec lists.
type CatalogResolver struct {
	mu      sync.RWMutex
	entries map[string][]CheckSpec
}

// NewCatalogResolver creates an empty catalog.
func NewCatalogResolver() *CatalogResolver {
	return &CatalogResolver{entries: make(map[string][]CheckSpec)}
}

// Add registers specs under ref, replacing any previous list.
func (c *CatalogResolver) Add(ref string, specs ...CheckSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ref] = specs
}

func (c *CatalogResolver) Resolve(_ context.Context, ref string) ([]CheckSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs, ok := c.entries[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}
	return specs, nil
}

// FileResolver reads YAML or JSON spec lists from disk. Relative references
// are resolved against BaseDir.
type FileResolver struct {
	BaseDir string
}

type specFile struct {
	Checks any `yaml:"checks"`
}

func (r FileResolver) Resolve(ctx context.Context, ref string) ([]CheckSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if !filepath.IsAbs(path) && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
		}
		return nil, fmt.Errorf("read check file %s: %w", ref, err)
	}

	// A file is either a bare list of entries or a mapping with a checks key.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidSpec, ref, err)
	}
	if m, ok := asMap(doc); ok {
		var f specFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidSpec, ref, err)
		}
		if _, has := m["checks"]; !has {
			return nil, fmt.Errorf("%w: %s has no checks list", ErrInvalidSpec, ref)
		}
		doc = f.Checks
	}

	entries := decodeEntries(doc)
	var (
		specs  []CheckSpec
		failed bool
	)
	for _, e := range entries {
		if e.err != nil {
			failed = true
			continue
		}
		specs = append(specs, e.spec)
	}
	if failed {
		return specs, &fileSpecErrors{ref: ref, entries: entries}
	}
	return specs, nil
}

// fileSpecErrors reports a file with entries that failed to decode. It
// keeps every entry in file order so callers can report each failure in
// place.
type fileSpecErrors struct {
	ref     string
	entries []sourceEntry
}

func (e *fileSpecErrors) Error() string {
	var msgs []string
	for _, en := range e.entries {
		if en.err != nil {
			msgs = append(msgs, en.err.Error())
		}
	}
	return fmt.Sprintf("%s: %s", e.ref, strings.Join(msgs, "; "))
}

// ChainResolver tries each resolver in order. Only ErrUnresolved moves on to
// the next one.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(ctx context.Context, ref string) ([]CheckSpec, error) {
	for _, r := range c {
		specs, err := r.Resolve(ctx, ref)
		if errors.Is(err, ErrUnresolved) {
			continue
		}
		return specs, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
}
