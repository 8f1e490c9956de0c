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
	"fmt"
	"slices"
	"sync"
)

// Factory builds the probe for a check from its name and raw parameters.
// Factories decode params into their own typed configuration.
type Factory func(name string, params map[string]any) (Probe, error)

// Registry maps check kinds to factories. It is populated at process start
// and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// Register adds a factory under kind.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return fmt.Errorf("register check kind %q: empty kind or nil factory", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	if _, ok := r.aliases[kind]; ok {
		return fmt.Errorf("%w: %s is an alias", ErrDuplicateKind, kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind string, f Factory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// Alias makes name resolve to an already registered kind, e.g. a legacy
// fully qualified class path.
func (r *Registry) Alias(name, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, name)
	}
	r.aliases[name] = kind
	return nil
}

// Canonical returns the registered kind that name refers to.
func (r *Registry) Canonical(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.factories[name]; ok {
		return name, true
	}
	if k, ok := r.aliases[name]; ok {
		return k, true
	}
	return "", false
}

// Kinds lists registered kinds in sorted order, aliases excluded.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Build instantiates a check from spec. The returned check keeps the kind
// as written in spec so that it can be shipped and rebuilt elsewhere.
func (r *Registry) Build(spec CheckSpec) (*Check, error) {
	if err := validateSpec(spec); err != nil {
		return nil, &SpecError{Name: spec.Name, Kind: spec.Kind, Cause: err}
	}
	kind, ok := r.Canonical(spec.Kind)
	if !ok {
		return nil, &SpecError{Name: spec.Name, Kind: spec.Kind, Cause: fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)}
	}

	r.mu.RLock()
	f := r.factories[kind]
	r.mu.RUnlock()

	probe, err := f(spec.Name, spec.clone().Params)
	if err != nil {
		return nil, &SpecError{Name: spec.Name, Kind: spec.Kind, Cause: err}
	}
	return NewCheck(spec.clone(), probe), nil
}
