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
	"iter"

	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/logger"
)

// Loader turns sources into runnable checks.
type Loader struct {
	registry *Registry
	resolver Resolver
	log      *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithResolver sets how references are resolved. Without one every
// reference is unresolvable.
func WithResolver(r Resolver) LoaderOption {
	return func(l *Loader) { l.resolver = r }
}

// WithLoaderLogger overrides the global logger.
func WithLoaderLogger(log *zap.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// NewLoader creates a loader backed by registry.
func NewLoader(registry *Registry, opts ...LoaderOption) *Loader {
	l := &Loader{registry: registry}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.GetLogger()
	}
	return l
}

// Registry returns the registry checks are built from.
func (l *Loader) Registry() *Registry { return l.registry }

// Load yields one check per resolvable entry of src, in configuration order.
// Entries that cannot be built are yielded as (nil, *SpecError) and loading
// continues. Unresolvable references are logged and skipped. Every call
// returns a fresh, independent sequence.
func (l *Loader) Load(ctx context.Context, src Source) iter.Seq2[*Check, error] {
	return func(yield func(*Check, error) bool) {
		switch src.kind {
		case SourceInline:
			for _, e := range src.entries {
				if e.err != nil {
					l.log.Warn("check skipped", zap.Error(e.err))
					if !yield(nil, e.err) {
						return
					}
					continue
				}
				if !l.buildAll([]CheckSpec{e.spec}, yield) {
					return
				}
			}
		case SourceReferences:
			for _, ref := range src.refs {
				if ctx.Err() != nil {
					return
				}
				if !l.loadRef(ctx, ref, yield) {
					return
				}
			}
		}
	}
}

// LoadAll chains Load over several sources.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) iter.Seq2[*Check, error] {
	return func(yield func(*Check, error) bool) {
		for _, src := range sources {
			for c, err := range l.Load(ctx, src) {
				if !yield(c, err) {
					return
				}
			}
		}
	}
}

func (l *Loader) loadRef(ctx context.Context, ref string, yield func(*Check, error) bool) bool {
	if l.resolver == nil {
		l.log.Warn("check reference skipped, no resolver configured", zap.String("ref", ref))
		return true
	}
	specs, err := l.resolver.Resolve(ctx, ref)
	if errors.Is(err, ErrUnresolved) {
		l.log.Warn("check reference could not be resolved", zap.String("ref", ref), zap.Error(err))
		return true
	}
	var fe *fileSpecErrors
	if errors.As(err, &fe) {
		for _, e := range fe.entries {
			if e.err != nil {
				l.log.Warn("check skipped", zap.String("ref", ref), zap.Error(e.err))
				if !yield(nil, e.err) {
					return false
				}
				continue
			}
			if !l.buildAll([]CheckSpec{e.spec}, yield) {
				return false
			}
		}
		return true
	}
	if !l.buildAll(specs, yield) {
		return false
	}
	if err != nil {
		return yield(nil, &SpecError{Name: ref, Cause: err})
	}
	return true
}

func (l *Loader) buildAll(specs []CheckSpec, yield func(*Check, error) bool) bool {
	for _, spec := range specs {
		c, err := l.registry.Build(spec)
		if err != nil {
			l.log.Warn("check skipped", zap.String("check", spec.Name), zap.String("kind", spec.Kind), zap.Error(err))
			if !yield(nil, err) {
				return false
			}
			continue
		}
		if !yield(c, nil) {
			return false
		}
	}
	return true
}
