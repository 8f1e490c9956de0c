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

// Package control is the worker control channel: it asks named workers of a
// task-queue application whether they are alive.
package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// PongReply is the answer a healthy worker gives to a ping.
var PongReply = Reply{"ok": "pong"}

// ErrUnknownApp is returned when no control application is registered
// under the requested name.
var ErrUnknownApp = errors.New("unknown control application")

// Reply is a worker's answer to a ping.
type Reply map[string]string

// IsPong reports whether r is exactly {"ok": "pong"}.
func (r Reply) IsPong() bool {
	return len(r) == 1 && r["ok"] == "pong"
}

// Pinger pings workers by name. The result maps each worker that answered
// to its reply; workers that did not answer are absent. A nil map means
// nobody answered.
type Pinger interface {
	Ping(ctx context.Context, names []string) (map[string]Reply, error)
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context, names []string) (map[string]Reply, error)

func (f PingerFunc) Ping(ctx context.Context, names []string) (map[string]Reply, error) {
	return f(ctx, names)
}

// Dummy answers pong for every worker. It stands in for a real application
// in development setups.
type Dummy struct{}

func (Dummy) Ping(_ context.Context, names []string) (map[string]Reply, error) {
	out := make(map[string]Reply, len(names))
	for _, n := range names {
		out[n] = PongReply
	}
	return out, nil
}

// Hub tracks in-process workers. Joined workers answer pong.
type Hub struct {
	mu      sync.RWMutex
	workers map[string]Reply
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{workers: make(map[string]Reply)}
}

// Join registers a worker that answers pong.
func (h *Hub) Join(name string) {
	h.JoinWithReply(name, PongReply)
}

// JoinWithReply registers a worker with a fixed reply.
func (h *Hub) JoinWithReply(name string, reply Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = reply
}

// Leave removes a worker.
func (h *Hub) Leave(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.workers, name)
}

// Workers lists joined worker names, sorted.
func (h *Hub) Workers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.workers))
	for n := range h.workers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (h *Hub) Ping(ctx context.Context, names []string) (map[string]Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out map[string]Reply
	for _, n := range names {
		if r, ok := h.workers[n]; ok {
			if out == nil {
				out = make(map[string]Reply)
			}
			out[n] = r
		}
	}
	return out, nil
}

// Registry maps control application names to pingers.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]Pinger
}

// NewRegistry creates a registry that already knows the "dummy" app.
func NewRegistry() *Registry {
	return &Registry{apps: map[string]Pinger{"dummy": Dummy{}}}
}

// Register adds or replaces an application.
func (r *Registry) Register(name string, p Pinger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[name] = p
}

// Lookup returns the pinger registered under name.
func (r *Registry) Lookup(name string) (Pinger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.apps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return p, nil
}
