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

package taskqueue

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker backed by a buffered channel.
type MemoryBroker struct {
	tasks     chan *Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryBroker creates a broker that buffers up to size tasks.
func NewMemoryBroker(size int) *MemoryBroker {
	if size < 1 {
		size = 1
	}
	return &MemoryBroker{tasks: make(chan *Task, size), done: make(chan struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, task *Task) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.tasks <- task:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, fn func(ctx context.Context, task *Task) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		case t := <-b.tasks:
			_ = fn(ctx, t)
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// MemoryBackend keeps records in a map.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (b *MemoryBackend) Store(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.ID] = rec
	return nil
}

func (b *MemoryBackend) Load(_ context.Context, id string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (b *MemoryBackend) Close() error { return nil }
