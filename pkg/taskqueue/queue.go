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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/logger"
)

// Queue is the producer side: it submits tasks and reports their state.
type Queue struct {
	broker  Broker
	backend Backend
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(f func() string) Option {
	return func(q *Queue) { q.newID = f }
}

// NewQueue creates a producer over broker and backend.
func NewQueue(broker Broker, backend Backend, opts ...Option) *Queue {
	q := &Queue{
		broker:  broker,
		backend: backend,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = logger.GetLogger()
	}
	return q
}

// SubmitOption tunes one submission.
type SubmitOption func(*Task)

// WithHeaders attaches headers, e.g. tracing context, to the task.
func WithHeaders(h map[string]string) SubmitOption {
	return func(t *Task) {
		if len(h) == 0 {
			return
		}
		if t.Headers == nil {
			t.Headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			t.Headers[k] = v
		}
	}
}

// Submit encodes payload, records the task as PENDING and publishes it. It
// does not wait for execution.
func (q *Queue) Submit(ctx context.Context, name string, payload any, opts ...SubmitOption) (Handle, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, fmt.Errorf("encode task payload: %w", err)
	}

	task := &Task{
		ID:          q.newID(),
		Name:        name,
		Payload:     data,
		SubmittedAt: q.now().UTC(),
	}
	for _, opt := range opts {
		opt(task)
	}

	if err := q.backend.Store(ctx, Record{ID: task.ID, Name: name, State: StatePending, UpdatedAt: task.SubmittedAt}); err != nil {
		return Handle{}, fmt.Errorf("store pending task %s: %w", task.ID, err)
	}
	if err := q.broker.Publish(ctx, task); err != nil {
		return Handle{}, fmt.Errorf("publish task %s: %w", task.ID, err)
	}

	q.log.Debug("task submitted", zap.String("task_id", task.ID), zap.String("task", name))
	return Handle{ID: task.ID}, nil
}

// Status returns the stored record for id. Unknown ids are reported as
// PENDING, so polling never fails on a task that has not been recorded yet.
func (q *Queue) Status(ctx context.Context, id string) (Record, error) {
	rec, err := q.backend.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Record{ID: id, State: StatePending}, nil
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close closes the broker and the backend.
func (q *Queue) Close() error {
	return errors.Join(q.broker.Close(), q.backend.Close())
}
