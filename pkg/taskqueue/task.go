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

// Package taskqueue is a small background task queue: producers submit named
// tasks through a Broker, workers execute them, and results are kept in a
// Backend where they can be polled by task id.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle position of a task.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Ready reports whether the state is terminal.
func (s State) Ready() bool {
	return s == StateSuccess || s == StateFailure
}

var (
	// ErrNotFound is returned by a Backend for unknown task ids.
	ErrNotFound = errors.New("task not found")
	// ErrClosed is returned after a broker or backend has been closed.
	ErrClosed = errors.New("task queue closed")
	// ErrNoHandler is recorded when a worker receives a task it cannot run.
	ErrNoHandler = errors.New("no handler registered for task")
)

// Task is one unit of work travelling through a Broker.
type Task struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// Record is the stored state of a task.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	State     State           `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
	Worker    string          `json:"worker,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ready reports whether the task has finished, successfully or not.
func (r Record) Ready() bool { return r.State.Ready() }

// Failed reports whether the task crashed.
func (r Record) Failed() bool { return r.State == StateFailure }

// Handle identifies a submitted task.
type Handle struct {
	ID string `json:"id"`
}

// Broker moves tasks from producers to workers.
type Broker interface {
	// Publish enqueues a task.
	Publish(ctx context.Context, task *Task) error
	// Consume delivers tasks to fn until ctx is cancelled or the broker is
	// closed. An error returned by fn is logged by the caller; the broker
	// does not redeliver.
	Consume(ctx context.Context, fn func(ctx context.Context, task *Task) error) error
	Close() error
}

// Backend stores task records.
type Backend interface {
	Store(ctx context.Context, rec Record) error
	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (Record, error)
	Close() error
}

// Handler executes one task and returns its encoded result. A returned
// error marks the task FAILURE with the error text as traceback.
type Handler func(ctx context.Context, task *Task) (json.RawMessage, error)
