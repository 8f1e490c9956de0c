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
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/innovationmech/switstatus/pkg/logger"
)

// Worker is the consumer side: it pulls tasks from a Broker, runs the
// registered Handler with bounded concurrency and stores the outcome.
type Worker struct {
	name        string
	broker      Broker
	backend     Backend
	concurrency int
	log         *zap.Logger
	now         func() time.Time
	onFailure   FailureHook

	mu       sync.RWMutex
	handlers map[string]Handler
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerName sets the name recorded on results. Defaults to the host name.
func WithWorkerName(name string) WorkerOption {
	return func(w *Worker) { w.name = name }
}

// WithConcurrency bounds how many tasks run at once. Values below 1 mean 1.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) { w.concurrency = n }
}

// WithWorkerLogger overrides the global logger.
func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// Failure describes a task that ended in FAILURE.
type Failure struct {
	Task      *Task
	Worker    string
	Err       error
	Traceback string
	// Panicked is set when the handler panicked rather than returned.
	Panicked bool
}

// FailureHook is called after a failed task's record is stored.
type FailureHook func(ctx context.Context, f Failure)

// WithFailureHook registers fn for failed tasks.
func WithFailureHook(fn FailureHook) WorkerOption {
	return func(w *Worker) { w.onFailure = fn }
}

// NewWorker creates a worker.
func NewWorker(broker Broker, backend Backend, opts ...WorkerOption) *Worker {
	w := &Worker{
		broker:      broker,
		backend:     backend,
		concurrency: 1,
		now:         time.Now,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.name == "" {
		host, _ := os.Hostname()
		w.name = "worker@" + host
	}
	if w.log == nil {
		w.log = logger.GetLogger()
	}
	return w
}

// Name is the worker's name.
func (w *Worker) Name() string { return w.name }

// Handle registers h for tasks called name.
func (w *Worker) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// Run consumes tasks until ctx is cancelled. Tasks already started are
// allowed to finish before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	w.log.Info("worker started", zap.String("worker", w.name), zap.Int("concurrency", w.concurrency))

	// In-flight tasks are not cancelled on shutdown.
	taskCtx := context.WithoutCancel(ctx)
	err := w.broker.Consume(ctx, func(_ context.Context, task *Task) error {
		g.Go(func() error {
			w.Process(taskCtx, task)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	w.log.Info("worker stopped", zap.String("worker", w.name))
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Process runs one task synchronously and stores its final record.
func (w *Worker) Process(ctx context.Context, task *Task) {
	log := w.log.With(zap.String("task_id", task.ID), zap.String("task", task.Name))

	w.store(ctx, log, Record{ID: task.ID, Name: task.Name, State: StateStarted, Worker: w.name, UpdatedAt: w.now().UTC()})

	w.mu.RLock()
	h, ok := w.handlers[task.Name]
	w.mu.RUnlock()

	rec := Record{ID: task.ID, Name: task.Name, Worker: w.name}
	var failure *Failure
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoHandler, task.Name)
		rec.State = StateFailure
		rec.Traceback = err.Error()
		failure = &Failure{Err: err}
	} else {
		result, traceback, err := w.invoke(ctx, h, task)
		switch {
		case traceback != "":
			rec.State = StateFailure
			rec.Traceback = traceback
			failure = &Failure{Err: err, Panicked: true}
		case err != nil:
			rec.State = StateFailure
			rec.Traceback = err.Error()
			failure = &Failure{Err: err}
		default:
			rec.State = StateSuccess
			rec.Result = result
		}
	}
	rec.UpdatedAt = w.now().UTC()

	if rec.State == StateFailure {
		log.Error("task failed", zap.String("traceback", rec.Traceback))
	} else {
		log.Debug("task succeeded")
	}
	w.store(ctx, log, rec)

	if failure != nil && w.onFailure != nil {
		failure.Task = task
		failure.Worker = w.name
		failure.Traceback = rec.Traceback
		w.onFailure(ctx, *failure)
	}
}

// invoke runs h. A panic is returned as err with its stack in traceback.
func (w *Worker) invoke(ctx context.Context, h Handler, task *Task) (result []byte, traceback string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			traceback = fmt.Sprintf("%v\n\n%s", err, debug.Stack())
		}
	}()
	result, err = h(ctx, task)
	return result, "", err
}

func (w *Worker) store(ctx context.Context, log *zap.Logger, rec Record) {
	if err := w.backend.Store(ctx, rec); err != nil {
		log.Error("failed to store task record", zap.String("state", string(rec.State)), zap.Error(err))
	}
}
