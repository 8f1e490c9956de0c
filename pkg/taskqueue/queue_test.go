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
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingBackend struct {
	MemoryBackend
	err error
}

func (b *failingBackend) Load(context.Context, string) (Record, error) { return Record{}, b.err }

func newTestQueue(t *testing.T) (*Queue, *MemoryBroker, *MemoryBackend) {
	t.Helper()
	broker := NewMemoryBroker(16)
	backend := NewMemoryBackend()
	var n atomic.Int64
	q := NewQueue(broker, backend,
		WithLogger(zap.NewNop()),
		WithIDGenerator(func() string { return "task-" + string(rune('0'+n.Add(1))) }))
	t.Cleanup(func() { _ = q.Close() })
	return q, broker, backend
}

func TestSubmitRecordsPendingAndPublishes(t *testing.T) {
	q, broker, backend := newTestQueue(t)

	h, err := q.Submit(context.Background(), "status.check", map[string]string{"name": "db"},
		WithHeaders(map[string]string{"traceparent": "00-abc"}))
	require.NoError(t, err)
	assert.Equal(t, "task-1", h.ID)

	rec, err := backend.Load(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.False(t, rec.Ready())

	select {
	case task := <-broker.tasks:
		assert.Equal(t, h.ID, task.ID)
		assert.Equal(t, "status.check", task.Name)
		assert.JSONEq(t, `{"name":"db"}`, string(task.Payload))
		assert.Equal(t, "00-abc", task.Headers["traceparent"])
	default:
		t.Fatal("task was not published")
	}
}

func TestSubmitRejectsUnencodablePayload(t *testing.T) {
	q, _, _ := newTestQueue(t)

	_, err := q.Submit(context.Background(), "status.check", make(chan int))
	assert.ErrorContains(t, err, "encode task payload")
}

func TestStatusUnknownIDIsPending(t *testing.T) {
	q, _, _ := newTestQueue(t)

	rec, err := q.Status(context.Background(), "never-submitted")
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, "never-submitted", rec.ID)
}

func TestStatusPropagatesBackendErrors(t *testing.T) {
	boom := errors.New("backend down")
	q := NewQueue(NewMemoryBroker(1), &failingBackend{err: boom}, WithLogger(zap.NewNop()))

	_, err := q.Status(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestPublishAfterCloseFails(t *testing.T) {
	broker := NewMemoryBroker(1)
	require.NoError(t, broker.Close())

	err := broker.Publish(context.Background(), &Task{ID: "1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func waitForState(t *testing.T, q *Queue, id string, want State) Record {
	t.Helper()
	var rec Record
	require.Eventually(t, func() bool {
		var err error
		rec, err = q.Status(context.Background(), id)
		return err == nil && rec.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return rec
}

func TestWorkerRunsHandlersEndToEnd(t *testing.T) {
	q, broker, backend := newTestQueue(t)
	w := NewWorker(broker, backend, WithWorkerName("w1"), WithConcurrency(2), WithWorkerLogger(zap.NewNop()))

	w.Handle("echo", func(_ context.Context, task *Task) (json.RawMessage, error) {
		return task.Payload, nil
	})
	w.Handle("fail", func(context.Context, *Task) (json.RawMessage, error) {
		return nil, errors.New("spec could not be rebuilt")
	})
	w.Handle("panic", func(context.Context, *Task) (json.RawMessage, error) {
		panic("handler exploded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ok, err := q.Submit(ctx, "echo", map[string]bool{"status": true})
	require.NoError(t, err)
	failed, err := q.Submit(ctx, "fail", nil)
	require.NoError(t, err)
	panicked, err := q.Submit(ctx, "panic", nil)
	require.NoError(t, err)
	unknown, err := q.Submit(ctx, "nobody", nil)
	require.NoError(t, err)

	rec := waitForState(t, q, ok.ID, StateSuccess)
	assert.JSONEq(t, `{"status":true}`, string(rec.Result))
	assert.Equal(t, "w1", rec.Worker)

	rec = waitForState(t, q, failed.ID, StateFailure)
	assert.Equal(t, "spec could not be rebuilt", rec.Traceback)

	rec = waitForState(t, q, panicked.ID, StateFailure)
	assert.True(t, strings.HasPrefix(rec.Traceback, "panic: handler exploded"))
	assert.Contains(t, rec.Traceback, "goroutine")

	rec = waitForState(t, q, unknown.ID, StateFailure)
	assert.Contains(t, rec.Traceback, ErrNoHandler.Error())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerFailureHook(t *testing.T) {
	backend := NewMemoryBackend()
	var failures []Failure
	w := NewWorker(NewMemoryBroker(1), backend,
		WithWorkerName("w1"),
		WithWorkerLogger(zap.NewNop()),
		WithFailureHook(func(_ context.Context, f Failure) { failures = append(failures, f) }))

	cause := errors.New("spec could not be rebuilt")
	w.Handle("echo", func(_ context.Context, task *Task) (json.RawMessage, error) { return task.Payload, nil })
	w.Handle("fail", func(context.Context, *Task) (json.RawMessage, error) { return nil, cause })
	w.Handle("panic", func(context.Context, *Task) (json.RawMessage, error) { panic("handler exploded") })

	ctx := context.Background()
	for _, task := range []*Task{
		{ID: "t1", Name: "echo", Payload: json.RawMessage(`true`)},
		{ID: "t2", Name: "fail"},
		{ID: "t3", Name: "panic"},
		{ID: "t4", Name: "nobody"},
	} {
		w.Process(ctx, task)
	}

	require.Len(t, failures, 3)

	assert.Equal(t, "t2", failures[0].Task.ID)
	assert.Equal(t, "w1", failures[0].Worker)
	assert.ErrorIs(t, failures[0].Err, cause)
	assert.False(t, failures[0].Panicked)

	assert.Equal(t, "t3", failures[1].Task.ID)
	assert.True(t, failures[1].Panicked)
	assert.EqualError(t, failures[1].Err, "panic: handler exploded")
	assert.Contains(t, failures[1].Traceback, "goroutine")

	assert.Equal(t, "t4", failures[2].Task.ID)
	assert.ErrorIs(t, failures[2].Err, ErrNoHandler)

	// The hook runs after the record is stored.
	rec, err := backend.Load(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, StateFailure, rec.State)
	assert.Equal(t, failures[1].Traceback, rec.Traceback)
}

func TestWorkerFinishesInFlightTaskOnShutdown(t *testing.T) {
	q, broker, backend := newTestQueue(t)
	w := NewWorker(broker, backend, WithWorkerLogger(zap.NewNop()))

	started := make(chan struct{})
	release := make(chan struct{})
	w.Handle("slow", func(ctx context.Context, _ *Task) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`"done"`), ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	h, err := q.Submit(context.Background(), "slow", nil)
	require.NoError(t, err)
	<-started

	cancel()
	close(release)
	require.NoError(t, <-done)

	rec, err := q.Status(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, rec.State)
}
