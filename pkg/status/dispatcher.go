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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"

	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

// TaskQueue is the part of the task queue the dispatcher needs.
type TaskQueue interface {
	Submit(ctx context.Context, name string, payload any, opts ...taskqueue.SubmitOption) (taskqueue.Handle, error)
	Status(ctx context.Context, id string) (taskqueue.Record, error)
}

// StatusInfo pairs a dispatched check with the handle of its task.
type StatusInfo struct {
	Check *Check
	Task  taskqueue.Handle
}

// Dispatcher submits every configured check to a task queue.
type Dispatcher struct {
	loader  *Loader
	sources SourceProvider
	queue   TaskQueue
	opts    runOptions
}

// NewDispatcher creates a dispatcher. sources is read on every Dispatch.
func NewDispatcher(loader *Loader, sources SourceProvider, queue TaskQueue, opts ...Option) *Dispatcher {
	return &Dispatcher{loader: loader, sources: sources, queue: queue, opts: newRunOptions(opts)}
}

// Dispatch submits the checks one by one and yields each as soon as it is
// queued. Checks that cannot be built or submitted are yielded as errors and
// dispatching continues.
func (d *Dispatcher) Dispatch(ctx context.Context) iter.Seq2[StatusInfo, error] {
	return func(yield func(StatusInfo, error) bool) {
		for c, err := range d.loader.LoadAll(ctx, d.sources.Sources()) {
			if err != nil {
				d.opts.metrics.RecordSpecError(specName(err))
				if !yield(StatusInfo{}, err) {
					return
				}
				continue
			}

			var submitOpts []taskqueue.SubmitOption
			if d.opts.tracing != nil {
				carrier := map[string]string{}
				d.opts.tracing.InjectMap(ctx, carrier)
				submitOpts = append(submitOpts, taskqueue.WithHeaders(carrier))
			}
			h, err := d.queue.Submit(ctx, TaskName, c.Spec(), submitOpts...)
			d.opts.metrics.RecordDispatch(c.Name(), c.Kind(), err)
			if err != nil {
				d.opts.log.Error("check dispatch failed", zap.String("check", c.Name()), zap.Error(err))
				if !yield(StatusInfo{Check: c}, &DispatchError{Name: c.Name(), Cause: err}) {
					return
				}
				continue
			}
			d.opts.log.Debug("check dispatched", zap.String("check", c.Name()), zap.String("task_id", h.ID))
			if !yield(StatusInfo{Check: c, Task: h}, nil) {
				return
			}
		}
	}
}

// Poll reports the state of a dispatched task. It has no side effects.
func (d *Dispatcher) Poll(ctx context.Context, taskID string) (PollResult, error) {
	return Poll(ctx, d.queue, taskID)
}

// Poll reports the state of task taskID on q.
func Poll(ctx context.Context, q TaskQueue, taskID string) (PollResult, error) {
	rec, err := q.Status(ctx, taskID)
	if err != nil {
		return PollResult{}, err
	}
	t := PollTask{ID: taskID, Ready: rec.Ready(), Failed: rec.Failed()}
	if t.Failed {
		t.Traceback = rec.Traceback
	} else if len(rec.Result) > 0 {
		t.Output = rec.Result
	}
	return PollResult{Task: t}, nil
}

// PollResult is the answer to a poll, shaped as {"task": {...}}.
type PollResult struct {
	Task PollTask `json:"task"`
}

// PollTask describes one task. A failed task carries a traceback and no
// output; any other task carries an output, null until it is ready.
type PollTask struct {
	ID        string
	Ready     bool
	Failed    bool
	Traceback string
	Output    json.RawMessage
}

// Result decodes the output of a successful task. It returns nil when the
// task has no output yet.
func (t PollTask) Result() (*TaskResult, error) {
	if t.Failed || len(t.Output) == 0 || bytes.Equal(t.Output, []byte("null")) {
		return nil, nil
	}
	var res TaskResult
	if err := json.Unmarshal(t.Output, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (t PollTask) MarshalJSON() ([]byte, error) {
	if t.Failed {
		return json.Marshal(struct {
			ID        string `json:"id"`
			Ready     bool   `json:"ready"`
			Failed    bool   `json:"failed"`
			Traceback string `json:"traceback"`
		}{t.ID, t.Ready, true, t.Traceback})
	}
	out := t.Output
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	return json.Marshal(struct {
		ID     string          `json:"id"`
		Ready  bool            `json:"ready"`
		Failed bool            `json:"failed"`
		Output json.RawMessage `json:"output"`
	}{t.ID, t.Ready, false, out})
}

func (t *PollTask) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Ready     bool            `json:"ready"`
		Failed    bool            `json:"failed"`
		Traceback string          `json:"traceback"`
		Output    json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = PollTask{ID: raw.ID, Ready: raw.Ready, Failed: raw.Failed, Traceback: raw.Traceback}
	if len(raw.Output) > 0 && !bytes.Equal(raw.Output, []byte("null")) {
		t.Output = raw.Output
	}
	return nil
}

func specName(err error) string {
	var se *SpecError
	if errors.As(err, &se) {
		return se.Name
	}
	return ""
}
