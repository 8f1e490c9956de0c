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
	"encoding/json"
	"fmt"

	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

// TaskName is the queue task that runs one check.
const TaskName = "status.check"

// TaskResult is what a worker stores for a finished check. A check failure
// is a successful task with Status false; only a crash of the task itself
// is a task failure.
type TaskResult struct {
	Status  bool    `json:"status"`
	Warning *string `json:"warning"`
	Error   *string `json:"error"`
}

// Execute runs c and folds its outcome into a TaskResult. When both an
// error and a warning are present the error decides Status.
func Execute(ctx context.Context, c *Check) TaskResult {
	return resultOf(c, c.Run(ctx))
}

func resultOf(c *Check, err error) TaskResult {
	res := TaskResult{Status: true}
	if w, ok := AsCheckWarning(err); ok {
		res.Warning = &w.Message
	} else if c.Warning != nil {
		res.Warning = &c.Warning.Message
	}
	if e, ok := AsCheckError(err); ok {
		res.Status = false
		res.Error = &e.Message
	} else if c.Error != nil {
		res.Status = false
		res.Error = &c.Error.Message
	}
	return res
}

// TaskHandler returns the queue handler that rebuilds a check from the task
// payload, runs it and encodes its TaskResult. A payload that cannot be
// rebuilt into a check fails the task.
func TaskHandler(registry *Registry, opts ...Option) taskqueue.Handler {
	o := newRunOptions(opts)
	return func(ctx context.Context, task *taskqueue.Task) (json.RawMessage, error) {
		var spec CheckSpec
		if err := json.Unmarshal(task.Payload, &spec); err != nil {
			return nil, fmt.Errorf("decode check spec: %w", err)
		}
		c, err := registry.Build(spec)
		if err != nil {
			return nil, err
		}
		if o.tracing != nil && len(task.Headers) > 0 {
			ctx = o.tracing.ExtractMap(ctx, task.Headers)
		}
		res := resultOf(c, o.runCheck(ctx, c))
		return json.Marshal(res)
	}
}
