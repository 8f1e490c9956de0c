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

// Package status serves check reports and asynchronous check tasks over HTTP.
package status

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/status"
)

// Runner runs every configured check in process.
type Runner interface {
	Run(ctx context.Context) *status.Report
}

// Dispatcher submits checks to workers and polls their tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context) iter.Seq2[status.StatusInfo, error]
	Poll(ctx context.Context, taskID string) (status.PollResult, error)
}

// TaskView is one submitted check in the async response.
type TaskView struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	TaskID string `json:"task_id"`
}

// DispatchView is the async response body.
type DispatchView struct {
	Tasks  []TaskView `json:"tasks"`
	Errors []string   `json:"errors"`
}

// Handler handles HTTP requests for check status
type Handler struct {
	runner     Runner
	dispatcher Dispatcher
}

// NewHandler creates a new status HTTP handler
func NewHandler(runner Runner, dispatcher Dispatcher) *Handler {
	return &Handler{runner: runner, dispatcher: dispatcher}
}

// RegisterRoutes mounts the status routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.GET("/status/async", h.Dispatch)
	rg.POST("/status/async", h.Dispatch)
	rg.GET("/status/tasks/:id", h.Poll)
}

// Status runs all checks and answers 503 when any of them errored.
func (h *Handler) Status(c *gin.Context) {
	rep := h.runner.Run(c.Request.Context())
	code := http.StatusOK
	if len(rep.Errors) > 0 {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, rep.View())
}

// Dispatch submits every configured check and returns the task ids.
func (h *Handler) Dispatch(c *gin.Context) {
	view := DispatchView{Tasks: []TaskView{}, Errors: []string{}}
	for info, err := range h.dispatcher.Dispatch(c.Request.Context()) {
		if err != nil {
			view.Errors = append(view.Errors, err.Error())
			continue
		}
		view.Tasks = append(view.Tasks, TaskView{
			Name:   info.Check.Name(),
			Kind:   info.Check.Kind(),
			TaskID: info.Task.ID,
		})
	}
	c.JSON(http.StatusAccepted, view)
}

// Poll reports the state of one task.
func (h *Handler) Poll(c *gin.Context) {
	id := c.Param("id")
	res, err := h.dispatcher.Poll(c.Request.Context(), id)
	if err != nil {
		logger.GetLogger().Error("task poll failed", zap.String("task_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "task status unavailable"})
		return
	}
	c.JSON(http.StatusOK, res)
}
