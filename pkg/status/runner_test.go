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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/tracing"
)

func outcome(name string, params map[string]any) CheckSpec {
	return CheckSpec{Name: name, Kind: "outcome", Params: params}
}

func fiveChecks() StaticSources {
	return StaticSources{Inline(
		outcome("one", nil),
		outcome("two", map[string]any{"error": "two is down"}),
		outcome("three", map[string]any{"output": "fine"}),
		outcome("four", map[string]any{"warning": "four is slow"}),
		outcome("five", nil),
	)}
}

func TestRunnerCollectsInOrder(t *testing.T) {
	r := NewRunner(NewLoader(testRegistry(t)), fiveChecks(), WithLogger(zap.NewNop()))

	rep := r.Run(context.Background())

	require.Len(t, rep.Checks, 5)
	names := make([]string, len(rep.Checks))
	for i, c := range rep.Checks {
		names[i] = c.Name()
		assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	}
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, names)

	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "two is down", rep.Errors[0].Message)
	require.Len(t, rep.Warnings, 1)
	assert.Equal(t, "four is slow", rep.Warnings[0].Message)

	assert.Equal(t, StatusError, rep.Checks[1].Status())
	assert.Equal(t, StatusWarning, rep.Checks[3].Status())
	assert.Equal(t, "fine", rep.Checks[2].Output)
	assert.Equal(t, StatusError, rep.Status())
	assert.GreaterOrEqual(t, rep.Elapsed, time.Duration(0))
}

func TestRunnerReportsMisconfiguredEntries(t *testing.T) {
	src := StaticSources{
		InlineRaw([]any{
			map[string]any{"name": "ok", "kind": "outcome"},
			map[string]any{"name": "broken", "kind": "nope"},
		}),
		References("missing"),
	}
	r := NewRunner(NewLoader(testRegistry(t), WithLoaderLogger(zap.NewNop())), src, WithLogger(zap.NewNop()))

	rep := r.Run(context.Background())

	require.Len(t, rep.Checks, 2)
	broken := rep.Checks[1]
	assert.Equal(t, "broken", broken.Name())
	assert.Equal(t, StatusError, broken.Status())
	assert.Equal(t, `check "broken" is misconfigured: unknown check kind: nope`, broken.Output)
	require.Len(t, rep.Errors, 1)
	assert.Same(t, broken.Error, rep.Errors[0])
}

func TestRunnerKeepsFileOrderAroundBadEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checks.yaml"), []byte(`
- {name: a, kind: outcome}
- {name: b}
- {name: c, kind: outcome}
`), 0o644))
	l := NewLoader(testRegistry(t), WithResolver(FileResolver{BaseDir: dir}), WithLoaderLogger(zap.NewNop()))
	r := NewRunner(l, StaticSources{References("checks.yaml")}, WithLogger(zap.NewNop()))

	rep := r.Run(context.Background())

	require.Len(t, rep.Checks, 3)
	var got []string
	for _, c := range rep.Checks {
		got = append(got, c.Name()+" "+c.Status().String())
	}
	assert.Equal(t, []string{"a normal", "b error", "c normal"}, got)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0].Message, "missing kind")
}

func TestRunnerReadsSourcesEachRun(t *testing.T) {
	src := &switchableSources{}
	r := NewRunner(NewLoader(testRegistry(t)), src, WithLogger(zap.NewNop()))

	src.set(Inline(outcome("a", nil)))
	assert.Len(t, r.Run(context.Background()).Checks, 1)

	src.set(Inline(outcome("a", nil), outcome("b", nil)))
	assert.Len(t, r.Run(context.Background()).Checks, 2)
}

func TestRunnerCheckTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("slow", func(string, map[string]any) (Probe, error) {
		return ProbeFunc(func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		}), nil
	})
	r := NewRunner(NewLoader(reg), StaticSources{Inline(CheckSpec{Name: "s", Kind: "slow"})},
		WithCheckTimeout(20*time.Millisecond), WithLogger(zap.NewNop()))

	rep := r.Run(context.Background())
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "context deadline exceeded", rep.Checks[0].Output)
	assert.True(t, strings.HasPrefix(rep.Errors[0].Message, "context.deadlineExceededError"))
}

func TestRunnerMetrics(t *testing.T) {
	m, err := NewPrometheusMetricsCollector(nil)
	require.NoError(t, err)
	src := StaticSources{InlineRaw([]any{
		map[string]any{"name": "one", "kind": "outcome"},
		map[string]any{"name": "two", "kind": "outcome", "params": map[string]any{"warning": "w"}},
		map[string]any{"name": "bad", "kind": "nope"},
	})}
	r := NewRunner(NewLoader(testRegistry(t), WithLoaderLogger(zap.NewNop())), src,
		WithMetrics(m), WithLogger(zap.NewNop()))

	r.Run(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("one", "outcome", "normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("two", "outcome", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.specErrorsTotal.WithLabelValues("bad")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reportChecks))
}

func TestRunnerTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())
	tm := tracing.NewTracingManagerWithProvider(tp, "test")

	r := NewRunner(NewLoader(testRegistry(t)), StaticSources{Inline(
		outcome("a", nil),
		outcome("b", map[string]any{"error": "down"}),
	)}, WithTracing(tm), WithLogger(zap.NewNop()))
	r.Run(context.Background())

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for i, want := range []string{"normal", "error"} {
		assert.Equal(t, "status.check", spans[i].Name())
		attrs := map[attribute.Key]string{}
		for _, kv := range spans[i].Attributes() {
			attrs[kv.Key] = kv.Value.Emit()
		}
		assert.Equal(t, want, attrs["check.status"])
	}
}

func TestReportView(t *testing.T) {
	r := NewRunner(NewLoader(testRegistry(t)), fiveChecks(), WithLogger(zap.NewNop()))
	v := r.Run(context.Background()).View()

	assert.Equal(t, StatusError, v.Status)
	require.Len(t, v.Checks, 5)
	assert.Equal(t, CheckView{Name: "two", Kind: "outcome", Status: StatusError, Output: "two is down", Elapsed: v.Checks[1].Elapsed}, v.Checks[1])
	assert.Equal(t, []string{"two is down"}, v.Errors)
	assert.Equal(t, []string{"four is slow"}, v.Warnings)
}

type switchableSources struct {
	sources []Source
}

func (s *switchableSources) set(src ...Source) { s.sources = src }

func (s *switchableSources) Sources() []Source { return s.sources }
