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

package tracing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	sqlParamPattern = regexp.MustCompile(`\$\d+|\?`)
	sqlSpacePattern = regexp.MustCompile(`\s+`)
)

// GormTracingConfig holds configuration for GORM tracing
type GormTracingConfig struct {
	DBSystem      string        // value of the db.system attribute, e.g. mysql
	Alias         string        // configured data source alias, recorded as db.alias
	RecordSQL     bool          // record the sanitized statement
	SlowThreshold time.Duration // queries above it get a slow_query event
}

// DefaultGormTracingConfig returns default GORM tracing configuration
func DefaultGormTracingConfig() *GormTracingConfig {
	return &GormTracingConfig{
		DBSystem:      "mysql",
		RecordSQL:     true,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormTracing is a gorm.Plugin that opens a client span around read
// statements. Health probes only read, so writes are not instrumented.
type GormTracing struct {
	tm     TracingManager
	config *GormTracingConfig
}

// NewGormTracing creates a new GORM tracing plugin
func NewGormTracing(tm TracingManager, config *GormTracingConfig) *GormTracing {
	if config == nil {
		config = DefaultGormTracingConfig()
	}
	return &GormTracing{tm: tm, config: config}
}

// Name implements gorm.Plugin.
func (gt *GormTracing) Name() string {
	return "swit-status:tracing"
}

// Initialize implements gorm.Plugin.
func (gt *GormTracing) Initialize(db *gorm.DB) error {
	query := db.Callback().Query()
	if err := query.Before("gorm:query").Register("tracing:before_query", gt.before("SELECT")); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}
	if err := query.After("gorm:query").Register("tracing:after_query", gt.after); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}

	row := db.Callback().Row()
	if err := row.Before("gorm:row").Register("tracing:before_row", gt.before("ROW")); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}
	if err := row.After("gorm:row").Register("tracing:after_row", gt.after); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}

	raw := db.Callback().Raw()
	if err := raw.Before("gorm:raw").Register("tracing:before_raw", gt.before("RAW")); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}
	if err := raw.After("gorm:raw").Register("tracing:after_raw", gt.after); err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}
	return nil
}

func (gt *GormTracing) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		table := db.Statement.Table
		if table == "" && db.Statement.Schema != nil {
			table = db.Statement.Schema.Table
		}
		name := "db:" + strings.ToLower(operation)
		if table != "" {
			name += " " + table
		}

		attrs := []attribute.KeyValue{
			attribute.String("db.system", gt.config.DBSystem),
			attribute.String("db.operation", operation),
		}
		if gt.config.Alias != "" {
			attrs = append(attrs, attribute.String("db.alias", gt.config.Alias))
		}
		if table != "" {
			attrs = append(attrs, attribute.String("db.sql.table", table))
		}

		ctx, span := gt.tm.StartSpan(ctx, name, WithSpanKind(trace.SpanKindClient), WithAttributes(attrs...))
		db.Statement.Context = ctx
		db.Set("tracing:span", span)
		db.Set("tracing:start_time", time.Now())
	}
}

func (gt *GormTracing) after(db *gorm.DB) {
	v, ok := db.Get("tracing:span")
	if !ok {
		return
	}
	span, ok := v.(Span)
	if !ok {
		return
	}
	defer span.End()

	if v, ok := db.Get("tracing:start_time"); ok {
		if start, ok := v.(time.Time); ok {
			took := time.Since(start)
			span.SetAttribute("db.duration_ms", float64(took.Nanoseconds())/1e6)
			if took > gt.config.SlowThreshold {
				span.AddEvent("slow_query", trace.WithAttributes(
					attribute.String("db.slow_threshold", gt.config.SlowThreshold.String()),
				))
			}
		}
	}

	if gt.config.RecordSQL {
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttribute("db.statement", sanitizeSQL(sql))
		}
	}

	if db.Error != nil {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// sanitizeSQL normalizes placeholders and whitespace so no values leak.
func sanitizeSQL(sql string) string {
	s := sqlParamPattern.ReplaceAllString(sql, "?")
	s = sqlSpacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// InstallGormTracing installs tracing on a GORM database instance. A nil
// manager leaves the instance untouched.
func InstallGormTracing(db *gorm.DB, tm TracingManager, config *GormTracingConfig) error {
	if tm == nil {
		return nil
	}
	return db.Use(NewGormTracing(tm, config))
}
