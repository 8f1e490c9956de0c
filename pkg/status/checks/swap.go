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

package checks

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/innovationmech/switstatus/pkg/status"
)

// SwapConfig configures the swap check. Limit is a byte count, a size such
// as "512MB", or a percentage of the host's total swap, such as "25%".
type SwapConfig struct {
	Limit any `mapstructure:"limit"`
}

// SwapLimit is a parsed swap threshold.
type SwapLimit struct {
	Bytes   uint64
	Percent float64
	percent bool
}

// IsPercent reports whether the limit is relative to total swap.
func (l SwapLimit) IsPercent() bool { return l.percent }

var sizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([kmgt]i?b?|b)?$`)

// Size units are powers of 1024, the same KB the check reports in.
var sizeUnits = map[string]uint64{
	"":  1,
	"b": 1,
	"k": 1 << 10,
	"m": 1 << 20,
	"g": 1 << 30,
	"t": 1 << 40,
}

// ParseSwapLimit parses a byte count given as any integer or float, a size
// string such as "512MB" or "1.5GiB", or a "N%" string.
func ParseSwapLimit(v any) (SwapLimit, error) {
	if v == nil {
		return SwapLimit{}, nil
	}
	if s, ok := v.(string); ok {
		return parseSwapLimitString(s)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return SwapLimit{}, fmt.Errorf("swap limit must not be negative: %d", rv.Int())
		}
		return SwapLimit{Bytes: uint64(rv.Int())}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return SwapLimit{Bytes: rv.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return SwapLimit{}, fmt.Errorf("invalid swap limit: %v", f)
		}
		return SwapLimit{Bytes: uint64(f)}, nil
	}
	return SwapLimit{}, fmt.Errorf("invalid swap limit type %T", v)
}

func parseSwapLimitString(raw string) (SwapLimit, error) {
	s := strings.TrimSpace(raw)
	if p, ok := strings.CutSuffix(s, "%"); ok {
		pct, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || pct < 0 || pct > 100 {
			return SwapLimit{}, fmt.Errorf("invalid swap limit percentage %q", raw)
		}
		return SwapLimit{Percent: pct, percent: true}, nil
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return SwapLimit{}, fmt.Errorf("invalid swap limit %q", raw)
	}
	unit := strings.ToLower(m[2])
	mult := sizeUnits[unit[:min(len(unit), 1)]]
	if !strings.Contains(m[1], ".") {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil || n > math.MaxUint64/mult {
			return SwapLimit{}, fmt.Errorf("swap limit %q out of range", raw)
		}
		return SwapLimit{Bytes: n * mult}, nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil || f*float64(mult) >= math.MaxUint64 {
		return SwapLimit{}, fmt.Errorf("swap limit %q out of range", raw)
	}
	return SwapLimit{Bytes: uint64(f * float64(mult))}, nil
}

// Swap warns when the current user's processes use more swap than allowed.
type Swap struct {
	Limit     SwapLimit
	inspector SwapInspector
}

// NewSwap decodes params and returns the check probe.
func NewSwap(params map[string]any, inspector SwapInspector) (*Swap, error) {
	var cfg SwapConfig
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	limit, err := ParseSwapLimit(cfg.Limit)
	if err != nil {
		return nil, err
	}
	return &Swap{Limit: limit, inspector: inspector}, nil
}

func (s *Swap) Probe(ctx context.Context) (string, error) {
	limit, err := s.limitBytes(ctx)
	if err != nil {
		return "", err
	}
	used, err := s.inspector.UserSwap(ctx)
	if err != nil {
		return "", err
	}

	msg := fmt.Sprintf("the user swap memory is: %.0f KB (limit: %.0f KB)", kib(used), kib(limit))
	if used > limit {
		return "", status.NewCheckWarning(msg,
			status.WithLogMessage("the user swap memory is above %.0f KB", kib(limit)))
	}
	return msg, nil
}

func (s *Swap) limitBytes(ctx context.Context) (uint64, error) {
	if !s.Limit.percent {
		return s.Limit.Bytes, nil
	}
	total, err := s.inspector.TotalSwap(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(float64(total) * s.Limit.Percent / 100), nil
}

func kib(b uint64) float64 { return float64(b) / 1024 }
