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

// Package sysinfo reads memory figures of the running host.
package sysinfo

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// proc is the part of a gopsutil process used here.
type proc interface {
	UidsWithContext(ctx context.Context) ([]uint32, error)
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
}

// Inspector reports swap usage.
type Inspector struct {
	uid       int64
	processes func(ctx context.Context) ([]proc, error)
	swapTotal func(ctx context.Context) (uint64, error)
}

// NewInspector inspects processes owned by the current user.
func NewInspector() *Inspector {
	return &Inspector{
		uid: int64(os.Getuid()),
		processes: func(ctx context.Context) ([]proc, error) {
			ps, err := process.ProcessesWithContext(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]proc, len(ps))
			for i, p := range ps {
				out[i] = p
			}
			return out, nil
		},
		swapTotal: func(ctx context.Context) (uint64, error) {
			s, err := mem.SwapMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return s.Total, nil
		},
	}
}

// UserSwap sums the swap, in bytes, used by processes whose real uid is the
// current user's. Processes that vanish or cannot be read are skipped.
func (i *Inspector) UserSwap(ctx context.Context) (uint64, error) {
	ps, err := i.processes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	var total uint64
	for _, p := range ps {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		uids, err := p.UidsWithContext(ctx)
		if err != nil || len(uids) == 0 || int64(uids[0]) != i.uid {
			continue
		}
		info, err := p.MemoryInfoWithContext(ctx)
		if err != nil || info == nil {
			continue
		}
		total += info.Swap
	}
	return total, nil
}

// TotalSwap returns the host's configured swap in bytes.
func (i *Inspector) TotalSwap(ctx context.Context) (uint64, error) {
	total, err := i.swapTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("read swap memory: %w", err)
	}
	return total, nil
}
