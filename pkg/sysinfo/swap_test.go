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

package sysinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	uids    []uint32
	uidErr  error
	swap    uint64
	infoErr error
}

func (p fakeProc) UidsWithContext(context.Context) ([]uint32, error) { return p.uids, p.uidErr }

func (p fakeProc) MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error) {
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	return &process.MemoryInfoStat{Swap: p.swap}, nil
}

func TestUserSwapSumsOwnProcesses(t *testing.T) {
	gone := errors.New("process vanished")
	i := &Inspector{
		uid: 1000,
		processes: func(context.Context) ([]proc, error) {
			return []proc{
				fakeProc{uids: []uint32{1000, 1000}, swap: 4096},
				fakeProc{uids: []uint32{1000}, swap: 1024},
				fakeProc{uids: []uint32{0}, swap: 1 << 30},
				fakeProc{uidErr: gone},
				fakeProc{uids: []uint32{1000}, infoErr: gone},
				fakeProc{},
			}, nil
		},
	}

	got, err := i.UserSwap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5120), got)
}

func TestUserSwapListError(t *testing.T) {
	boom := errors.New("no /proc")
	i := &Inspector{processes: func(context.Context) ([]proc, error) { return nil, boom }}

	_, err := i.UserSwap(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTotalSwap(t *testing.T) {
	i := &Inspector{swapTotal: func(context.Context) (uint64, error) { return 8 << 30, nil }}

	got, err := i.TotalSwap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<30), got)
}

func TestNewInspectorReadsHost(t *testing.T) {
	i := NewInspector()

	_, err := i.UserSwap(context.Background())
	assert.NoError(t, err)
}
