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

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/innovationmech/switstatus/internal/switstatus/config"
	"github.com/innovationmech/switstatus/pkg/logger"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute check tasks from the configured broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := opts.dependencies(ctx)
			if err != nil {
				return err
			}
			defer closeDependencies(d)

			if d.Store.Current().Queue.Broker == config.QueueMemory {
				logger.GetLogger().Warn("the memory broker only carries tasks submitted in this process; use serve --with-worker instead")
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watch(ctx, d) })
			g.Go(func() error { return d.RunWorker(ctx, name) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&name, "name", defaultWorkerName(), "name the worker answers control pings under")
	return cmd
}
