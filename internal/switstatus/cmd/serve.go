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
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/innovationmech/switstatus/internal/switstatus/deps"
	"github.com/innovationmech/switstatus/internal/switstatus/server"
	"github.com/innovationmech/switstatus/pkg/logger"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		withWorker bool
		workerName string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status HTTP server",
		Long: `Start the status HTTP server. GET /api/v1/status runs every check in
process; /api/v1/status/async hands them to workers. Configuration files
are watched and reloaded while the server runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := opts.dependencies(ctx)
			if err != nil {
				return err
			}
			defer closeDependencies(d)

			srvOpts := server.Options{
				Runner:     d.Runner,
				Dispatcher: d.Dispatcher,
				Tracing:    d.Tracing,
				Sentry:     d.Sentry,
			}
			if d.Metrics != nil {
				srvOpts.Metrics = d.Metrics.GetRegistry()
			}
			srv := server.New(d.Store.Current(), srvOpts)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(ctx) })
			g.Go(func() error { return watch(ctx, d) })
			if withWorker {
				g.Go(func() error { return d.RunWorker(ctx, workerName) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also execute check tasks in this process")
	cmd.Flags().StringVar(&workerName, "worker-name", defaultWorkerName(), "control name of the in-process worker")
	return cmd
}

// watch reloads the configuration until ctx is done. A watcher that cannot
// start is logged, not fatal.
func watch(ctx context.Context, d *deps.Dependencies) error {
	if err := d.Store.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().Warn("configuration watcher stopped", zap.Error(err))
	}
	return nil
}

func closeDependencies(d *deps.Dependencies) {
	if err := d.Close(); err != nil {
		logger.GetLogger().Warn("closing dependencies failed", zap.Error(err))
	}
}

func defaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return "worker@" + host
}
