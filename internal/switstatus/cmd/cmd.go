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

// Package cmd implements the swit-status command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/innovationmech/switstatus/internal/switstatus/config"
	"github.com/innovationmech/switstatus/internal/switstatus/deps"
	pkgconfig "github.com/innovationmech/switstatus/pkg/config"
	"github.com/innovationmech/switstatus/pkg/logger"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configDir string
	env       string
}

// NewRootCommand creates the swit-status command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "swit-status",
		Short:         "Run and report service health checks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory holding swit-status.yaml")
	cmd.PersistentFlags().StringVar(&opts.env, "env", "", "environment name, selects swit-status.<env>.yaml")

	cmd.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newCheckCommand(opts),
		newPollCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// load reads the configuration and applies its logging section.
func (o *rootOptions) load() (*config.Store, error) {
	opts := pkgconfig.DefaultOptions()
	opts.WorkDir = o.configDir
	opts.EnvironmentName = o.env

	store := config.NewStore(opts)
	cfg, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Configure(cfg.Log); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return store, nil
}

func (o *rootOptions) dependencies(ctx context.Context) (*deps.Dependencies, error) {
	store, err := o.load()
	if err != nil {
		return nil, err
	}
	return deps.NewDependencies(ctx, store)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "swit-status version %s\n", Version)
		},
	}
}
