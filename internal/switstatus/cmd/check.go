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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/innovationmech/switstatus/pkg/status"
)

// exitError makes the process exit with code without printing anything.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

var statusColors = map[status.Status]*color.Color{
	status.StatusNormal:  color.New(color.FgGreen, color.Bold),
	status.StatusWarning: color.New(color.FgYellow, color.Bold),
	status.StatusError:   color.New(color.FgRed, color.Bold),
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	var (
		asJSON        bool
		failOnWarning bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run every configured check once and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := opts.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDependencies(d)

			view := d.Runner.Run(cmd.Context()).View()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(view); err != nil {
					return err
				}
			} else {
				printReport(out, view)
			}
			return reportExit(view, failOnWarning)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&failOnWarning, "fail-on-warning", false, "exit non-zero on warnings too")
	return cmd
}

func reportExit(view status.ReportView, failOnWarning bool) error {
	switch {
	case len(view.Errors) > 0:
		return &exitError{code: 1, msg: fmt.Sprintf("%d check(s) failed", len(view.Errors))}
	case failOnWarning && len(view.Warnings) > 0:
		return &exitError{code: 1, msg: fmt.Sprintf("%d check(s) warned", len(view.Warnings))}
	}
	return nil
}

func printReport(w io.Writer, view status.ReportView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSTATUS\tELAPSED\tOUTPUT")
	for _, c := range view.Checks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3fs\t%s\n",
			c.Name, c.Kind, paint(c.Status), c.Elapsed, firstLine(c.Output))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%s: %d check(s), %d error(s), %d warning(s) in %.3fs\n",
		paint(view.Status), len(view.Checks), len(view.Errors), len(view.Warnings), view.Elapsed)
}

func paint(s status.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(strings.ToUpper(s.String()))
	}
	return strings.ToUpper(s.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
