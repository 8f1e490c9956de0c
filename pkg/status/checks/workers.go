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

	"github.com/innovationmech/switstatus/pkg/status"
)

// DefaultControlApp is the control application used when none is named.
const DefaultControlApp = "default"

// WorkersConfig configures the workers check. CeleryAppFQN is the legacy
// spelling of ControlApp.
type WorkersConfig struct {
	ControlApp   string   `mapstructure:"control_app"`
	CeleryAppFQN string   `mapstructure:"celery_app_fqn"`
	WorkerNames  []string `mapstructure:"worker_names" validate:"required,min=1,dive,required"`
}

// Workers pings each named worker and fails on the first one that does not
// answer pong.
type Workers struct {
	Config WorkersConfig
	apps   ControlApps
}

// NewWorkers decodes params and returns the check probe.
func NewWorkers(params map[string]any, apps ControlApps) (*Workers, error) {
	var cfg WorkersConfig
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.ControlApp != "" && cfg.CeleryAppFQN != "" && cfg.ControlApp != cfg.CeleryAppFQN:
		return nil, fmt.Errorf("control_app %q and celery_app_fqn %q disagree", cfg.ControlApp, cfg.CeleryAppFQN)
	case cfg.ControlApp == "":
		cfg.ControlApp = cfg.CeleryAppFQN
	}
	if cfg.ControlApp == "" {
		cfg.ControlApp = DefaultControlApp
	}
	cfg.CeleryAppFQN = ""
	return &Workers{Config: cfg, apps: apps}, nil
}

func (w *Workers) Probe(ctx context.Context) (string, error) {
	pinger, err := w.apps.Lookup(w.Config.ControlApp)
	if err != nil {
		return "", err
	}
	for _, name := range w.Config.WorkerNames {
		replies, err := pinger.Ping(ctx, []string{name})
		if err != nil {
			return "", status.NewCheckError(fmt.Sprintf("worker `%s` did not respond", name),
				status.WithLogMessage("ping worker `%s`: %v", name, err))
		}
		reply, ok := replies[name]
		if !ok {
			return "", status.Errorf("worker `%s` was not found", name)
		}
		if !reply.IsPong() {
			return "", status.Errorf("worker `%s` did not respond", name)
		}
	}
	return fmt.Sprintf("got response from %d worker(s)", len(w.Config.WorkerNames)), nil
}
