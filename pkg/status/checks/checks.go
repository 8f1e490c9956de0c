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

// Package checks holds the built-in health checks: database row counts,
// swap-memory pressure and worker liveness.
package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/innovationmech/switstatus/pkg/control"
	"github.com/innovationmech/switstatus/pkg/status"
)

// Kinds under which the built-in checks are registered.
const (
	KindDatabase = "database"
	KindSwap     = "swap"
	KindWorkers  = "workers"
)

// Legacy kind names still accepted in configuration.
var legacyAliases = map[string]string{
	"service_status.checks.DatabaseCheck": KindDatabase,
	"service_status.checks.SwapCheck":     KindSwap,
	"service_status.checks.CeleryCheck":   KindWorkers,
}

// EntityCounter counts stored rows of an entity on a named database. It
// returns the identifier of the database the count ran on.
type EntityCounter interface {
	Count(ctx context.Context, entity, alias string) (int64, string, error)
}

// SwapInspector reads swap usage in bytes.
type SwapInspector interface {
	UserSwap(ctx context.Context) (uint64, error)
	TotalSwap(ctx context.Context) (uint64, error)
}

// ControlApps resolves a control application name to a pinger.
type ControlApps interface {
	Lookup(name string) (control.Pinger, error)
}

// Dependencies are the collaborators the built-in checks talk to. A nil
// collaborator leaves its check registered; building it then fails.
type Dependencies struct {
	Counter EntityCounter
	Swap    SwapInspector
	Control ControlApps
}

var errMissingDependency = errors.New("check dependency not configured")

// Register adds the built-in checks and their legacy aliases to reg.
func Register(reg *status.Registry, deps Dependencies) error {
	factories := map[string]status.Factory{
		KindDatabase: func(name string, params map[string]any) (status.Probe, error) {
			if deps.Counter == nil {
				return nil, fmt.Errorf("%w: entity counter", errMissingDependency)
			}
			return NewDatabase(params, deps.Counter)
		},
		KindSwap: func(name string, params map[string]any) (status.Probe, error) {
			if deps.Swap == nil {
				return nil, fmt.Errorf("%w: swap inspector", errMissingDependency)
			}
			return NewSwap(params, deps.Swap)
		},
		KindWorkers: func(name string, params map[string]any) (status.Probe, error) {
			if deps.Control == nil {
				return nil, fmt.Errorf("%w: control applications", errMissingDependency)
			}
			return NewWorkers(params, deps.Control)
		},
	}
	for _, kind := range []string{KindDatabase, KindSwap, KindWorkers} {
		if err := reg.Register(kind, factories[kind]); err != nil {
			return err
		}
	}
	for alias, kind := range legacyAliases {
		if err := reg.Alias(alias, kind); err != nil {
			return err
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode fills out from params. Unknown keys are rejected.
func decode(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		MatchName:        strings.EqualFold,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return err
	}
	return validate.Struct(out)
}
