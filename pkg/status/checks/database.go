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
)

// DefaultModelName is the entity counted when none is configured.
const DefaultModelName = "sessions.Session"

// DatabaseConfig configures the database check.
type DatabaseConfig struct {
	ModelName     string `mapstructure:"model_name"`
	DatabaseAlias string `mapstructure:"database_alias"`
}

// Database counts the rows of one entity to prove the database answers.
type Database struct {
	Config  DatabaseConfig
	counter EntityCounter
}

// NewDatabase decodes params and returns the check probe.
func NewDatabase(params map[string]any, counter EntityCounter) (*Database, error) {
	cfg := DatabaseConfig{ModelName: DefaultModelName}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}
	return &Database{Config: cfg, counter: counter}, nil
}

func (d *Database) Probe(ctx context.Context) (string, error) {
	n, db, err := d.counter.Count(ctx, d.Config.ModelName, d.Config.DatabaseAlias)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (db: %s) %d OK", d.Config.ModelName, db, n), nil
}
