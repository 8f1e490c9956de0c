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

package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type modelProbe struct {
	ModelName string `mapstructure:"model_name"`
}

func (p *modelProbe) Probe(context.Context) (string, error) { return p.ModelName, nil }

type outcomeProbe struct {
	Output  string `mapstructure:"output"`
	Warning string `mapstructure:"warning"`
	Error   string `mapstructure:"error"`
}

func (p *outcomeProbe) Probe(context.Context) (string, error) {
	switch {
	case p.Error != "":
		return "", NewCheckError(p.Error)
	case p.Warning != "":
		return "", NewCheckWarning(p.Warning)
	}
	return p.Output, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister("model", func(_ string, params map[string]any) (Probe, error) {
		p := &modelProbe{ModelName: "sessions.Session"}
		return p, mapstructure.Decode(params, p)
	})
	reg.MustRegister("outcome", func(_ string, params map[string]any) (Probe, error) {
		p := &outcomeProbe{}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: p, ErrorUnused: true})
		if err != nil {
			return nil, err
		}
		return p, dec.Decode(params)
	})
	require.NoError(t, reg.Alias("service_status.checks.DatabaseCheck", "model"))
	return reg
}

func collect(t *testing.T, seq func(func(*Check, error) bool)) ([]*Check, []error) {
	t.Helper()
	var (
		checks []*Check
		errs   []error
	)
	for c, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		checks = append(checks, c)
	}
	return checks, errs
}

func TestRegistryRegisterAndAlias(t *testing.T) {
	reg := testRegistry(t)

	assert.ErrorIs(t, reg.Register("model", func(string, map[string]any) (Probe, error) { return nil, nil }), ErrDuplicateKind)
	assert.ErrorIs(t, reg.Alias("x", "missing"), ErrUnknownKind)
	assert.Error(t, reg.Register("", nil))

	kind, ok := reg.Canonical("service_status.checks.DatabaseCheck")
	assert.True(t, ok)
	assert.Equal(t, "model", kind)
	assert.Equal(t, []string{"model", "outcome"}, reg.Kinds())
}

func TestRegistryBuildUnknownKind(t *testing.T) {
	_, err := testRegistry(t).Build(CheckSpec{Name: "x", Kind: "nope"})

	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "x", se.Name)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, `check "x" is misconfigured: unknown check kind: nope`, err.Error())
}

func TestDecodeSpecForms(t *testing.T) {
	specs, errs := DecodeSpecs([]any{
		[]any{"db", map[string]any{
			"fqn":    "service_status.checks.DatabaseCheck",
			"kwargs": map[string]any{"model_name": "sessions.Session"},
		}},
		map[string]any{"name": "swap", "kind": "swap", "params": map[string]any{"limit": 0}},
		map[string]any{"Name": "cased", "KIND": "swap"},
		map[string]any{"name": "both", "kind": "a", "fqn": "b"},
		map[string]any{"name": "extra", "kind": "swap", "colour": "red"},
		[]any{"short"},
		42,
	})

	require.Len(t, specs, 3)
	assert.Equal(t, CheckSpec{Name: "db", Kind: "service_status.checks.DatabaseCheck", Params: map[string]any{"model_name": "sessions.Session"}}, specs[0])
	assert.Equal(t, "swap", specs[1].Kind)
	assert.Equal(t, "cased", specs[2].Name)

	require.Len(t, errs, 4)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrInvalidSpec)
	}
	var se *SpecError
	require.ErrorAs(t, errs[0], &se)
	assert.Equal(t, "both", se.Name)
	require.ErrorAs(t, errs[3], &se)
	assert.Equal(t, "#6", se.Name)
}

func TestLoadLegacyPair(t *testing.T) {
	l := NewLoader(testRegistry(t))
	src := InlineRaw([]any{
		[]any{"db", map[string]any{
			"fqn":    "service_status.checks.DatabaseCheck",
			"kwargs": map[string]any{"model_name": "sessions.Session"},
		}},
	})

	checks, errs := collect(t, l.Load(context.Background(), src))
	require.Empty(t, errs)
	require.Len(t, checks, 1)
	assert.Equal(t, "db", checks[0].Name())
	assert.Equal(t, "service_status.checks.DatabaseCheck", checks[0].Kind())
	assert.Equal(t, "sessions.Session", checks[0].Probe().(*modelProbe).ModelName)
}

func TestLoadUnresolvableReferenceYieldsNothing(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(testRegistry(t), WithResolver(NewCatalogResolver()), WithLoaderLogger(zap.New(core)))

	checks, errs := collect(t, l.Load(context.Background(), References("project.missing.CHECKS")))
	assert.Empty(t, checks)
	assert.Empty(t, errs)
	assert.Equal(t, 1, logs.FilterMessage("check reference could not be resolved").Len())
}

func TestLoadReferencesWithoutResolver(t *testing.T) {
	l := NewLoader(testRegistry(t), WithLoaderLogger(zap.NewNop()))

	checks, errs := collect(t, l.Load(context.Background(), References("a", "b")))
	assert.Empty(t, checks)
	assert.Empty(t, errs)
}

func TestLoadKeepsConfigurationOrder(t *testing.T) {
	l := NewLoader(testRegistry(t), WithLoaderLogger(zap.NewNop()))
	src := InlineRaw([]any{
		map[string]any{"name": "a", "kind": "model"},
		map[string]any{"name": "b", "kind": "unknown"},
		map[string]any{"kind": "model"},
		map[string]any{"name": "c", "kind": "outcome", "params": map[string]any{"bogus": 1}},
		map[string]any{"name": "d", "kind": "outcome"},
	})

	var order []string
	for c, err := range l.Load(context.Background(), src) {
		if err != nil {
			var se *SpecError
			require.ErrorAs(t, err, &se)
			order = append(order, "!"+se.Name)
			continue
		}
		order = append(order, c.Name())
	}
	assert.Equal(t, []string{"a", "!b", "!#2", "!c", "d"}, order)
}

func TestLoadIsRepeatable(t *testing.T) {
	l := NewLoader(testRegistry(t))
	seq := l.Load(context.Background(), Inline(CheckSpec{Name: "a", Kind: "model"}))

	first, _ := collect(t, seq)
	second, _ := collect(t, seq)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotSame(t, first[0], second[0])
}

func TestLoadStopsEarly(t *testing.T) {
	l := NewLoader(testRegistry(t))
	src := Inline(CheckSpec{Name: "a", Kind: "model"}, CheckSpec{Name: "b", Kind: "model"})

	n := 0
	for range l.Load(context.Background(), src) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "list.yaml"), []byte(`
- name: db
  kind: model
  params:
    model_name: blog.Post
- [legacy, {fqn: service_status.checks.DatabaseCheck}]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrapped.json"), []byte(`{"checks": [{"name": "x", "kind": "outcome", "params": {"warning": "slow"}}, {"kind": "outcome"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nochecks.yaml"), []byte("other: 1\n"), 0o644))

	l := NewLoader(testRegistry(t),
		WithResolver(ChainResolver{NewCatalogResolver(), FileResolver{BaseDir: dir}}),
		WithLoaderLogger(zap.NewNop()))

	checks, errs := collect(t, l.Load(context.Background(), References("list.yaml", "missing.yaml", "wrapped.json", "nochecks.yaml")))
	require.Len(t, checks, 3)
	assert.Equal(t, "db", checks[0].Name())
	assert.Equal(t, "blog.Post", checks[0].Probe().(*modelProbe).ModelName)
	assert.Equal(t, "legacy", checks[1].Name())
	assert.Equal(t, "x", checks[2].Name())

	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrInvalidSpec)
	var se *SpecError
	require.ErrorAs(t, errs[1], &se)
	assert.Equal(t, "nochecks.yaml", se.Name)
}

func TestLoadAllChainsSources(t *testing.T) {
	catalog := NewCatalogResolver()
	catalog.Add("extra", CheckSpec{Name: "b", Kind: "model"})
	l := NewLoader(testRegistry(t), WithResolver(catalog))

	checks, errs := collect(t, l.LoadAll(context.Background(), []Source{
		Inline(CheckSpec{Name: "a", Kind: "model"}),
		References("extra"),
	}))
	require.Empty(t, errs)
	require.Len(t, checks, 2)
	assert.Equal(t, "a", checks[0].Name())
	assert.Equal(t, "b", checks[1].Name())
}
