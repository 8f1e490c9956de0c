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
	"fmt"
	"maps"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// CheckSpec is the declarative description of one check.
type CheckSpec struct {
	Name   string         `mapstructure:"name" json:"name" yaml:"name"`
	Kind   string         `mapstructure:"kind" json:"kind" yaml:"kind"`
	Params map[string]any `mapstructure:"params" json:"params,omitempty" yaml:"params,omitempty"`
}

func (s CheckSpec) clone() CheckSpec {
	out := s
	if s.Params != nil {
		out.Params = maps.Clone(s.Params)
	}
	return out
}

// DecodeSpecs turns raw configuration entries into specs. Two entry shapes
// are accepted:
//
//	{name: db, kind: database, params: {model_name: sessions.Session}}
//	[db, {fqn: service_status.checks.DatabaseCheck, kwargs: {...}}]
//
// "fqn" and "kwargs" are accepted as aliases of "kind" and "params" in both.
// Entries that cannot be decoded are returned as *SpecError values alongside
// the specs that could.
func DecodeSpecs(raw any) ([]CheckSpec, []error) {
	var (
		specs []CheckSpec
		errs  []error
	)
	for _, e := range decodeEntries(raw) {
		if e.err != nil {
			errs = append(errs, e.err)
			continue
		}
		specs = append(specs, e.spec)
	}
	return specs, errs
}

func decodeEntries(raw any) []sourceEntry {
	if raw == nil {
		return nil
	}
	list, ok := asSlice(raw)
	if !ok {
		return []sourceEntry{{err: &SpecError{Name: "<checks>", Cause: fmt.Errorf("%w: expected a list, got %T", ErrInvalidSpec, raw)}}}
	}

	entries := make([]sourceEntry, 0, len(list))
	for i, item := range list {
		spec, err := DecodeSpec(item)
		if err != nil {
			name := spec.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			entries = append(entries, sourceEntry{err: &SpecError{Name: name, Kind: spec.Kind, Cause: err}})
			continue
		}
		entries = append(entries, sourceEntry{spec: spec})
	}
	return entries
}

// DecodeSpec decodes a single configuration entry. On failure the returned
// spec carries whatever name and kind could be read.
func DecodeSpec(entry any) (CheckSpec, error) {
	switch v := entry.(type) {
	case CheckSpec:
		return v, validateSpec(v)
	case *CheckSpec:
		if v == nil {
			return CheckSpec{}, fmt.Errorf("%w: nil entry", ErrInvalidSpec)
		}
		return *v, validateSpec(*v)
	}

	if pair, ok := asSlice(entry); ok {
		return decodePair(pair)
	}
	if m, ok := asMap(entry); ok {
		return decodeMap(m)
	}
	return CheckSpec{}, fmt.Errorf("%w: unsupported entry type %T", ErrInvalidSpec, entry)
}

func decodePair(pair []any) (CheckSpec, error) {
	if len(pair) != 2 {
		return CheckSpec{}, fmt.Errorf("%w: expected [name, {kind, params}], got %d items", ErrInvalidSpec, len(pair))
	}
	name, ok := pair[0].(string)
	if !ok {
		return CheckSpec{}, fmt.Errorf("%w: name must be a string, got %T", ErrInvalidSpec, pair[0])
	}
	body, ok := asMap(pair[1])
	if !ok {
		return CheckSpec{Name: name}, fmt.Errorf("%w: definition must be a mapping, got %T", ErrInvalidSpec, pair[1])
	}
	body = maps.Clone(body)
	body["name"] = name
	return decodeMap(body)
}

type rawSpec struct {
	Name   string         `mapstructure:"name"`
	Kind   string         `mapstructure:"kind"`
	FQN    string         `mapstructure:"fqn"`
	Params map[string]any `mapstructure:"params"`
	Kwargs map[string]any `mapstructure:"kwargs"`
}

func decodeMap(m map[string]any) (CheckSpec, error) {
	var raw rawSpec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &raw,
		ErrorUnused: true,
		MatchName:   strings.EqualFold,
	})
	if err != nil {
		return CheckSpec{}, err
	}
	if err := dec.Decode(m); err != nil {
		name, _ := m["name"].(string)
		return CheckSpec{Name: name}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	spec := CheckSpec{Name: raw.Name, Kind: raw.Kind, Params: raw.Params}
	if spec.Kind == "" {
		spec.Kind = raw.FQN
	} else if raw.FQN != "" && raw.FQN != raw.Kind {
		return spec, fmt.Errorf("%w: kind %q and fqn %q disagree", ErrInvalidSpec, raw.Kind, raw.FQN)
	}
	if spec.Params == nil {
		spec.Params = raw.Kwargs
	} else if raw.Kwargs != nil {
		return spec, fmt.Errorf("%w: both params and kwargs given", ErrInvalidSpec)
	}
	return spec, validateSpec(spec)
}

func validateSpec(s CheckSpec) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSpec)
	}
	if strings.TrimSpace(s.Kind) == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidSpec)
	}
	return nil
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []CheckSpec:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

// asMap normalizes the map shapes produced by viper, yaml.v3 and JSON.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
