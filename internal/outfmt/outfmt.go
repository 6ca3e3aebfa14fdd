// Package outfmt renders command results as text tables, JSON, or YAML.
package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/digitalliving/life-engine-cli/internal/filter"
)

// Mode is an output format.
type Mode int

const (
	Text Mode = iota
	JSON
	YAML
)

var modeNames = map[string]Mode{
	"":     Text,
	"text": Text,
	"json": JSON,
	"yaml": YAML,
	"yml":  YAML,
}

// Parse maps an --output value to a Mode.
func Parse(s string) (Mode, error) {
	if m, ok := modeNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return Text, fmt.Errorf("invalid output format: %q (use text, json or yaml)", s)
}

func (m Mode) String() string {
	switch m {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	}
	return "text"
}

// Options is everything that shapes printed output for one invocation.
type Options struct {
	Mode    Mode
	Query   string
	Compact bool
}

type optionsKey struct{}

// WithOptions stores opts on the context.
func WithOptions(ctx context.Context, opts Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

// FromContext returns the stored options, or text output with no query.
func FromContext(ctx context.Context) Options {
	opts, _ := ctx.Value(optionsKey{}).(Options)
	return opts
}

// IsStructured is true for every machine-readable mode.
func IsStructured(ctx context.Context) bool {
	return FromContext(ctx).Mode != Text
}

// Apply runs the jq query over v. An empty query returns v untouched.
func (o Options) Apply(v any) (any, error) {
	return filter.ApplyToValue(v, o.Query)
}

// WriteJSON writes v as indented JSON without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	return writeJSON(w, v, false)
}

func writeJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
