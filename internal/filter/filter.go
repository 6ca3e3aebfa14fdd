// Package filter applies jq expressions to decoded API response data.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(strings.TrimSpace(expr), `\!`, `!`)
}

// Apply applies a jq filter expression to the input data. The data must
// already be in the shape encoding/json produces (maps, slices, scalars).
// A single result is returned bare; multiple results are returned as a slice.
func Apply(data any, expression string) (any, error) {
	expression = NormalizeExpression(expression)
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	iter := query.Run(data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}

	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// ApplyFromJSON decodes jsonData and applies the filter to it.
func ApplyFromJSON(jsonData []byte, expression string) (any, error) {
	var data any
	if len(jsonData) > 0 {
		if err := json.Unmarshal(jsonData, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return Apply(data, expression)
}

// ApplyToValue round-trips an arbitrary Go value through JSON so typed
// structs can be filtered, then applies the expression.
func ApplyToValue(v any, expression string) (any, error) {
	if NormalizeExpression(expression) == "" {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode filter input: %w", err)
	}
	return ApplyFromJSON(data, expression)
}
