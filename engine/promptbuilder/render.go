/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"fmt"
)

// MissingVariableError reports a placeholder with no matching variable.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing input variable %q", e.Name)
}

// Render substitutes vars into template. Strings are inserted as-is,
// other scalars with their default formatting and structured values as
// compact JSON. A placeholder without a variable is an error.
func Render(template string, vars map[string]any) (string, error) {
	return walkTemplate(template, func(name string) (string, error) {
		v, ok := vars[name]
		if !ok {
			return "", &MissingVariableError{Name: name}
		}
		return formatValue(v)
	})
}

func formatValue(v any) (string, error) {
	switch vv := v.(type) {
	case nil:
		return "", nil
	case string:
		return vv, nil
	case json.Number:
		return vv.String(), nil
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(vv), nil
	default:
		b, err := json.Marshal(vv)
		if err != nil {
			return "", fmt.Errorf("format value: %w", err)
		}
		return string(b), nil
	}
}
