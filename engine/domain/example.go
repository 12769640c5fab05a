/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Variable is a single named input value of an example.
type Variable struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Variables is an ordered set of input variables.
type Variables []Variable

// Lookup returns the value bound to name.
func (v Variables) Lookup(name string) (any, bool) {
	for _, vv := range v {
		if vv.Name == name {
			return vv.Value, true
		}
	}
	return nil, false
}

// Map returns the variables as an unordered map.
func (v Variables) Map() map[string]any {
	out := make(map[string]any, len(v))
	for _, vv := range v {
		out[vv.Name] = vv.Value
	}
	return out
}

// MarshalJSON renders the variables as a JSON object, preserving order.
func (v Variables) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, vv := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(vv.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(vv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the key order of the document.
func (v *Variables) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Variables{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Variable{Name: name, Value: value})
	}
	*v = out
	return nil
}

// RequiredKeysMetadata is the metadata key json_valid consults for the keys
// an output object must carry.
const RequiredKeysMetadata = "requiredKeys"

// Example is one immutable row of a dataset.
type Example struct {
	ID             string         `json:"id"`
	DatasetID      string         `json:"datasetId"`
	InputVariables Variables      `json:"inputVariables"`
	ExpectedOutput *string        `json:"expectedOutput,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Expected returns the labeled output, reporting false when the example is
// unlabeled or its label is blank.
func (e Example) Expected() (string, bool) {
	if e.ExpectedOutput == nil || strings.TrimSpace(*e.ExpectedOutput) == "" {
		return "", false
	}
	return *e.ExpectedOutput, true
}

// RequiredKeys returns metadata.requiredKeys when it is a list.
// Non-string entries are skipped.
func (e Example) RequiredKeys() ([]string, bool) {
	raw, ok := e.Metadata[RequiredKeysMetadata]
	if !ok {
		return nil, false
	}
	switch keys := raw.(type) {
	case []string:
		return keys, true
	case []any:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Labeled is a convenience for building an expected output pointer.
func Labeled(s string) *string {
	return &s
}
