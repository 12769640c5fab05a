/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONDetails lists the required keys an output object lacked.
type JSONDetails struct {
	RequiredKeys []string `json:"requiredKeys"`
	MissingKeys  []string `json:"missingKeys"`
}

type jsonValid struct{}

func (jsonValid) Evaluate(_ context.Context, output string, mc Context) Outcome {
	var doc any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		return fail(fmt.Sprintf("output is not valid JSON: %v", err))
	}

	required, ok := mc.Example.RequiredKeys()
	if !ok || len(required) == 0 {
		return Outcome{Passed: true, Score: 1}
	}

	// A document that is not an object has none of the keys.
	obj, _ := doc.(map[string]any)
	missing := make([]string, 0, len(required))
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}

	details := JSONDetails{RequiredKeys: required, MissingKeys: missing}
	score := 1 - float64(len(missing))/float64(len(required))
	if len(missing) > 0 {
		return Outcome{
			Passed:  false,
			Score:   score,
			Reason:  "missing required keys: " + strings.Join(missing, ", "),
			Details: details,
		}
	}
	return Outcome{Passed: true, Score: score, Details: details}
}
