/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// schemaText renders the JSON schema of v for embedding in a judge prompt.
func schemaText(v any) string {
	b, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("reflect judge schema: %v", err))
	}
	return string(b)
}

// decodeJudgeJSON extracts the JSON object from a judge response, tolerating
// markdown code fences and surrounding prose.
func decodeJudgeJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return errors.New("judge response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse judge response: %w", err)
	}
	return nil
}

func judgeFailure(err error, details any) Outcome {
	return Outcome{
		Passed:  false,
		Score:   0,
		Reason:  fmt.Sprintf("judge error: %v", err),
		Details: details,
	}
}
