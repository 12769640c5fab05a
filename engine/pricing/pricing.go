/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pricing estimates the USD cost of model calls from token usage.
package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"chainguard.dev/promptlab/engine/llm"
)

// ModelPricing is the price of a model in USD per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps model names to prices.
type Table struct {
	Models map[string]ModelPricing
}

//go:embed default.yaml
var defaultTable []byte

// Default returns the built-in price table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("built-in pricing table: %v", err))
	}
	return t
}

// Load reads a YAML price table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML price table.
func Parse(data []byte) (*Table, error) {
	var models map[string]ModelPricing
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Models: models}, nil
}

// Lookup finds the price of model. Versioned names such as
// "claude-sonnet-4-5@20250929" match their longest priced prefix.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	if t == nil || t.Models == nil {
		return ModelPricing{}, false
	}
	if p, ok := t.Models[model]; ok {
		return p, true
	}
	var best string
	for name := range t.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return t.Models[best], true
}

// Estimate returns the cost of one call. Unknown models cost nothing. When a
// provider reports only a total, it is priced as input tokens.
func (t *Table) Estimate(model string, u llm.Usage) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	in, out := u.InputTokens, u.OutputTokens
	if in == 0 && out == 0 {
		in = u.TotalTokens
	}
	return (float64(in)/1000.0)*p.Input + (float64(out)/1000.0)*p.Output
}
