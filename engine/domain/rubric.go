/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

// OutputFormat is the response format a rubric asks the judge for.
type OutputFormat string

const (
	OutputFormatJSON OutputFormat = "json"
	OutputFormatText OutputFormat = "text"
)

// Criterion is one weighted rubric line.
type Criterion struct {
	Name         string  `json:"name" yaml:"name"`
	Description  string  `json:"description" yaml:"description"`
	Weight       float64 `json:"weight" yaml:"weight"`
	ScoringGuide string  `json:"scoringGuide,omitempty" yaml:"scoringGuide,omitempty"`
}

// RubricConfig is a named scoring policy for judge metrics. Weights are
// validated when the rubric is authored; the engine reads it as-is.
type RubricConfig struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Criteria     []Criterion  `json:"criteria" yaml:"criteria"`
	Instructions string       `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	OutputFormat OutputFormat `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty"`
}

// ModelConfig governs a model call (candidate output or judge).
type ModelConfig struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int64   `json:"maxTokens" yaml:"maxTokens" validate:"gte=0"`
}

// ContentSnapshot is the frozen prompt content of a version.
type ContentSnapshot struct {
	System    string `json:"system,omitempty"`
	Developer string `json:"developer,omitempty"`
	User      string `json:"user"`
	Context   string `json:"context,omitempty"`
}

// PromptVersion is a candidate being evaluated.
type PromptVersion struct {
	ID      string          `json:"id"`
	Content ContentSnapshot `json:"content"`
	Model   ModelConfig     `json:"model"`
}
