/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/judge"
	"chainguard.dev/promptlab/engine/promptbuilder"
)

// CriterionScore is the judge's score for one rubric criterion.
type CriterionScore struct {
	Name      string  `json:"name" jsonschema:"required"`
	Score     float64 `json:"score" jsonschema:"required,minimum=0,maximum=1"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// rubricResponse is what the judge is asked to return.
type rubricResponse struct {
	Criteria     []CriterionScore `json:"criteria" jsonschema:"required"`
	OverallScore *float64         `json:"overallScore,omitempty" jsonschema:"minimum=0,maximum=1"`
	Passed       *bool            `json:"passed,omitempty"`
	Reasoning    string           `json:"reasoning" jsonschema:"required"`
}

// RubricDetails is the structured output of judge_rubric.
type RubricDetails struct {
	Criteria     []CriterionScore `json:"criteria,omitempty"`
	OverallScore float64          `json:"overallScore"`
	Reasoning    string           `json:"reasoning,omitempty"`
	// Derived is set when the judge omitted overallScore or passed and they
	// were computed from the criteria.
	Derived bool `json:"derived,omitempty"`
	Mock    bool `json:"mock,omitempty"`
}

// PassThreshold decides passed when the judge omits it.
const PassThreshold = 0.5

var rubricPrompt = promptbuilder.MustNewPrompt(`<task>
You are grading a model response against a weighted rubric.
Score every criterion independently from 0.0 (fails it completely) to 1.0 (fully satisfies it).
</task>

<input_variables>
{{input_variables}}
</input_variables>

{{expected_output}}

{{response}}

{{criteria}}

{{instructions}}

<output_format>
Return a JSON object conforming to this JSON schema:
{{schema}}

- "criteria" has one entry per rubric criterion, named exactly as in the rubric.
- "overallScore" is the sum of each criterion score multiplied by its weight.
- "passed" is true when the response is acceptable overall.
- "reasoning" briefly justifies the scores.

Respond with only the JSON object, no additional text.
</output_format>`)

var rubricSchema = schemaText(&rubricResponse{})

type judgeRubric struct {
	judge judge.Interface
}

func (*judgeRubric) Requirements() Requirements {
	return Requirements{Rubric: true, Judge: true}
}

func (m *judgeRubric) Evaluate(ctx context.Context, output string, mc Context) Outcome {
	if mc.Rubric == nil {
		return fail("judge_rubric requires a rubric")
	}
	if m.judge == nil {
		return Outcome{
			Passed:  true,
			Score:   0.5,
			Reason:  "mock result: no judge configured",
			Details: RubricDetails{OverallScore: 0.5, Mock: true},
		}
	}

	prompt, err := buildRubricPrompt(output, mc)
	if err != nil {
		return judgeFailure(err, nil)
	}
	raw, err := m.judge.Call(ctx, prompt, mc.Model)
	if err != nil {
		return judgeFailure(err, nil)
	}
	var resp rubricResponse
	if err := decodeJudgeJSON(raw, &resp); err != nil {
		return judgeFailure(err, nil)
	}

	details := RubricDetails{Criteria: resp.Criteria, Reasoning: resp.Reasoning}
	for i := range details.Criteria {
		details.Criteria[i].Score = clamp01(details.Criteria[i].Score)
	}
	if resp.OverallScore != nil {
		details.OverallScore = clamp01(*resp.OverallScore)
	} else {
		details.OverallScore = weightedScore(mc.Rubric.Criteria, details.Criteria)
		details.Derived = true
	}
	passed := details.OverallScore >= PassThreshold
	if resp.Passed != nil {
		passed = *resp.Passed
	} else {
		details.Derived = true
	}

	out := Outcome{Passed: passed, Score: details.OverallScore, Details: details}
	if !passed {
		out.Reason = resp.Reasoning
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("rubric score %.2f below passing", details.OverallScore)
		}
	}
	return out
}

// weightedScore combines criterion scores by rubric weight. Criteria the
// judge did not score count as 0. Without weights it is the plain mean.
func weightedScore(criteria []domain.Criterion, scores []CriterionScore) float64 {
	byName := make(map[string]float64, len(scores))
	for _, s := range scores {
		byName[strings.ToLower(strings.TrimSpace(s.Name))] = s.Score
	}
	var total, weights float64
	for _, c := range criteria {
		weights += c.Weight
		total += c.Weight * byName[strings.ToLower(strings.TrimSpace(c.Name))]
	}
	if weights > 0 {
		return clamp01(total / weights)
	}
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return clamp01(sum / float64(len(scores)))
}

func buildRubricPrompt(output string, mc Context) (string, error) {
	var criteria strings.Builder
	for i, c := range mc.Rubric.Criteria {
		fmt.Fprintf(&criteria, "%d. %s (weight %.2f): %s\n", i+1, c.Name, c.Weight, c.Description)
		if c.ScoringGuide != "" {
			fmt.Fprintf(&criteria, "   Scoring guide: %s\n", c.ScoringGuide)
		}
	}

	instructions := mc.Rubric.Instructions
	if mc.Rubric.OutputFormat == domain.OutputFormatJSON {
		instructions = strings.TrimSpace(instructions + "\nThe response is expected to be a valid JSON document.")
	}

	p, err := rubricPrompt.BindJSON("input_variables", mc.Example.InputVariables)
	if err != nil {
		return "", err
	}
	if expected, ok := mc.Example.Expected(); ok {
		p, err = p.BindSection("expected_output", expected)
	} else {
		p, err = p.BindText("expected_output", "")
	}
	if err != nil {
		return "", err
	}
	if p, err = p.BindSection("response", output); err != nil {
		return "", err
	}
	if p, err = p.BindSection("criteria", criteria.String()); err != nil {
		return "", err
	}
	if instructions != "" {
		p, err = p.BindSection("instructions", instructions)
	} else {
		p, err = p.BindText("instructions", "")
	}
	if err != nil {
		return "", err
	}
	if p, err = p.BindText("schema", rubricSchema); err != nil {
		return "", err
	}
	return p.Build()
}
