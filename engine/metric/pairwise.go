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

// pairwiseResponse is what the judge is asked to return.
type pairwiseResponse struct {
	Winner    string   `json:"winner" jsonschema:"required,enum=A,enum=B,enum=tie"`
	ScoreA    *float64 `json:"scoreA,omitempty" jsonschema:"minimum=0,maximum=1"`
	ScoreB    *float64 `json:"scoreB,omitempty" jsonschema:"minimum=0,maximum=1"`
	Reasoning string   `json:"reasoning" jsonschema:"required"`
}

// PairwiseDetails is the structured output of pairwise_judge.
type PairwiseDetails struct {
	Winner domain.Winner `json:"winner"`
	// ScoreA and ScoreB are nil when the judge did not score a side.
	ScoreA    *float64 `json:"scoreA,omitempty"`
	ScoreB    *float64 `json:"scoreB,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
	// Indeterminate marks a verdict with no signal: an unrecognized winner,
	// a missing side score or a failed judge call.
	Indeterminate bool `json:"indeterminate,omitempty"`
	Mock          bool `json:"mock,omitempty"`
}

// WinnerScore maps a winner to the outcome score: 1 when B wins, 0 when A
// wins and 0.5 for a tie.
func WinnerScore(w domain.Winner) float64 {
	switch w {
	case domain.WinnerB:
		return 1
	case domain.WinnerA:
		return 0
	default:
		return 0.5
	}
}

var pairwisePrompt = promptbuilder.MustNewPrompt(`<task>
You are comparing two responses to the same input to decide which one is better.
Judge only the responses. Their order carries no meaning.
</task>

<input_variables>
{{input_variables}}
</input_variables>

{{expected_output}}

{{response_a}}

{{response_b}}

{{criteria}}

<output_format>
Return a JSON object conforming to this JSON schema:
{{schema}}

- "winner" is "A", "B" or "tie".
- "scoreA" and "scoreB" rate each response from 0.0 to 1.0.
- "reasoning" briefly justifies the verdict.

Respond with only the JSON object, no additional text.
</output_format>`)

var pairwiseSchema = schemaText(&pairwiseResponse{})

type pairwiseJudge struct {
	judge judge.Interface
}

func (*pairwiseJudge) Requirements() Requirements {
	return Requirements{Judge: true, Pairwise: true}
}

// Evaluate compares mc.OutputA with mc.OutputB; output is not consulted.
func (m *pairwiseJudge) Evaluate(ctx context.Context, _ string, mc Context) Outcome {
	if mc.OutputA == nil || mc.OutputB == nil {
		return fail("pairwise_judge requires both outputA and outputB")
	}
	if m.judge == nil {
		half := 0.5
		return Outcome{
			Passed:  true,
			Score:   0.5,
			Reason:  "mock result: no judge configured",
			Details: PairwiseDetails{Winner: domain.WinnerTie, ScoreA: &half, ScoreB: &half, Mock: true},
		}
	}

	indeterminate := PairwiseDetails{Winner: domain.WinnerTie, Indeterminate: true}
	prompt, err := buildPairwisePrompt(*mc.OutputA, *mc.OutputB, mc)
	if err != nil {
		return judgeFailure(err, indeterminate)
	}
	raw, err := m.judge.Call(ctx, prompt, mc.Model)
	if err != nil {
		return judgeFailure(err, indeterminate)
	}
	var resp pairwiseResponse
	if err := decodeJudgeJSON(raw, &resp); err != nil {
		return judgeFailure(err, indeterminate)
	}

	details := PairwiseDetails{
		Winner:    domain.ParseWinner(strings.TrimSpace(resp.Winner)),
		Reasoning: resp.Reasoning,
	}
	if !strings.EqualFold(strings.TrimSpace(resp.Winner), string(details.Winner)) {
		details.Indeterminate = true
	}
	if resp.ScoreA != nil {
		a := clamp01(*resp.ScoreA)
		details.ScoreA = &a
	}
	if resp.ScoreB != nil {
		b := clamp01(*resp.ScoreB)
		details.ScoreB = &b
	}
	if details.ScoreA == nil || details.ScoreB == nil {
		details.Indeterminate = true
	}

	return Outcome{
		Passed:  true,
		Score:   WinnerScore(details.Winner),
		Reason:  resp.Reasoning,
		Details: details,
	}
}

func buildPairwisePrompt(a, b string, mc Context) (string, error) {
	criteria := "Overall quality: correctness, completeness and how well the response follows the input."
	if mc.Rubric != nil && len(mc.Rubric.Criteria) > 0 {
		var sb strings.Builder
		for i, c := range mc.Rubric.Criteria {
			fmt.Fprintf(&sb, "%d. %s (weight %.2f): %s\n", i+1, c.Name, c.Weight, c.Description)
		}
		if mc.Rubric.Instructions != "" {
			sb.WriteString(mc.Rubric.Instructions)
		}
		criteria = sb.String()
	}

	p, err := pairwisePrompt.BindJSON("input_variables", mc.Example.InputVariables)
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
	if p, err = p.BindSection("response_a", a); err != nil {
		return "", err
	}
	if p, err = p.BindSection("response_b", b); err != nil {
		return "", err
	}
	if p, err = p.BindSection("criteria", criteria); err != nil {
		return "", err
	}
	if p, err = p.BindText("schema", pairwiseSchema); err != nil {
		return "", err
	}
	return p.Build()
}
