/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import "chainguard.dev/promptlab/engine/judge"

// Built-in metric ids.
const (
	ExactMatch    = "exact_match"
	Contains      = "contains"
	JSONValid     = "json_valid"
	JudgeRubric   = "judge_rubric"
	PairwiseJudge = "pairwise_judge"
)

// Builtins returns a registry holding the built-in metrics. j may be nil,
// which puts the judge metrics in mock mode.
func Builtins(j judge.Interface) *Registry {
	r := NewRegistry()
	for id, m := range map[string]Metric{
		ExactMatch:    exactMatch{},
		Contains:      contains{},
		JSONValid:     jsonValid{},
		JudgeRubric:   &judgeRubric{judge: j},
		PairwiseJudge: &pairwiseJudge{judge: j},
	} {
		// ids are distinct and non-empty.
		_ = r.Register(id, m)
	}
	return r
}
