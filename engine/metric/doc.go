/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metric holds the scoring strategies a run can select by id.
//
// Every metric implements Metric: it maps a candidate output plus a Context
// (the example, an optional rubric and judge model, and for pairwise scoring
// both outputs) to an Outcome with a pass/fail verdict and a score in [0, 1].
// Metrics never return errors. Problems such as a missing expected output or
// a failing judge call are reported as a failed Outcome with a reason.
//
// The built-in metrics are:
//
//   - exact_match: trimmed, case-insensitive equality with the expected output
//   - contains: case-insensitive substring match of the expected output
//   - json_valid: the output parses as JSON and carries metadata.requiredKeys
//   - judge_rubric: an LLM judge scores the output against a weighted rubric
//   - pairwise_judge: an LLM judge picks the better of two outputs
//
// Builtins wires them into a Registry with an optional judge. A nil judge
// makes the judge metrics return mock outcomes flagged with "mock": true in
// their details.
package metric
