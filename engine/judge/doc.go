/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package judge is the client used by LLM-judged metrics to send a grading
// prompt to a model and get raw text back.
//
// A judge is built on any llm.Completer:
//
//	j := judge.FromCompleter(router, domain.ModelConfig{Model: "claude-sonnet-4-5", MaxTokens: 2048})
//	raw, err := j.Call(ctx, prompt, nil)
//
// Metrics treat a nil Interface as "no judge configured" and return a
// flagged mock result instead of failing.
//
// # Cost attribution
//
// Judge calls spend tokens on behalf of the run that triggered them. The
// executor attaches a Meter to the context and drains it after each example:
//
//	m := judge.NewMeter(prices.Estimate)
//	ctx = judge.WithMeter(ctx, m)
//	...
//	run.Cost = run.Cost.Add(m.Take())
//
// Judges never retry on their own; providers retry transport errors
// internally.
package judge
