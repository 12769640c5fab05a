/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package llm is the model completion boundary of the run engine.
//
// A Completer turns rendered Messages and a ModelConfig into text plus token
// usage. Three providers are included:
//
//   - Claude, through the Anthropic API directly or through Vertex AI
//   - Google Gemini, through Vertex AI
//   - OpenAI chat completions
//
// Every provider retries rate-limit and transient server errors with
// exponential backoff and jitter (see RetryConfig) and records token usage
// on the shared GenAI meter. Errors that survive the retries are returned to
// the caller; the run executors treat them as per-example failures.
//
// A Router picks the provider from the model name:
//
//	gemini, err := llm.NewGoogle(ctx, projectID, region)
//	claude, err := llm.NewClaudeVertex(ctx, projectID, region)
//	router := llm.NewRouter().Handle("gemini-", gemini).Handle("claude-", claude)
//	out, err := router.Complete(ctx, llm.Messages{User: "hi"}, domain.ModelConfig{Model: "gemini-2.5-flash"})
package llm
