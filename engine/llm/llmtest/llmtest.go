/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package llmtest provides scripted completers and judges for tests.
package llmtest

import (
	"context"
	"sync"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
)

// Completer is a scripted llm.Completer that records every call.
type Completer struct {
	respond func(msgs llm.Messages, cfg domain.ModelConfig) (llm.Completion, error)

	mu    sync.Mutex
	calls []llm.Messages
}

var _ llm.Completer = (*Completer)(nil)

// NewCompleter returns a completer answering with respond.
func NewCompleter(respond func(msgs llm.Messages, cfg domain.ModelConfig) (llm.Completion, error)) *Completer {
	return &Completer{respond: respond}
}

// Fixed returns a completer that always answers text using tokens tokens.
func Fixed(text string, tokens int64) *Completer {
	return NewCompleter(func(llm.Messages, domain.ModelConfig) (llm.Completion, error) {
		return llm.Completion{Text: text, Usage: llm.Usage{TotalTokens: tokens}}, nil
	})
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, msgs llm.Messages, cfg domain.ModelConfig) (llm.Completion, error) {
	c.mu.Lock()
	c.calls = append(c.calls, msgs)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	return c.respond(msgs, cfg)
}

// Calls returns the prompts received so far.
func (c *Completer) Calls() []llm.Messages {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Messages, len(c.calls))
	copy(out, c.calls)
	return out
}

// Judge is a scripted judge client that records every prompt.
type Judge struct {
	respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// NewJudge returns a judge answering with respond.
func NewJudge(respond func(prompt string) (string, error)) *Judge {
	return &Judge{respond: respond}
}

// FixedJudge returns a judge that always answers response.
func FixedJudge(response string) *Judge {
	return NewJudge(func(string) (string, error) { return response, nil })
}

// Call implements judge.Interface.
func (j *Judge) Call(_ context.Context, prompt string, _ *domain.ModelConfig) (string, error) {
	j.mu.Lock()
	j.prompts = append(j.prompts, prompt)
	j.mu.Unlock()
	return j.respond(prompt)
}

// Prompts returns the prompts received so far.
func (j *Judge) Prompts() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.prompts))
	copy(out, j.prompts)
	return out
}
