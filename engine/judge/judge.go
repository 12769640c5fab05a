/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
)

// Interface sends a judge prompt to a model and returns its raw response.
type Interface interface {
	// Call evaluates prompt. cfg overrides the judge's default model settings when non-nil.
	Call(ctx context.Context, prompt string, cfg *domain.ModelConfig) (string, error)
}

// Func adapts a function to Interface.
type Func func(ctx context.Context, prompt string, cfg *domain.ModelConfig) (string, error)

// Call implements Interface.
func (f Func) Call(ctx context.Context, prompt string, cfg *domain.ModelConfig) (string, error) {
	return f(ctx, prompt, cfg)
}

const systemPrompt = `You are an impartial evaluator of language model outputs.
Grade strictly according to the instructions you are given.
Respond with only the requested JSON object.`

type completerJudge struct {
	completer llm.Completer
	defaults  domain.ModelConfig
}

// FromCompleter returns a judge that calls c. defaults apply when a call
// passes no ModelConfig, and fill in the model when the override leaves it empty.
func FromCompleter(c llm.Completer, defaults domain.ModelConfig) Interface {
	return &completerJudge{completer: c, defaults: defaults}
}

func (j *completerJudge) Call(ctx context.Context, prompt string, cfg *domain.ModelConfig) (string, error) {
	mc := j.defaults
	if cfg != nil {
		mc = *cfg
		if mc.Model == "" {
			mc.Model = j.defaults.Model
		}
	}
	if mc.Model == "" {
		return "", fmt.Errorf("judge model not configured")
	}

	if err := llm.Throttle(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}
	out, err := j.completer.Complete(ctx, llm.Messages{System: systemPrompt, User: prompt}, mc)
	// Failed requests count against the run too.
	MeterFrom(ctx).Record(mc.Model, out.Usage)
	if err != nil {
		return "", fmt.Errorf("judge call to %s: %w", mc.Model, err)
	}
	return out.Text, nil
}
