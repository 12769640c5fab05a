/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
)

// DefaultMaxTokens is used when a ModelConfig leaves MaxTokens unset.
const DefaultMaxTokens int64 = 1024

// Messages is a rendered prompt.
type Messages struct {
	System    string
	Developer string
	User      string
	Context   string
}

// SystemText joins the system and developer sections.
func (m Messages) SystemText() string {
	return joinNonEmpty(m.System, m.Developer)
}

// UserText joins the context and user sections.
func (m Messages) UserText() string {
	return joinNonEmpty(m.Context, m.User)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Completion is a model response.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer produces model output for a prompt.
type Completer interface {
	Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error) {
	return f(ctx, msgs, cfg)
}

func maxTokens(cfg domain.ModelConfig) int64 {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return DefaultMaxTokens
}

func usage(in, out, total int64) Usage {
	if total == 0 {
		total = in + out
	}
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}
}
