/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/chainguard-dev/clog"
)

// Claude completes prompts with Anthropic models.
type Claude struct {
	client anthropic.Client
	settings
}

// NewClaude creates a provider authenticated with an Anthropic API key.
func NewClaude(apiKey string, opts ...Option) (*Claude, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	return newClaude(anthropic.NewClient(option.WithAPIKey(apiKey)), opts)
}

// NewClaudeVertex creates a provider that reaches Claude through Vertex AI.
func NewClaudeVertex(ctx context.Context, projectID, region string, opts ...Option) (*Claude, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("vertex project and region are required")
	}
	return newClaude(anthropic.NewClient(vertex.WithGoogleAuth(ctx, region, projectID)), opts)
}

func newClaude(client anthropic.Client, opts []Option) (*Claude, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply option: %w", err)
	}
	return &Claude{client: client, settings: s}, nil
}

// Complete implements Completer.
func (c *Claude) Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		MaxTokens:   maxTokens(cfg),
		Temperature: anthropic.Float(cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(msgs.UserText())),
		},
	}
	if sys := msgs.SystemText(); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	msg, err := Retry(ctx, c.retry, "claude_message", claudeTransient, func() (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, params)
	})
	if err != nil {
		return Completion{}, fmt.Errorf("claude completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	u := usage(msg.Usage.InputTokens, msg.Usage.OutputTokens, 0)
	c.metrics.RecordCompletion(ctx, "anthropic", cfg.Model, u.InputTokens, u.OutputTokens)
	clog.FromContext(ctx).With("model", cfg.Model).
		With("tokens", u.TotalTokens).
		Debug("Claude completion finished")

	return Completion{Text: sb.String(), Usage: u}, nil
}

// claudeTransient retries rate limit, overload and transient server errors,
// honoring the Retry-After header Anthropic sends with them.
func claudeTransient(err error) Transient {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return Transient{}
	}
	return statusTransient(apiErr.StatusCode, apiErr.Response, 429, 500, 503, 504, 529)
}
