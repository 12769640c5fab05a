/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/promptlab/engine/domain"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI completes prompts with OpenAI chat models.
type OpenAI struct {
	client openai.Client
	settings
}

// NewOpenAI creates a provider authenticated with an API key. Extra request
// options (base URL, organization) are passed through to the client.
func NewOpenAI(apiKey string, opts []Option, clientOpts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply option: %w", err)
	}
	clientOpts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, clientOpts...)
	return &OpenAI{client: openai.NewClient(clientOpts...), settings: s}, nil
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if sys := msgs.SystemText(); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	messages = append(messages, openai.UserMessage(msgs.UserText()))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(cfg.Model),
		Messages:            messages,
		Temperature:         openai.Float(cfg.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens(cfg)),
	}

	resp, err := Retry(ctx, o.retry, "openai_chat", openaiTransient, func() (*openai.ChatCompletion, error) {
		return o.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return Completion{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("openai completion: no choices returned")
	}

	u := usage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	o.metrics.RecordCompletion(ctx, "openai", cfg.Model, u.InputTokens, u.OutputTokens)
	clog.FromContext(ctx).With("model", cfg.Model).
		With("tokens", u.TotalTokens).
		Debug("OpenAI completion finished")

	return Completion{Text: resp.Choices[0].Message.Content, Usage: u}, nil
}

func openaiTransient(err error) Transient {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return Transient{}
	}
	return statusTransient(apiErr.StatusCode, apiErr.Response, 429, 500, 502, 503, 504)
}
