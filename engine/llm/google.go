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
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

// Google completes prompts with Gemini models on Vertex AI.
type Google struct {
	client *genai.Client
	settings
}

// NewGoogle creates a Gemini provider for the given Vertex project and region.
func NewGoogle(ctx context.Context, projectID, region string, opts ...Option) (*Google, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("vertex project and region are required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply option: %w", err)
	}
	return &Google{client: client, settings: s}, nil
}

// Complete implements Completer.
func (g *Google) Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error) {
	temperature := float32(cfg.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens(cfg)),
	}
	if sys := msgs.SystemText(); sys != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: sys}},
		}
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: msgs.UserText()}},
	}}

	resp, err := Retry(ctx, g.retry, "gemini_generate", vertexTransient, func() (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, cfg.Model, contents, config)
	})
	if err != nil {
		return Completion{}, fmt.Errorf("gemini completion: %w", err)
	}

	var u Usage
	if resp.UsageMetadata != nil {
		u = usage(int64(resp.UsageMetadata.PromptTokenCount),
			int64(resp.UsageMetadata.CandidatesTokenCount),
			int64(resp.UsageMetadata.TotalTokenCount))
	}
	g.metrics.RecordCompletion(ctx, "google", cfg.Model, u.InputTokens, u.OutputTokens)
	clog.FromContext(ctx).With("model", cfg.Model).
		With("tokens", u.TotalTokens).
		Debug("Gemini completion finished")

	return Completion{Text: resp.Text(), Usage: u}, nil
}

// vertexTransient retries quota and transient server errors. The genai
// client returns typed errors; other transports only describe the failure in
// the error text.
func vertexTransient(err error) Transient {
	if err == nil {
		return Transient{}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusTransient(apiErr.Code, nil, 429, 500, 503, 504)
	}
	msg := err.Error()
	for _, marker := range []string{
		"Resource exhausted",
		"RESOURCE_EXHAUSTED",
		"429",
		"rate limit",
		"Overloaded",
		"503",
		"quota exceeded",
		"Internal error",
		"server error",
	} {
		if strings.Contains(msg, marker) {
			return Transient{Retry: true}
		}
	}
	return Transient{}
}
