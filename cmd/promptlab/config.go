/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/judge"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/pricing"
)

// engineConfig configures model access and policy defaults, shared by all commands.
type engineConfig struct {
	JudgeModel     string `env:"JUDGE_MODEL"`
	JudgeMaxTokens int64  `env:"JUDGE_MAX_TOKENS,default=2048"`

	VertexProject   string `env:"VERTEX_PROJECT"`
	VertexRegion    string `env:"VERTEX_REGION,default=us-east5"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`

	// Provider receives models no prefix route matches.
	Provider string `env:"PROVIDER,default=anthropic"`

	PricingFile string        `env:"PRICING_FILE"`
	RetryMax    int           `env:"RETRY_MAX,default=5"`
	RetryBase   time.Duration `env:"RETRY_BASE_BACKOFF,default=1s"`

	Policy policyConfig
}

type policyConfig struct {
	MaxActiveOptimizationRuns int     `env:"DEFAULT_MAX_ACTIVE_OPTIMIZATION_RUNS,default=1"`
	MaxActiveEvaluationRuns   int     `env:"DEFAULT_MAX_ACTIVE_EVALUATION_RUNS,default=2"`
	MaxCallsPerRun            int64   `env:"DEFAULT_MAX_CALLS_PER_RUN,default=100"`
	MaxTokensPerRun           int64   `env:"DEFAULT_MAX_TOKENS_PER_RUN,default=100000"`
	MaxUSDPerRun              float64 `env:"DEFAULT_MAX_USD_PER_RUN,default=10"`
	DailyBudgetUSD            float64 `env:"DEFAULT_DAILY_BUDGET_USD,default=50"`
	MaxRequestsPerMinute      int     `env:"DEFAULT_MAX_REQUESTS_PER_MINUTE,default=60"`
}

func (p policyConfig) policy() domain.Policy {
	return domain.Policy{
		MaxActiveOptimizationRuns: p.MaxActiveOptimizationRuns,
		MaxActiveEvaluationRuns:   p.MaxActiveEvaluationRuns,
		MaxCallsPerRun:            p.MaxCallsPerRun,
		MaxTokensPerRun:           p.MaxTokensPerRun,
		MaxUSDPerRun:              p.MaxUSDPerRun,
		DailyBudgetUSD:            p.DailyBudgetUSD,
		MaxRequestsPerMinute:      p.MaxRequestsPerMinute,
	}
}

func loadEngineConfig(ctx context.Context, lookuper envconfig.Lookuper) (engineConfig, error) {
	var cfg engineConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return engineConfig{}, fmt.Errorf("processing config: %w", err)
	}
	return cfg, nil
}

// vertexProject returns the configured project, falling back to the
// metadata server when running on GCE.
func (c engineConfig) vertexProject(ctx context.Context) string {
	if c.VertexProject != "" || !metadata.OnGCE() {
		return c.VertexProject
	}
	project, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		clog.WarnContextf(ctx, "discovering project from metadata: %v", err)
		return ""
	}
	return project
}

// completer routes each model to the provider that serves it. Providers
// without credentials are left out.
func (c engineConfig) completer(ctx context.Context) (llm.Completer, error) {
	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = c.RetryMax
	retry.BaseBackoff = c.RetryBase
	opts := []llm.Option{llm.WithRetryConfig(retry)}

	project := c.vertexProject(ctx)
	router := llm.NewRouter()
	providers := map[string]llm.Completer{}

	switch {
	case c.AnthropicAPIKey != "":
		claude, err := llm.NewClaude(c.AnthropicAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating anthropic provider: %w", err)
		}
		providers["anthropic"] = claude
	case project != "":
		claude, err := llm.NewClaudeVertex(ctx, project, c.VertexRegion, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating vertex claude provider: %w", err)
		}
		providers["anthropic"] = claude
		providers["vertex"] = claude
	}
	if project != "" {
		gemini, err := llm.NewGoogle(ctx, project, c.VertexRegion, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating google provider: %w", err)
		}
		providers["google"] = gemini
	}
	if c.OpenAIAPIKey != "" {
		oai, err := llm.NewOpenAI(c.OpenAIAPIKey, opts)
		if err != nil {
			return nil, fmt.Errorf("creating openai provider: %w", err)
		}
		providers["openai"] = oai
	}
	if len(providers) == 0 {
		return nil, errors.New("no model provider configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY or VERTEX_PROJECT")
	}

	if p, ok := providers["anthropic"]; ok {
		router.Handle("claude", p)
	}
	if p, ok := providers["google"]; ok {
		router.Handle("gemini", p)
	}
	if p, ok := providers["openai"]; ok {
		for _, prefix := range []string{"gpt", "o1", "o3", "o4"} {
			router.Handle(prefix, p)
		}
	}
	if p, ok := providers[c.Provider]; ok {
		router.Fallback(p)
	}
	return router, nil
}

// judge returns the judge client, or nil for mock mode when no judge model
// is configured.
func (c engineConfig) judge(completer llm.Completer) judge.Interface {
	if c.JudgeModel == "" {
		return nil
	}
	return judge.FromCompleter(completer, domain.ModelConfig{
		Model:     c.JudgeModel,
		MaxTokens: c.JudgeMaxTokens,
	})
}

func (c engineConfig) prices() (*pricing.Table, error) {
	if c.PricingFile == "" {
		return pricing.Default(), nil
	}
	return pricing.Load(c.PricingFile)
}

func (c engineConfig) budgetOptions() []budget.Option {
	return []budget.Option{budget.WithDefaults(c.Policy.policy())}
}
