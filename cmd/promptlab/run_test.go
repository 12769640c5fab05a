/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/compute/metadata"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/llm/llmtest"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/submit"
)

func writeSuite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(geographySuite), 0o600))
	return path
}

// capitals answers the geography suite; verbose prompts get full sentences.
func capitals() *llmtest.Completer {
	return llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		city := "Tokyo"
		if strings.Contains(msgs.User, "France") {
			city = "Paris"
		}
		if strings.HasPrefix(msgs.User, "Please answer") {
			city = "The capital is " + city + "."
		}
		return llm.Completion{Text: city, Usage: llm.Usage{TotalTokens: 12}}, nil
	})
}

func testConfig(t *testing.T, env map[string]string) engineConfig {
	t.Helper()
	cfg, err := loadEngineConfig(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func evalSubmit(version string, flags *localFlags) submitFunc {
	return func(ctx context.Context, svc *submit.Service, workspace string) (*domain.Run, error) {
		return svc.SubmitEvaluation(ctx, submit.EvaluationRequest{
			WorkspaceID: workspace,
			VersionID:   version,
			DatasetID:   flags.dataset,
			MetricType:  flags.metric,
			Budget:      flags.budget(),
		})
	}
}

func TestRunSuiteEvaluation(t *testing.T) {
	t.Parallel()
	flags := &localFlags{suite: writeSuite(t), dataset: "capitals", metric: metric.ExactMatch, threshold: 1}

	var out bytes.Buffer
	err := runSuite(context.Background(), &out, testConfig(t, nil), capitals(), flags, evalSubmit("terse", flags))
	require.NoError(t, err)
	require.Contains(t, out.String(), "succeeded")
	require.Contains(t, out.String(), "1.000")
	require.Contains(t, out.String(), "2 calls, 24 tokens")
}

func TestRunSuiteBelowThreshold(t *testing.T) {
	t.Parallel()
	flags := &localFlags{suite: writeSuite(t), dataset: "capitals", metric: metric.ExactMatch, threshold: 0.5}

	var out bytes.Buffer
	err := runSuite(context.Background(), &out, testConfig(t, nil), capitals(), flags, evalSubmit("verbose", flags))
	require.ErrorIs(t, err, errBelowThreshold)
	require.Contains(t, out.String(), "FAIL")

	// The contains metric accepts the same outputs.
	flags.metric = metric.Contains
	out.Reset()
	require.NoError(t, runSuite(context.Background(), &out, testConfig(t, nil), capitals(), flags, evalSubmit("verbose", flags)))
}

func TestRunSuiteComparisonMockJudge(t *testing.T) {
	t.Parallel()
	flags := &localFlags{suite: writeSuite(t), dataset: "capitals", metric: metric.PairwiseJudge}

	var out bytes.Buffer
	err := runSuite(context.Background(), &out, testConfig(t, nil), capitals(), flags,
		func(ctx context.Context, svc *submit.Service, workspace string) (*domain.Run, error) {
			return svc.SubmitComparison(ctx, submit.ComparisonRequest{
				WorkspaceID: workspace,
				VersionAID:  "terse",
				VersionBID:  "verbose",
				DatasetID:   flags.dataset,
			})
		})
	require.NoError(t, err)
	require.Contains(t, out.String(), "A 0, B 0, ties 2")
}

func TestRunSuiteHardStop(t *testing.T) {
	t.Parallel()
	flags := &localFlags{suite: writeSuite(t), dataset: "capitals", metric: metric.ExactMatch, maxCalls: 1}

	var out bytes.Buffer
	err := runSuite(context.Background(), &out, testConfig(t, nil), capitals(), flags, evalSubmit("terse", flags))
	require.ErrorIs(t, err, errBelowThreshold)
	require.Contains(t, out.String(), "failed")
	require.Contains(t, out.String(), "1 calls")
}

func TestRunSuiteRejectsMissingDataset(t *testing.T) {
	t.Parallel()
	flags := &localFlags{suite: writeSuite(t), dataset: "missing", metric: metric.ExactMatch}

	err := runSuite(context.Background(), &bytes.Buffer{}, testConfig(t, nil), capitals(), flags, evalSubmit("terse", flags))
	require.ErrorIs(t, err, submit.ErrInvalidRequest)
}

func TestEngineConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	p := cfg.Policy.policy()
	require.Equal(t, 2, p.MaxActiveEvaluationRuns)
	require.Equal(t, int64(100), p.MaxCallsPerRun)
	require.InDelta(t, 50.0, p.DailyBudgetUSD, 1e-9)
	require.Equal(t, 60, p.MaxRequestsPerMinute)
	require.Nil(t, cfg.judge(capitals()))

	cfg = testConfig(t, map[string]string{
		"JUDGE_MODEL":              "claude-sonnet-4-5",
		"DEFAULT_DAILY_BUDGET_USD": "5",
		"RETRY_MAX":                "1",
	})
	require.NotNil(t, cfg.judge(capitals()))
	require.InDelta(t, 5.0, cfg.Policy.policy().DailyBudgetUSD, 1e-9)
	require.Equal(t, 1, cfg.RetryMax)

	prices, err := cfg.prices()
	require.NoError(t, err)
	_, ok := prices.Lookup("claude-sonnet-4-5")
	require.True(t, ok)
}

func TestEngineConfigCompleter(t *testing.T) {
	t.Parallel()
	if metadata.OnGCE() {
		t.Skip("metadata server adds vertex providers")
	}

	cfg := testConfig(t, nil)
	if _, err := cfg.completer(context.Background()); err == nil {
		t.Error("completer() = nil error, want error without credentials")
	}

	cfg = testConfig(t, map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-test",
	})
	c, err := cfg.completer(context.Background())
	require.NoError(t, err)
	router, ok := c.(*llm.Router)
	require.True(t, ok)
	for _, model := range []string{"claude-sonnet-4-5", "gpt-4o", "o3-mini", "mistral-large"} {
		_, err := router.ForModel(model)
		require.NoError(t, err, model)
	}
}
