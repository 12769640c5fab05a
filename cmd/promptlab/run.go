/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/dispatcher"
	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/executor"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/report"
	"chainguard.dev/promptlab/engine/store/memory"
	"chainguard.dev/promptlab/engine/submit"
)

// errBelowThreshold is returned when a local run does not pass.
var errBelowThreshold = errors.New("run did not pass")

// localFlags are shared by eval and compare.
type localFlags struct {
	suite      string
	dataset    string
	metric     string
	rubric     string
	judgeModel string
	maxSamples int
	maxCalls   int64
	maxTokens  int64
	maxUSD     float64
	threshold  float64
}

func (f *localFlags) register(cmd *cobra.Command, defaultMetric string) {
	cmd.Flags().StringVar(&f.suite, "suite", "promptlab.yaml", "suite file with versions, rubrics and datasets")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "dataset id")
	cmd.Flags().StringVar(&f.metric, "metric", defaultMetric, "metric id")
	cmd.Flags().StringVar(&f.rubric, "rubric", "", "rubric id for judge metrics")
	cmd.Flags().StringVar(&f.judgeModel, "judge-model", "", "judge model, overriding JUDGE_MODEL for this run")
	cmd.Flags().IntVar(&f.maxSamples, "max-samples", 0, "evaluate at most this many examples")
	cmd.Flags().Int64Var(&f.maxCalls, "max-calls", 0, "per-run call ceiling")
	cmd.Flags().Int64Var(&f.maxTokens, "max-tokens", 0, "per-run token ceiling")
	cmd.Flags().Float64Var(&f.maxUSD, "max-usd", 0, "per-run USD ceiling")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum aggregate score for eval to pass")
	_ = cmd.MarkFlagRequired("dataset")
}

func (f *localFlags) budget() domain.Budget {
	return domain.Budget{MaxCalls: f.maxCalls, MaxTokens: f.maxTokens, MaxUSD: f.maxUSD}
}

func (f *localFlags) judgeConfig() *domain.ModelConfig {
	if f.judgeModel == "" {
		return nil
	}
	return &domain.ModelConfig{Model: f.judgeModel}
}

func newEvalCmd() *cobra.Command {
	var flags localFlags
	var version string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score one prompt version on a dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLocal(cmd.Context(), cmd.OutOrStdout(), &flags, func(ctx context.Context, svc *submit.Service, workspace string) (*domain.Run, error) {
				return svc.SubmitEvaluation(ctx, submit.EvaluationRequest{
					WorkspaceID:   workspace,
					VersionID:     version,
					DatasetID:     flags.dataset,
					MetricType:    flags.metric,
					JudgeRubricID: flags.rubric,
					JudgeModel:    flags.judgeConfig(),
					MaxSamples:    flags.maxSamples,
					Budget:        flags.budget(),
				})
			})
		},
	}
	flags.register(cmd, metric.ExactMatch)
	cmd.Flags().StringVar(&version, "version", "", "version id")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newCompareCmd() *cobra.Command {
	var flags localFlags
	var versionA, versionB string
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two prompt versions on a dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLocal(cmd.Context(), cmd.OutOrStdout(), &flags, func(ctx context.Context, svc *submit.Service, workspace string) (*domain.Run, error) {
				return svc.SubmitComparison(ctx, submit.ComparisonRequest{
					WorkspaceID:   workspace,
					VersionAID:    versionA,
					VersionBID:    versionB,
					DatasetID:     flags.dataset,
					MetricType:    flags.metric,
					JudgeRubricID: flags.rubric,
					JudgeModel:    flags.judgeConfig(),
					MaxSamples:    flags.maxSamples,
					Budget:        flags.budget(),
				})
			})
		},
	}
	flags.register(cmd, metric.PairwiseJudge)
	cmd.Flags().StringVar(&versionA, "a", "", "version id of side A")
	cmd.Flags().StringVar(&versionB, "b", "", "version id of side B")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

type submitFunc func(ctx context.Context, svc *submit.Service, workspace string) (*domain.Run, error)

// runLocal loads the suite into memory, submits one run, waits for it and
// prints its report.
func runLocal(ctx context.Context, w io.Writer, flags *localFlags, submitRun submitFunc) error {
	cfg, err := loadEngineConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		return err
	}
	completer, err := cfg.completer(ctx)
	if err != nil {
		return err
	}
	return runSuite(ctx, w, cfg, completer, flags, submitRun)
}

func runSuite(ctx context.Context, w io.Writer, cfg engineConfig, completer llm.Completer, flags *localFlags, submitRun submitFunc) error {
	s, err := loadSuite(flags.suite)
	if err != nil {
		return err
	}
	st := memory.New()
	if err := s.seed(st); err != nil {
		return err
	}

	prices, err := cfg.prices()
	if err != nil {
		return err
	}
	enforcer, err := budget.New(st, st, st, cfg.budgetOptions()...)
	if err != nil {
		return fmt.Errorf("creating budget enforcer: %w", err)
	}
	j := cfg.judge(completer)
	registry := metric.Builtins(j)
	exec, err := executor.New(st, completer, j, enforcer,
		executor.WithRegistry(registry),
		executor.WithPricing(prices))
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}
	pool := dispatcher.NewPool(ctx, 1, func(ctx context.Context, runID string) error {
		_, err := exec.Execute(ctx, runID)
		return err
	})
	svc, err := submit.New(st, enforcer, registry, submit.WithDispatcher(pool))
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating submit service: %w", err)
	}

	run, err := submitRun(ctx, svc, s.Workspace)
	// Close waits for the submitted run to settle.
	pool.Close()
	if err != nil {
		return err
	}
	run, err = st.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	results, err := st.ListResults(ctx, run.ID)
	if err != nil {
		return err
	}

	out, failed := report.Run(run, results, flags.threshold)
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	if failed {
		return errBelowThreshold
	}
	return nil
}
