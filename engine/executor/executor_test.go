/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/executor"
	"chainguard.dev/promptlab/engine/judge"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/llm/llmtest"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/store"
	"chainguard.dev/promptlab/engine/store/memory"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// ticker is a clock that moves forward one second per reading.
type ticker struct {
	mu  sync.Mutex
	now time.Time
}

func (c *ticker) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var answers = map[string]string{
	"capital of France?":  "Paris",
	"capital of Japan?":   "Tokyo",
	"capital of Canada?":  "Ottawa",
	"capital of Nowhere?": "",
}

// geography seeds a dataset of three labeled questions and a version
// that asks them verbatim.
func geography(s *memory.Store) {
	s.PutVersion(domain.PromptVersion{
		ID:      "v1",
		Content: domain.ContentSnapshot{System: "Answer with one word.", User: "{{question}}"},
		Model:   domain.ModelConfig{Model: "test-model"},
	})
	s.PutDataset("geo",
		example("e1", "capital of France?", "paris"),
		example("e2", "capital of Japan?", "tokyo"),
		example("e3", "capital of Canada?", "ottawa"),
	)
}

func example(id, question, expected string) domain.Example {
	return domain.Example{
		ID:             id,
		InputVariables: domain.Variables{{Name: "question", Value: question}},
		ExpectedOutput: domain.Labeled(expected),
	}
}

// oracle answers every question correctly, failing for the ones in fail.
func oracle(fail ...string) *llmtest.Completer {
	return llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		for _, f := range fail {
			if msgs.User == f {
				return llm.Completion{}, errors.New("upstream unavailable")
			}
		}
		return llm.Completion{Text: answers[msgs.User], Usage: llm.Usage{TotalTokens: 10}}, nil
	})
}

func newExecutor(t *testing.T, s *memory.Store, c llm.Completer, j judge.Interface, opts ...executor.Option) *executor.Executor {
	t.Helper()
	clock := &ticker{now: t0}
	enforcer, err := budget.New(s, s, s, budget.WithClock(clock.Now))
	require.NoError(t, err)
	e, err := executor.New(s, c, j, enforcer, append([]executor.Option{executor.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return e
}

func evalRun(t *testing.T, s *memory.Store, id, metricType string) *domain.Run {
	t.Helper()
	r := domain.NewRun(id, domain.KindEvaluation, t0)
	r.WorkspaceID = "ws"
	r.DatasetID = "geo"
	r.VersionID = "v1"
	r.MetricType = metricType
	require.NoError(t, s.CreateRun(context.Background(), r))
	return r
}

func requireTimeline(t *testing.T, r *domain.Run) {
	t.Helper()
	require.True(t, r.Status.Terminal(), "status %s", r.Status)
	require.NotNil(t, r.FinishedAt)
	if r.StartedAt != nil {
		require.False(t, r.StartedAt.Before(r.CreatedAt))
		require.False(t, r.FinishedAt.Before(*r.StartedAt))
	}
	require.False(t, r.FinishedAt.Before(r.CreatedAt))
}

func TestEvaluationAllPass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	c := oracle()
	e := newExecutor(t, s, c, nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, "completed", got.Stage)
	require.NotNil(t, got.Score)
	require.InDelta(t, 1.0, *got.Score, 1e-9)
	require.Equal(t, domain.Cost{Calls: 3, Tokens: 30}, got.Cost)
	requireTimeline(t, got)

	stored, err := s.GetRun(ctx, "run")
	require.NoError(t, err)
	if diff := cmp.Diff(got, stored); diff != "" {
		t.Errorf("stored run (-returned +stored):\n%s", diff)
	}

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 3)
	var ids []string
	for _, r := range results {
		require.True(t, r.Passed, "example %s", r.ExampleID)
		require.InDelta(t, 1.0, r.Score, 1e-9)
		require.Empty(t, r.FailureReason)
		ids = append(ids, r.ExampleID)
	}
	require.Equal(t, []string{"e1", "e2", "e3"}, ids)

	calls := c.Calls()
	require.Len(t, calls, 3)
	require.Equal(t, "Answer with one word.", calls[0].System)
}

func TestEvaluationModelErrorIsIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	e := newExecutor(t, s, oracle("capital of Japan?"), nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.InDelta(t, 2.0/3.0, *got.Score, 1e-9)
	require.Equal(t, int64(3), got.Cost.Calls)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 3)
	var failed []*domain.Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	require.Len(t, failed, 1)
	require.Equal(t, "e2", failed[0].ExampleID)
	require.Contains(t, failed[0].FailureReason, "upstream unavailable")
	require.Zero(t, failed[0].Score)
}

func TestEvaluationEmptyDataset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutDataset("empty")
	c := oracle()
	e := newExecutor(t, s, c, nil)
	r := domain.NewRun("run", domain.KindEvaluation, t0)
	r.WorkspaceID, r.DatasetID, r.VersionID, r.MetricType = "ws", "empty", "v1", metric.Contains
	require.NoError(t, s.CreateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.NotNil(t, got.Score)
	require.Zero(t, *got.Score)
	require.Empty(t, c.Calls())
}

func TestEvaluationMaxSamples(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	e := newExecutor(t, s, oracle(), nil)
	r := evalRun(t, s, "run", metric.ExactMatch)
	r.MaxSamples = 2
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestEvaluationConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*domain.Run)
		wantMsg string
	}{{
		name:    "unknown metric",
		mutate:  func(r *domain.Run) { r.MetricType = "bleu" },
		wantMsg: `unknown metric "bleu"`,
	}, {
		name:    "rubric metric without rubric",
		mutate:  func(r *domain.Run) { r.MetricType = metric.JudgeRubric },
		wantMsg: "requires a judge rubric",
	}, {
		name:    "missing rubric",
		mutate:  func(r *domain.Run) { r.MetricType, r.JudgeRubricID = metric.JudgeRubric, "gone" },
		wantMsg: "load rubric gone",
	}, {
		name:    "pairwise metric on evaluation",
		mutate:  func(r *domain.Run) { r.MetricType = metric.PairwiseJudge },
		wantMsg: "requires a comparison run",
	}, {
		name:    "missing version",
		mutate:  func(r *domain.Run) { r.VersionID = "v404" },
		wantMsg: "load version v404",
	}, {
		name:    "missing dataset",
		mutate:  func(r *domain.Run) { r.DatasetID = "ds404" },
		wantMsg: "load dataset ds404",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := memory.New()
			geography(s)
			c := oracle()
			e := newExecutor(t, s, c, nil)
			r := evalRun(t, s, "run", metric.ExactMatch)
			tt.mutate(r)
			require.NoError(t, s.UpdateRun(ctx, r))

			got, err := e.Execute(ctx, "run")
			require.NoError(t, err)
			require.Equal(t, domain.StatusFailed, got.Status)
			require.Contains(t, got.ErrorMessage, tt.wantMsg)
			require.Equal(t, "failed", got.Stage)
			require.NotNil(t, got.StartedAt)
			requireTimeline(t, got)
			require.Empty(t, c.Calls())

			results, err := s.ListResults(ctx, "run")
			require.NoError(t, err)
			require.Empty(t, results)
		})
	}
}

func TestEvaluationRenderErrorIsIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutDataset("geo",
		example("e1", "capital of France?", "paris"),
		domain.Example{ID: "e2", ExpectedOutput: domain.Labeled("tokyo")},
	)
	e := newExecutor(t, s, oracle(), nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.InDelta(t, 0.5, *got.Score, 1e-9)
	// The unrenderable example never reaches the model.
	require.Equal(t, int64(1), got.Cost.Calls)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Contains(t, results[1].FailureReason, "render prompt")
}

func TestEvaluationMetricPanic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)

	reg := metric.NewRegistry()
	require.NoError(t, reg.Register("fragile", metric.Func(func(_ context.Context, output string, _ metric.Context) metric.Outcome {
		if output == "Tokyo" {
			panic("index out of range")
		}
		return metric.Outcome{Passed: true, Score: 1}
	})))
	e := newExecutor(t, s, oracle(), nil, executor.WithRegistry(reg))
	evalRun(t, s, "run", "fragile")

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.InDelta(t, 2.0/3.0, *got.Score, 1e-9)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.False(t, results[1].Passed)
	require.Equal(t, "metric panicked: index out of range", results[1].FailureReason)
	require.Equal(t, "Tokyo", results[1].OutputText)
}

func TestEvaluationJudgeCostIsCharged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutRubric(domain.RubricConfig{
		ID:       "rb",
		Name:     "accuracy",
		Criteria: []domain.Criterion{{Name: "correct", Description: "Names the right city.", Weight: 1}},
	})
	j := judge.FromCompleter(
		llmtest.Fixed(`{"criteria":[{"name":"correct","score":0.8}],"overallScore":0.8,"passed":true,"reasoning":"ok"}`, 7),
		domain.ModelConfig{Model: "judge-model"},
	)
	e := newExecutor(t, s, oracle(), j)
	r := evalRun(t, s, "run", metric.JudgeRubric)
	r.JudgeRubricID = "rb"
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.InDelta(t, 0.8, *got.Score, 1e-9)
	require.Equal(t, domain.Cost{Calls: 6, Tokens: 3*10 + 3*7}, got.Cost)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Contains(t, string(results[0].JudgeDetails), `"overallScore":0.8`)
}

func TestEvaluationFailedJudgeCallsAreCharged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutRubric(domain.RubricConfig{ID: "rb", Criteria: []domain.Criterion{{Name: "correct", Weight: 1}}})
	failing := llmtest.NewCompleter(func(llm.Messages, domain.ModelConfig) (llm.Completion, error) {
		return llm.Completion{}, errors.New("judge overloaded")
	})
	e := newExecutor(t, s, oracle(), judge.FromCompleter(failing, domain.ModelConfig{Model: "judge-model"}))
	r := evalRun(t, s, "run", metric.JudgeRubric)
	r.JudgeRubricID = "rb"
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)
	require.Equal(t, int64(6), got.Cost.Calls)
	require.Len(t, failing.Calls(), 3)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.False(t, res.Passed)
		require.Contains(t, res.FailureReason, "judge overloaded")
	}
}

func TestEvaluationJudgeSharesRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutPolicy(domain.Policy{WorkspaceID: "ws", MaxRequestsPerMinute: 1, DailyBudgetReset: t0})
	s.PutRubric(domain.RubricConfig{ID: "rb", Criteria: []domain.Criterion{{Name: "correct", Weight: 1}}})
	jc := llmtest.Fixed(`{"criteria":[{"name":"correct","score":1}],"overallScore":1,"passed":true}`, 0)
	e := newExecutor(t, s, oracle(), judge.FromCompleter(jc, domain.ModelConfig{Model: "judge-model"}))
	r := evalRun(t, s, "run", metric.JudgeRubric)
	r.JudgeRubricID = "rb"
	require.NoError(t, s.UpdateRun(ctx, r))

	// One request per minute: the first model call spends the only token and
	// every later request would wait past the deadline.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Empty(t, jc.Calls())

	results, err := s.ListResults(context.Background(), "run")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].FailureReason, "wait for rate limit")
	require.Equal(t, int64(1), got.Cost.Calls)
}

func TestEvaluationMockJudge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutRubric(domain.RubricConfig{ID: "rb", Criteria: []domain.Criterion{{Name: "correct", Weight: 1}}})
	e := newExecutor(t, s, oracle(), nil)
	r := evalRun(t, s, "run", metric.JudgeRubric)
	r.JudgeRubricID = "rb"
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	for _, res := range results {
		require.True(t, res.Passed)
		require.Contains(t, string(res.JudgeDetails), `"mock":true`)
	}
}

func TestProgressInterpolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)

	var seen []int
	c := llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		r, err := s.GetRun(ctx, "run")
		if err != nil {
			return llm.Completion{}, err
		}
		seen = append(seen, r.Progress)
		return llm.Completion{Text: answers[msgs.User]}, nil
	})
	e := newExecutor(t, s, c, nil, executor.WithProgressBounds(20, 80))
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, []int{20, 40, 60}, seen)
	require.Equal(t, 100, got.Progress)
}

func TestHardStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	e := newExecutor(t, s, oracle(), nil)
	r := evalRun(t, s, "run", metric.ExactMatch)
	r.Budget = domain.Budget{MaxCalls: 2}
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, got.Status)
	require.True(t, strings.HasPrefix(got.ErrorMessage, budget.HardStopPrefix), got.ErrorMessage)
	require.Equal(t, int64(2), got.Cost.Calls)
	require.Less(t, got.Progress, 100)
	require.Nil(t, got.Score)
	requireTimeline(t, got)

	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 2)

	events := s.AuditEvents()
	require.Len(t, events, 1)
	require.Equal(t, budget.AuditActionBudgetExceeded, events[0].Action)
	require.Equal(t, "evaluation_run", events[0].ResourceType)
	require.Equal(t, "run", events[0].ResourceID)
}

func TestDailySpendIsRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	s.PutVersion(domain.PromptVersion{
		ID:      "v1",
		Content: domain.ContentSnapshot{User: "{{question}}"},
		Model:   domain.ModelConfig{Model: "gpt-4o"},
	})
	c := llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		return llm.Completion{Text: answers[msgs.User], Usage: llm.Usage{InputTokens: 1000, OutputTokens: 1000, TotalTokens: 2000}}, nil
	})
	e := newExecutor(t, s, c, nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Greater(t, got.Cost.USD, 0.0)

	p, err := s.GetPolicy(ctx, "ws")
	require.NoError(t, err)
	require.InDelta(t, got.Cost.USD, p.DailyBudgetUsed, 1e-9)
}

func TestCancelBeforeStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	c := oracle()
	e := newExecutor(t, s, c, nil)
	evalRun(t, s, "run", metric.ExactMatch)
	require.NoError(t, s.RequestCancel(ctx, "run"))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, got.Status)
	require.Nil(t, got.StartedAt)
	requireTimeline(t, got)
	require.Empty(t, c.Calls())
}

func TestCancelBetweenExamples(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	c := llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		if msgs.User == "capital of Japan?" {
			if err := s.RequestCancel(ctx, "run"); err != nil {
				return llm.Completion{}, err
			}
		}
		return llm.Completion{Text: answers[msgs.User]}, nil
	})
	e := newExecutor(t, s, c, nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, got.Status)
	require.Equal(t, "canceled", got.Stage)
	require.Less(t, got.Progress, 100)
	requireTimeline(t, got)

	// The example in flight when cancellation was requested completes.
	results, err := s.ListResults(ctx, "run")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	s := memory.New()
	geography(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := llmtest.NewCompleter(func(msgs llm.Messages, _ domain.ModelConfig) (llm.Completion, error) {
		cancel()
		return llm.Completion{Text: answers[msgs.User]}, nil
	})
	e := newExecutor(t, s, c, nil)
	evalRun(t, s, "run", metric.ExactMatch)

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, got.Status)

	stored, err := s.GetRun(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, stored.Status)
}

func TestExecuteSkipsRunsThatAreNotQueued(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	geography(s)
	c := oracle()
	e := newExecutor(t, s, c, nil)
	r := evalRun(t, s, "run", metric.ExactMatch)
	require.NoError(t, r.Cancel(t0.Add(time.Second)))
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := e.Execute(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, got.Status)
	require.Empty(t, c.Calls())

	_, err = e.Execute(ctx, "missing")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Parallel()
	s := memory.New()
	enforcer, err := budget.New(s, s, s)
	require.NoError(t, err)
	c := oracle()

	tests := []struct {
		name string
		s    store.Store
		c    llm.Completer
		e    *budget.Enforcer
		opts []executor.Option
	}{
		{name: "no store", c: c, e: enforcer},
		{name: "no completer", s: s, e: enforcer},
		{name: "no enforcer", s: s, c: c},
		{name: "bad bounds", s: s, c: c, e: enforcer, opts: []executor.Option{executor.WithProgressBounds(90, 10)}},
		{name: "nil registry", s: s, c: c, e: enforcer, opts: []executor.Option{executor.WithRegistry(nil)}},
		{name: "nil clock", s: s, c: c, e: enforcer, opts: []executor.Option{executor.WithClock(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := executor.New(tt.s, tt.c, nil, tt.e, tt.opts...); err == nil {
				t.Error("New() = nil error, want error")
			}
		})
	}

	if _, err := executor.New(s, c, nil, enforcer); err != nil {
		t.Errorf("New() = %v", err)
	}
}
