/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/judge"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/pricing"
	"chainguard.dev/promptlab/engine/render"
	"chainguard.dev/promptlab/engine/store"
	"chainguard.dev/promptlab/engine/telemetry"
)

const (
	// DefaultProgressLow is the progress reported once inputs are loaded.
	DefaultProgressLow = 10
	// DefaultProgressHigh is the progress reported after the last example.
	DefaultProgressHigh = 90
)

// Executor runs evaluation and comparison runs.
type Executor struct {
	store     store.Store
	completer llm.Completer
	judge     judge.Interface
	enforcer  *budget.Enforcer

	renderer render.Interface
	prices   *pricing.Table
	registry *metric.Registry
	low      int
	high     int
	now      func() time.Time
	newID    func() string
}

// New creates an Executor. A nil judge puts the judge metrics in mock mode.
func New(s store.Store, completer llm.Completer, j judge.Interface, enforcer *budget.Enforcer, opts ...Option) (*Executor, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if enforcer == nil {
		return nil, errors.New("budget enforcer is required")
	}

	e := &Executor{
		store:     s,
		completer: completer,
		judge:     j,
		enforcer:  enforcer,
		renderer:  render.Templates{},
		prices:    pricing.Default(),
		low:       DefaultProgressLow,
		high:      DefaultProgressHigh,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if e.registry == nil {
		e.registry = metric.Builtins(j)
	}
	return e, nil
}

func tracer() oteltrace.Tracer {
	return otel.Tracer("chainguard.promptlab.executor",
		oteltrace.WithInstrumentationVersion("1.0.0"))
}

// Execute drives the queued run runID to a terminal state and returns it.
// Runs that are not queued are returned untouched. Failures of the run
// itself are recorded on the run; the returned error reports only a run that
// could not be loaded or persisted.
func (e *Executor) Execute(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	log := clog.FromContext(ctx).With("run_id", run.ID).
		With("workspace_id", run.WorkspaceID).
		With("kind", string(run.Kind))
	if run.Status != domain.StatusQueued {
		log.With("status", string(run.Status)).Info("Skipping run that is not queued")
		return run, nil
	}

	ctx = telemetry.WithRunInfo(ctx, telemetry.RunInfo{
		RunID:       run.ID,
		WorkspaceID: run.WorkspaceID,
		Kind:        string(run.Kind),
	})
	meter := judge.NewMeter(e.prices.Estimate)
	ctx = judge.WithMeter(ctx, meter)

	ctx, span := tracer().Start(ctx, "run.execute", oteltrace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.kind", string(run.Kind)),
		attribute.String("run.metric", run.MetricType),
		attribute.String("workspace.id", run.WorkspaceID),
	))
	defer span.End()

	j := &job{Executor: e, run: run, log: log, meter: meter}
	err = j.execute(ctx)
	if err != nil && !j.run.Status.Terminal() {
		log.With("error", err).Error("Run failed")
		err = j.fail(ctx, err.Error())
	}

	span.SetAttributes(attribute.String("run.status", string(j.run.Status)))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case j.run.Status == domain.StatusFailed:
		span.SetStatus(codes.Error, j.run.ErrorMessage)
	default:
		span.SetStatus(codes.Ok, "")
	}
	return j.run, err
}

// job is the state of one execution.
type job struct {
	*Executor
	run   *domain.Run
	log   *clog.Logger
	meter *judge.Meter
}

// execute returns an error for problems that fail the whole run. Terminal
// transitions it performs itself are persisted before it returns.
func (j *job) execute(ctx context.Context) error {
	requested, err := j.store.CancelRequested(ctx, j.run.ID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if requested {
		return j.cancel(ctx)
	}

	if err := j.run.Start(j.now()); err != nil {
		return err
	}
	if err := j.store.UpdateRun(ctx, j.run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	telemetry.RunStarted(string(j.run.Kind))
	j.log.Info("Run started")

	lim, err := j.enforcer.Limiter(ctx, j.run.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load rate limit: %w", err)
	}
	ctx = llm.WithRateLimit(ctx, lim)

	switch j.run.Kind {
	case domain.KindEvaluation:
		return j.evaluate(ctx)
	case domain.KindComparison:
		return j.compare(ctx)
	default:
		return fmt.Errorf("unsupported run kind %q", j.run.Kind)
	}
}

// setup resolves the run's metric and loads its dataset and rubric.
func (j *job) setup(ctx context.Context, pairwise bool) (metric.Metric, []domain.Example, *domain.RubricConfig, error) {
	m, ok := j.registry.Get(j.run.MetricType)
	if !ok {
		return nil, nil, nil, fmt.Errorf("unknown metric %q", j.run.MetricType)
	}
	req := metric.RequirementsOf(m)
	switch {
	case req.Pairwise && !pairwise:
		return nil, nil, nil, fmt.Errorf("metric %q compares two outputs and requires a comparison run", j.run.MetricType)
	case !req.Pairwise && pairwise:
		return nil, nil, nil, fmt.Errorf("metric %q cannot compare two outputs", j.run.MetricType)
	}

	var rubric *domain.RubricConfig
	if j.run.JudgeRubricID != "" {
		r, err := j.store.GetRubric(ctx, j.run.JudgeRubricID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load rubric %s: %w", j.run.JudgeRubricID, err)
		}
		rubric = r
	}
	if req.Rubric && rubric == nil {
		return nil, nil, nil, fmt.Errorf("metric %q requires a judge rubric", j.run.MetricType)
	}

	examples, err := j.store.ListExamples(ctx, j.run.DatasetID, j.run.MaxSamples)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load dataset %s: %w", j.run.DatasetID, err)
	}
	return m, examples, rubric, nil
}

func (j *job) loadVersion(ctx context.Context, id string) (*domain.PromptVersion, error) {
	v, err := j.store.GetVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", id, err)
	}
	return v, nil
}

// progress interpolates between the bounds after done of n examples.
func (j *job) progress(done, n int) int {
	if n == 0 {
		return j.high
	}
	return j.low + (j.high-j.low)*done/n
}

func (j *job) advance(ctx context.Context, progress int, stage string) error {
	if err := j.run.Advance(progress, stage); err != nil {
		return err
	}
	if err := j.store.UpdateRun(ctx, j.run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// proceed is called before every example that can make up to calls provider
// calls. It reports false when the run was canceled or stopped for budget
// reasons, in which case the run has already been settled.
func (j *job) proceed(ctx context.Context, calls int64) (bool, error) {
	if ctx.Err() != nil {
		return false, j.cancel(ctx)
	}
	requested, err := j.store.CancelRequested(ctx, j.run.ID)
	if err != nil {
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	if requested {
		return false, j.cancel(ctx)
	}

	d, err := j.enforcer.CheckRunBudget(ctx, j.run.WorkspaceID, j.run.Cost,
		budget.WithRunBudget(j.run.Budget),
		budget.WithUpcomingCalls(calls))
	if err != nil {
		return false, fmt.Errorf("check budget: %w", err)
	}
	if !d.Allowed {
		return false, j.hardStop(ctx, d.Reason)
	}
	return true, nil
}

// callsPerExample is the most provider calls one example makes: a model call
// per side plus the judge call when the metric uses a real judge.
func (j *job) callsPerExample(m metric.Metric, sides int64) int64 {
	if j.judge != nil && metric.RequirementsOf(m).Judge {
		return sides + 1
	}
	return sides
}

// output is the model response for one side of one example.
type output struct {
	text   string
	called bool
	usage  llm.Usage
	err    error
}

// generate renders version for ex and calls the model.
func (j *job) generate(ctx context.Context, version *domain.PromptVersion, ex domain.Example) output {
	msgs, err := j.renderer.Render(version.Content, ex.InputVariables)
	if err != nil {
		return output{err: fmt.Errorf("render prompt: %w", err)}
	}
	if err := llm.Throttle(ctx); err != nil {
		return output{err: fmt.Errorf("wait for rate limit: %w", err)}
	}
	completion, err := j.completer.Complete(ctx, msgs, version.Model)
	if err != nil {
		return output{called: true, err: fmt.Errorf("model call: %w", err)}
	}
	return output{text: completion.Text, called: true, usage: completion.Usage}
}

// charge adds the cost of a model call to the run.
func (j *job) charge(model string, o output) {
	if !o.called {
		return
	}
	j.run.Cost = j.run.Cost.Add(domain.Cost{
		Calls:  1,
		Tokens: o.usage.TotalTokens,
		USD:    j.prices.Estimate(model, o.usage),
	})
}

// score runs m, turning a panic into a failed outcome.
func (j *job) score(ctx context.Context, m metric.Metric, text string, mc metric.Context) (out metric.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = metric.Outcome{Reason: fmt.Sprintf("metric panicked: %v", r)}
		}
	}()
	out = m.Evaluate(ctx, text, mc)
	if math.IsNaN(out.Score) {
		out.Score = 0
	}
	out.Score = min(max(out.Score, 0), 1)
	if !out.Passed && out.Reason == "" {
		out.Reason = "metric reported a failure"
	}
	return out
}

// newResult starts the Result of ex.
func (j *job) newResult(ex domain.Example) *domain.Result {
	return &domain.Result{
		ID:        j.newID(),
		RunID:     j.run.ID,
		ExampleID: ex.ID,
		CreatedAt: j.now().UTC(),
	}
}

// save persists res and the run's accumulated cost and progress.
func (j *job) save(ctx context.Context, res *domain.Result, details any, progress int, stage string) error {
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			j.log.With("example_id", res.ExampleID).With("error", err).Warn("Dropping unserializable metric details")
		} else {
			res.JudgeDetails = raw
		}
	}
	j.run.Cost = j.run.Cost.Add(j.meter.Take())
	if err := j.store.CreateResult(ctx, res); err != nil {
		return fmt.Errorf("store result for example %s: %w", res.ExampleID, err)
	}
	telemetry.ExampleResult(j.run.MetricType, res.Passed)
	return j.advance(ctx, progress, stage)
}

func (j *job) startExample(ctx context.Context, i int, ex domain.Example) (context.Context, oteltrace.Span) {
	return tracer().Start(ctx, "run.example", oteltrace.WithAttributes(
		attribute.String("example.id", ex.ID),
		attribute.Int("example.index", i),
	))
}

func (j *job) succeed(ctx context.Context) error {
	if err := j.run.Succeed(j.now()); err != nil {
		return err
	}
	j.log.With("calls", j.run.Cost.Calls).
		With("tokens", j.run.Cost.Tokens).
		With("usd", j.run.Cost.USD).
		Info("Run succeeded")
	return j.settle(ctx, true)
}

func (j *job) fail(ctx context.Context, msg string) error {
	if err := j.run.Fail(j.now(), msg); err != nil {
		return err
	}
	j.log.With("error", msg).Info("Run failed")
	return j.settle(ctx, true)
}

func (j *job) cancel(ctx context.Context) error {
	if err := j.run.Cancel(j.now()); err != nil {
		return err
	}
	j.log.Info("Run canceled")
	return j.settle(ctx, true)
}

// hardStop persists the spend so far and lets the enforcer fail the run.
func (j *job) hardStop(ctx context.Context, reason string) error {
	ctx = context.WithoutCancel(ctx)
	if err := j.store.UpdateRun(ctx, j.run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := j.enforcer.HardStopRun(ctx, j.run.Kind, j.run.ID, reason); err != nil {
		return fmt.Errorf("hard stop: %w", err)
	}
	run, err := j.store.GetRun(ctx, j.run.ID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	j.run = run
	return j.settle(ctx, false)
}

// settle persists a terminal run when write is set and charges its spend to
// the workspace's daily budget.
func (j *job) settle(ctx context.Context, write bool) error {
	ctx = context.WithoutCancel(ctx)
	if write {
		if err := j.store.UpdateRun(ctx, j.run); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
	}
	telemetry.RunFinished(string(j.run.Kind), string(j.run.Status), j.run.Cost.USD)
	if err := j.enforcer.RecordRunCost(ctx, j.run.WorkspaceID, j.run.Cost); err != nil {
		return fmt.Errorf("charge daily budget: %w", err)
	}
	return nil
}
