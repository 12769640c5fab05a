/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store"
	"chainguard.dev/promptlab/engine/telemetry"
)

// ErrDenied marks a request refused for quota or budget reasons.
var ErrDenied = errors.New("budget denied")

// HardStopPrefix starts the error message of runs stopped for budget reasons.
const HardStopPrefix = "Budget exceeded: "

// AuditActionBudgetExceeded is the audit action written by HardStopRun.
const AuditActionBudgetExceeded = "run.budget_exceeded"

// Usage is a snapshot of a workspace's consumption.
type Usage struct {
	ActiveRuns      int     `json:"activeRuns"`
	MaxActiveRuns   int     `json:"maxActiveRuns"`
	DailyBudgetUsed float64 `json:"dailyBudgetUsed"`
	DailyBudgetUSD  float64 `json:"dailyBudgetUSD"`
}

// Decision is the answer to a budget question.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Usage   Usage  `json:"usage"`
	// RemainingDailyUSD and PerRun are set when a start is allowed.
	RemainingDailyUSD float64       `json:"remainingDailyUSD,omitempty"`
	PerRun            domain.Budget `json:"perRun,omitzero"`
}

// Err returns nil for an allowed decision and an ErrDenied-wrapping error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDenied, d.Reason)
}

// Enforcer applies workspace policies.
type Enforcer struct {
	runs     store.Runs
	policies store.Policies
	audit    store.Audit

	defaults domain.Policy
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures an Enforcer.
type Option func(*Enforcer) error

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		e.now = now
		return nil
	}
}

// WithDefaults sets the policy given to new workspaces.
func WithDefaults(p domain.Policy) Option {
	return func(e *Enforcer) error {
		if p.MaxActiveEvaluationRuns < 0 || p.MaxActiveOptimizationRuns < 0 {
			return errors.New("active run ceilings cannot be negative")
		}
		if p.DailyBudgetUSD < 0 || p.MaxUSDPerRun < 0 {
			return errors.New("USD ceilings cannot be negative")
		}
		e.defaults = p
		return nil
	}
}

// New returns an Enforcer over the given stores.
func New(runs store.Runs, policies store.Policies, audit store.Audit, opts ...Option) (*Enforcer, error) {
	e := &Enforcer{
		runs:     runs,
		policies: policies,
		audit:    audit,
		defaults: DefaultPolicy(),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// GetOrCreatePolicy returns the workspace policy, creating it with defaults
// on first use and resetting the daily spend once its window has elapsed.
func (e *Enforcer) GetOrCreatePolicy(ctx context.Context, workspaceID string) (*domain.Policy, error) {
	now := e.now().UTC()
	p, err := e.policies.GetPolicy(ctx, workspaceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fresh := e.defaults
		fresh.WorkspaceID = workspaceID
		fresh.DailyBudgetUsed = 0
		fresh.DailyBudgetReset = now
		if err := e.policies.CreatePolicy(ctx, &fresh); err != nil && !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create policy: %w", err)
		}
		// Someone else may have won the race; read back what is stored.
		if p, err = e.policies.GetPolicy(ctx, workspaceID); err != nil {
			return nil, fmt.Errorf("get policy: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("get policy: %w", err)
	}

	if windowExpired(p, now) {
		reset, err := e.policies.ResetDailyBudget(ctx, workspaceID, now.Add(-DailyWindow), now)
		if err != nil {
			return nil, fmt.Errorf("reset daily budget: %w", err)
		}
		if reset {
			clog.FromContext(ctx).With("workspace_id", workspaceID).
				With("previous_used", p.DailyBudgetUsed).
				Info("Daily budget window reset")
		}
		if p, err = e.policies.GetPolicy(ctx, workspaceID); err != nil {
			return nil, fmt.Errorf("get policy: %w", err)
		}
	}
	return p, nil
}

// CanStartOptimizationRun decides whether the workspace may start another optimization run.
func (e *Enforcer) CanStartOptimizationRun(ctx context.Context, workspaceID string) (Decision, error) {
	return e.canStart(ctx, workspaceID, domain.CategoryOptimization)
}

// CanStartEvaluationRun decides whether the workspace may start another
// evaluation or comparison run.
func (e *Enforcer) CanStartEvaluationRun(ctx context.Context, workspaceID string) (Decision, error) {
	return e.canStart(ctx, workspaceID, domain.CategoryEvaluation)
}

func (e *Enforcer) canStart(ctx context.Context, workspaceID string, c domain.Category) (Decision, error) {
	p, err := e.GetOrCreatePolicy(ctx, workspaceID)
	if err != nil {
		return Decision{}, err
	}
	active, err := e.runs.CountActive(ctx, workspaceID, c)
	if err != nil {
		return Decision{}, fmt.Errorf("count active runs: %w", err)
	}

	d := Decision{Usage: Usage{
		ActiveRuns:      active,
		MaxActiveRuns:   p.MaxActive(c),
		DailyBudgetUsed: p.DailyBudgetUsed,
		DailyBudgetUSD:  p.DailyBudgetUSD,
	}}
	switch {
	case active >= p.MaxActive(c):
		d.Reason = fmt.Sprintf("Maximum active %s runs (%d) reached", c, p.MaxActive(c))
	case p.DailyRemaining() <= 0:
		d.Reason = fmt.Sprintf("Daily budget exhausted ($%.2f of $%.2f used)", p.DailyBudgetUsed, p.DailyBudgetUSD)
	default:
		d.Allowed = true
		d.RemainingDailyUSD = p.DailyRemaining()
		d.PerRun = domain.Budget{
			MaxCalls:  p.MaxCallsPerRun,
			MaxTokens: p.MaxTokensPerRun,
			MaxUSD:    p.MaxUSDPerRun,
		}
	}
	return d, nil
}

type checkOptions struct {
	run   domain.Budget
	calls int64
}

// CheckOption adjusts CheckRunBudget.
type CheckOption func(*checkOptions)

// WithRunBudget also applies the run's own ceiling. Where both the policy and
// the run set a limit, the smaller one wins.
func WithRunBudget(b domain.Budget) CheckOption {
	return func(o *checkOptions) { o.run = b }
}

// WithUpcomingCalls reserves the provider calls the next unit of work will
// make, so the call limit denies work that would overshoot it. The default
// reservation is one call.
func WithUpcomingCalls(n int64) CheckOption {
	return func(o *checkOptions) { o.calls = n }
}

// CheckRunBudget decides whether a run that has spent cost may continue. It
// does not modify any state.
func (e *Enforcer) CheckRunBudget(ctx context.Context, workspaceID string, cost domain.Cost, opts ...CheckOption) (Decision, error) {
	o := checkOptions{calls: 1}
	for _, opt := range opts {
		opt(&o)
	}
	o.calls = max(o.calls, 1)

	p, err := e.policies.GetPolicy(ctx, workspaceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		d := e.defaults
		d.DailyBudgetReset = e.now().UTC()
		p = &d
	case err != nil:
		return Decision{}, fmt.Errorf("get policy: %w", err)
	}
	used := p.DailyBudgetUsed
	if windowExpired(p, e.now()) {
		used = 0
	}

	maxCalls := smallestLimit(p.MaxCallsPerRun, o.run.MaxCalls)
	maxTokens := smallestLimit(p.MaxTokensPerRun, o.run.MaxTokens)
	maxUSD := smallestLimit(p.MaxUSDPerRun, o.run.MaxUSD)

	d := Decision{Usage: Usage{DailyBudgetUsed: used, DailyBudgetUSD: p.DailyBudgetUSD}}
	switch {
	case maxCalls > 0 && cost.Calls >= maxCalls:
		d.Reason = fmt.Sprintf("call limit reached (%d of %d)", cost.Calls, maxCalls)
	case maxCalls > 0 && cost.Calls+o.calls > maxCalls:
		d.Reason = fmt.Sprintf("call limit reached (next example needs %d calls, %d of %d used)", o.calls, cost.Calls, maxCalls)
	case maxTokens > 0 && cost.Tokens >= maxTokens:
		d.Reason = fmt.Sprintf("token limit reached (%d of %d)", cost.Tokens, maxTokens)
	case maxUSD > 0 && cost.USD >= maxUSD:
		d.Reason = fmt.Sprintf("run cost limit reached ($%.4f of $%.2f)", cost.USD, maxUSD)
	case p.DailyBudgetUSD > 0 && used+cost.USD >= p.DailyBudgetUSD:
		d.Reason = fmt.Sprintf("daily budget reached ($%.4f of $%.2f)", used+cost.USD, p.DailyBudgetUSD)
	default:
		d.Allowed = true
		d.RemainingDailyUSD = p.DailyBudgetUSD - used - cost.USD
	}
	return d, nil
}

// smallestLimit returns the smaller of two ceilings, where zero means unlimited.
func smallestLimit[T int64 | float64](a, b T) T {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

// RecordRunCost adds the USD spent by a finished run to the workspace's daily total.
func (e *Enforcer) RecordRunCost(ctx context.Context, workspaceID string, cost domain.Cost) error {
	if cost.USD <= 0 {
		return nil
	}
	if _, err := e.GetOrCreatePolicy(ctx, workspaceID); err != nil {
		return err
	}
	if err := e.policies.AddDailySpend(ctx, workspaceID, cost.USD); err != nil {
		return fmt.Errorf("record run cost: %w", err)
	}
	return nil
}

// HardStopRun fails a run that exceeded its budget and audits the stop. A run
// that already finished is left alone.
func (e *Enforcer) HardStopRun(ctx context.Context, kind domain.Kind, runID, reason string) error {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status.Terminal() {
		return nil
	}
	now := e.now()
	if err := run.Fail(now, HardStopPrefix+reason); err != nil {
		return err
	}
	if err := e.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	telemetry.BudgetStop(string(kind))
	clog.FromContext(ctx).With("run_id", runID).
		With("workspace_id", run.WorkspaceID).
		With("reason", reason).
		Info("Run stopped: budget exceeded")

	event := &domain.AuditEvent{
		ID:           uuid.NewString(),
		WorkspaceID:  run.WorkspaceID,
		Actor:        "budget-enforcer",
		Action:       AuditActionBudgetExceeded,
		ResourceType: string(kind) + "_run",
		ResourceID:   runID,
		Message:      reason,
		Metadata: map[string]any{
			"calls":  run.Cost.Calls,
			"tokens": run.Cost.Tokens,
			"usd":    run.Cost.USD,
		},
		CreatedAt: now.UTC(),
	}
	if err := e.audit.AppendAudit(ctx, event); err != nil {
		return fmt.Errorf("audit hard stop: %w", err)
	}
	return nil
}

// Limiter returns the request-rate limiter of a workspace. The limiter is
// shared by every run of the workspace and follows the policy's current
// MaxRequestsPerMinute; a non-positive rate is unlimited.
func (e *Enforcer) Limiter(ctx context.Context, workspaceID string) (*rate.Limiter, error) {
	p, err := e.GetOrCreatePolicy(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	limit, burst := rate.Inf, 0
	if rpm := p.MaxRequestsPerMinute; rpm > 0 {
		limit, burst = rate.Every(time.Minute/time.Duration(rpm)), rpm
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	lim, ok := e.limiters[workspaceID]
	if !ok {
		lim = rate.NewLimiter(limit, burst)
		e.limiters[workspaceID] = lim
		return lim, nil
	}
	if lim.Limit() != limit || lim.Burst() != burst {
		clog.FromContext(ctx).With("workspace_id", workspaceID).
			With("requests_per_minute", p.MaxRequestsPerMinute).
			Info("Request rate limit changed")
		lim.SetLimit(limit)
		lim.SetBurst(burst)
	}
	return lim, nil
}
