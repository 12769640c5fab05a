/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"fmt"
	"time"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store"
)

const policyColumns = `workspace_id, max_active_optimization_runs, max_active_evaluation_runs,
	max_calls_per_run, max_tokens_per_run, max_usd_per_run,
	daily_budget_usd, daily_budget_used, daily_budget_reset, max_requests_per_minute`

const insertPolicyQuery = `INSERT INTO workspace_policies (` + policyColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (workspace_id) DO NOTHING`

// The conditional WHERE makes concurrent resets of the same window collapse into one.
const resetDailyBudgetQuery = `UPDATE workspace_policies
	SET daily_budget_used = 0, daily_budget_reset = $3
	WHERE workspace_id = $1 AND daily_budget_reset <= $2`

const addDailySpendQuery = `UPDATE workspace_policies
	SET daily_budget_used = daily_budget_used + $2
	WHERE workspace_id = $1`

func (s *Store) GetPolicy(ctx context.Context, workspaceID string) (*domain.Policy, error) {
	var p domain.Policy
	err := s.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM workspace_policies WHERE workspace_id = $1`, workspaceID).
		Scan(&p.WorkspaceID, &p.MaxActiveOptimizationRuns, &p.MaxActiveEvaluationRuns,
			&p.MaxCallsPerRun, &p.MaxTokensPerRun, &p.MaxUSDPerRun,
			&p.DailyBudgetUSD, &p.DailyBudgetUsed, &p.DailyBudgetReset, &p.MaxRequestsPerMinute)
	if err != nil {
		return nil, handleNotFound(err, "policy "+workspaceID)
	}
	p.DailyBudgetReset = p.DailyBudgetReset.UTC()
	return &p, nil
}

func (s *Store) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	res, err := s.db.ExecContext(ctx, insertPolicyQuery,
		p.WorkspaceID, p.MaxActiveOptimizationRuns, p.MaxActiveEvaluationRuns,
		p.MaxCallsPerRun, p.MaxTokensPerRun, p.MaxUSDPerRun,
		p.DailyBudgetUSD, p.DailyBudgetUsed, p.DailyBudgetReset.UTC(), p.MaxRequestsPerMinute)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("policy %s: %w", p.WorkspaceID, store.ErrConflict)
	}
	return nil
}

func (s *Store) ResetDailyBudget(ctx context.Context, workspaceID string, cutoff, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, resetDailyBudgetQuery, workspaceID, cutoff.UTC(), now.UTC())
	if err != nil {
		return false, fmt.Errorf("reset daily budget: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) AddDailySpend(ctx context.Context, workspaceID string, usd float64) error {
	res, err := s.db.ExecContext(ctx, addDailySpendQuery, workspaceID, usd)
	if err != nil {
		return fmt.Errorf("add daily spend: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("policy %s: %w", workspaceID, store.ErrNotFound)
	}
	return nil
}
