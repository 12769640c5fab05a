/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store"
)

func TestQueries(t *testing.T) {
	t.Parallel()
	if !strings.Contains(claimQueuedQuery, "FOR UPDATE SKIP LOCKED") {
		t.Error("claim query must skip rows locked by other workers")
	}
	if !strings.Contains(claimQueuedQuery, "claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $2)") {
		t.Error("claim query must hand out unclaimed runs and runs whose claim lapsed")
	}
	if !strings.Contains(addDailySpendQuery, "daily_budget_used = daily_budget_used + $2") {
		t.Error("daily spend must be incremented in place")
	}
	if !strings.Contains(resetDailyBudgetQuery, "daily_budget_reset <= $2") {
		t.Error("daily reset must be conditional on the previous reset")
	}
	if !strings.Contains(insertPolicyQuery, "ON CONFLICT (workspace_id) DO NOTHING") {
		t.Error("policy creation must not overwrite an existing policy")
	}
	if got, want := strings.Count(insertRunQuery, "$"), strings.Count(runColumns, ",")+1; got != want {
		t.Errorf("insert run has %d placeholders for %d columns", got, want)
	}
}

func TestListRunsQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		filter    store.RunFilter
		wantWhere string
		wantArgs  []any
	}{{
		name:     "no filter",
		wantArgs: []any{},
	}, {
		name:      "workspace and status",
		filter:    store.RunFilter{WorkspaceID: "ws", Status: domain.StatusRunning},
		wantWhere: " WHERE workspace_id = $1 AND status = $2 ORDER BY created_at DESC",
		wantArgs:  []any{"ws", "running"},
	}, {
		name:      "kind with limit",
		filter:    store.RunFilter{Kind: domain.KindComparison, Limit: 5},
		wantWhere: " WHERE kind = $1 ORDER BY created_at DESC LIMIT $2",
		wantArgs:  []any{"comparison", 5},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			query, args := listRunsQuery(tt.filter)
			if tt.wantWhere != "" && !strings.HasSuffix(query, tt.wantWhere) {
				t.Errorf("query = %q, want suffix %q", query, tt.wantWhere)
			}
			if tt.wantWhere == "" && strings.Contains(query, "WHERE") {
				t.Errorf("query = %q, want no WHERE", query)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	if err := handleNotFound(sql.ErrNoRows, "run x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("handleNotFound() = %v", err)
	}
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"})
	if err := handleConflict(dup, "run x"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("handleConflict() = %v", err)
	}
	other := errors.New("boom")
	if err := handleConflict(other, "run x"); err != other {
		t.Errorf("handleConflict() = %v, want passthrough", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	valid := Config{URL: "postgres://localhost/x", PingTimeout: time.Second, MaxOpenConns: 4, MaxIdleConns: 2}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	bad := valid
	bad.MaxIdleConns = 8
	if err := bad.Validate(); err == nil {
		t.Error("idle connections above the open limit accepted")
	}
	bad = valid
	bad.URL = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty URL accepted")
	}
}

// TestStoreIntegration runs against a real database when
// PROMPTLAB_TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("PROMPTLAB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PROMPTLAB_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, Config{URL: url, PingTimeout: 5 * time.Second, MaxOpenConns: 4, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))
	s := New(db)

	ws := "ws-" + uuid.NewString()
	run := domain.NewRun(uuid.NewString(), domain.KindEvaluation, time.Now())
	run.WorkspaceID = ws
	run.DatasetID = "ds"
	run.VersionID = "v"
	run.MetricType = "exact_match"
	run.Budget = domain.Budget{MaxCalls: 10}
	require.NoError(t, s.CreateRun(ctx, run))
	require.ErrorIs(t, s.CreateRun(ctx, run), store.ErrConflict)

	n, err := s.CountActive(ctx, ws, domain.CategoryEvaluation)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A claim hides the run until its lease lapses.
	leased := New(db, WithClaimLease(time.Second))
	claimed, err := leased.ClaimQueued(ctx, 100)
	require.NoError(t, err)
	require.True(t, containsRun(claimed, run.ID))
	claimed, err = leased.ClaimQueued(ctx, 100)
	require.NoError(t, err)
	require.False(t, containsRun(claimed, run.ID))
	time.Sleep(1100 * time.Millisecond)
	claimed, err = leased.ClaimQueued(ctx, 100)
	require.NoError(t, err)
	require.True(t, containsRun(claimed, run.ID))

	require.NoError(t, run.Start(time.Now()))
	score := 0.75
	run.Score = &score
	require.NoError(t, s.UpdateRun(ctx, run))
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, got.Status)
	require.Equal(t, int64(10), got.Budget.MaxCalls)
	require.InDelta(t, 0.75, *got.Score, 1e-9)

	require.NoError(t, s.RequestCancel(ctx, run.ID))
	requested, err := s.CancelRequested(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, requested)

	res := &domain.Result{ID: uuid.NewString(), RunID: run.ID, ExampleID: "ex", Passed: true, Score: 1, CreatedAt: time.Now()}
	require.NoError(t, s.CreateResult(ctx, res))
	res.ID = uuid.NewString()
	require.ErrorIs(t, s.CreateResult(ctx, res), store.ErrConflict)

	policy := &domain.Policy{WorkspaceID: ws, DailyBudgetUSD: 50, DailyBudgetReset: time.Now().Add(-25 * time.Hour)}
	require.NoError(t, s.CreatePolicy(ctx, policy))
	require.ErrorIs(t, s.CreatePolicy(ctx, policy), store.ErrConflict)
	require.NoError(t, s.AddDailySpend(ctx, ws, 2.5))
	reset, err := s.ResetDailyBudget(ctx, ws, time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	require.True(t, reset)
	p, err := s.GetPolicy(ctx, ws)
	require.NoError(t, err)
	require.Zero(t, p.DailyBudgetUsed)

	require.NoError(t, s.AppendAudit(ctx, &domain.AuditEvent{
		ID: uuid.NewString(), WorkspaceID: ws, Actor: "test", Action: "run.budget_exceeded",
		ResourceType: "run", ResourceID: run.ID,
	}))
}

func containsRun(runs []*domain.Run, id string) bool {
	for _, r := range runs {
		if r.ID == id {
			return true
		}
	}
	return false
}
