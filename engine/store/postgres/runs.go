/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store"
)

const runColumns = `id, workspace_id, kind, dataset_id, version_id, version_a_id, version_b_id,
	metric_type, judge_rubric_id, judge_model, max_samples, budget,
	status, progress, stage, error_message, created_at, started_at, finished_at,
	score, wins_a, wins_b, ties, score_a, score_b, cost_calls, cost_tokens, cost_usd`

const insertRunQuery = `INSERT INTO runs (` + runColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`

const updateRunQuery = `UPDATE runs SET
	status = $2, progress = $3, stage = $4, error_message = $5,
	started_at = $6, finished_at = $7, score = $8,
	wins_a = $9, wins_b = $10, ties = $11, score_a = $12, score_b = $13,
	cost_calls = $14, cost_tokens = $15, cost_usd = $16
	WHERE id = $1`

const countActiveQuery = `SELECT count(*) FROM runs
	WHERE workspace_id = $1 AND status IN ('queued', 'running') AND kind = ANY($2)`

const claimQueuedQuery = `UPDATE runs SET claimed_at = now()
	WHERE id IN (
		SELECT id FROM runs
		WHERE status = 'queued' AND kind <> 'optimization'
			AND (claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $2))
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + runColumns

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var (
		r                              domain.Run
		dataset, version, versionA     sql.NullString
		versionB, metricType, rubricID sql.NullString
		errMsg                         sql.NullString
		judgeModel, budget             []byte
		startedAt, finishedAt          sql.NullTime
		score, scoreA, scoreB          sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &r.WorkspaceID, &r.Kind, &dataset, &version, &versionA, &versionB,
		&metricType, &rubricID, &judgeModel, &r.MaxSamples, &budget,
		&r.Status, &r.Progress, &r.Stage, &errMsg, &r.CreatedAt, &startedAt, &finishedAt,
		&score, &r.WinsA, &r.WinsB, &r.Ties, &scoreA, &scoreB, &r.Cost.Calls, &r.Cost.Tokens, &r.Cost.USD); err != nil {
		return nil, err
	}
	r.DatasetID = dataset.String
	r.VersionID = version.String
	r.VersionAID = versionA.String
	r.VersionBID = versionB.String
	r.MetricType = metricType.String
	r.JudgeRubricID = rubricID.String
	r.ErrorMessage = errMsg.String
	r.CreatedAt = r.CreatedAt.UTC()
	r.StartedAt = timePtr(startedAt)
	r.FinishedAt = timePtr(finishedAt)
	r.Score = floatPtr(score)
	r.ScoreA = floatPtr(scoreA)
	r.ScoreB = floatPtr(scoreB)
	if err := decodeJSON(judgeModel, &r.JudgeModel); err != nil {
		return nil, fmt.Errorf("decode judge model: %w", err)
	}
	if err := decodeJSON(budget, &r.Budget); err != nil {
		return nil, fmt.Errorf("decode budget: %w", err)
	}
	return &r, nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	judgeModel, err := encodeJSON(run.JudgeModel)
	if err != nil {
		return fmt.Errorf("encode judge model: %w", err)
	}
	budget, err := encodeJSON(run.Budget)
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.WorkspaceID),
		string(run.Kind),
		nullIfEmpty(run.DatasetID),
		nullIfEmpty(run.VersionID),
		nullIfEmpty(run.VersionAID),
		nullIfEmpty(run.VersionBID),
		nullIfEmpty(run.MetricType),
		nullIfEmpty(run.JudgeRubricID),
		judgeModel,
		run.MaxSamples,
		budget,
		string(run.Status),
		run.Progress,
		run.Stage,
		nullIfEmpty(run.ErrorMessage),
		run.CreatedAt.UTC(),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		nullFloat(run.Score),
		run.WinsA,
		run.WinsB,
		run.Ties,
		nullFloat(run.ScoreA),
		nullFloat(run.ScoreB),
		run.Cost.Calls,
		run.Cost.Tokens,
		run.Cost.USD,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", handleConflict(err, "run "+run.ID))
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, handleNotFound(err, "run "+id)
	}
	return r, nil
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.Run) error {
	res, err := s.db.ExecContext(ctx, updateRunQuery,
		run.ID,
		string(run.Status),
		run.Progress,
		run.Stage,
		nullIfEmpty(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		nullFloat(run.Score),
		run.WinsA,
		run.WinsB,
		run.Ties,
		nullFloat(run.ScoreA),
		nullFloat(run.ScoreB),
		run.Cost.Calls,
		run.Cost.Tokens,
		run.Cost.USD,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, store.ErrNotFound)
	}
	return nil
}

// listRunsQuery builds the filtered listing query and its arguments.
func listRunsQuery(f store.RunFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if f.WorkspaceID != "" {
		args = append(args, f.WorkspaceID)
		clauses = append(clauses, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Store) ListRuns(ctx context.Context, f store.RunFilter) ([]*domain.Run, error) {
	query, args := listRunsQuery(f)
	return s.queryRuns(ctx, query, args...)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (s *Store) CountActive(ctx context.Context, workspaceID string, c domain.Category) (int, error) {
	kinds := make([]string, 0, 2)
	for _, k := range c.Kinds() {
		kinds = append(kinds, string(k))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, countActiveQuery, workspaceID, kinds).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active runs: %w", err)
	}
	return n, nil
}

func (s *Store) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET cancel_requested = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM runs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		return false, handleNotFound(err, "run "+id)
	}
	return requested, nil
}

func (s *Store) ClaimQueued(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	runs, err := s.queryRuns(ctx, claimQueuedQuery, limit, s.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim queued runs: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	slices.SortFunc(runs, func(a, b *domain.Run) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return runs, nil
}
