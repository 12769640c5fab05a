/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chainguard.dev/promptlab/engine/domain"
)

const insertResultQuery = `INSERT INTO results (
		id, run_id, example_id, output_text, output_text_a, output_text_b,
		passed, score, failure_reason, judge_details, winner, winner_reason, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

const listResultsQuery = `SELECT id, run_id, example_id, output_text, output_text_a, output_text_b,
		passed, score, failure_reason, judge_details, winner, winner_reason, created_at
	FROM results WHERE run_id = $1 ORDER BY seq`

func (s *Store) CreateResult(ctx context.Context, r *domain.Result) error {
	var details []byte
	if len(r.JudgeDetails) > 0 {
		details = r.JudgeDetails
	}
	_, err := s.db.ExecContext(ctx, insertResultQuery,
		r.ID,
		r.RunID,
		r.ExampleID,
		nullIfEmpty(r.OutputText),
		nullIfEmpty(r.OutputTextA),
		nullIfEmpty(r.OutputTextB),
		r.Passed,
		r.Score,
		nullIfEmpty(r.FailureReason),
		details,
		nullIfEmpty(string(r.Winner)),
		nullIfEmpty(r.WinnerReason),
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", handleConflict(err, "result for example "+r.ExampleID))
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, runID string) ([]*domain.Result, error) {
	rows, err := s.db.QueryContext(ctx, listResultsQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		var (
			r                          domain.Result
			output, outputA, outputB   sql.NullString
			failure, winner, winReason sql.NullString
			details                    []byte
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.ExampleID, &output, &outputA, &outputB,
			&r.Passed, &r.Score, &failure, &details, &winner, &winReason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.OutputText = output.String
		r.OutputTextA = outputA.String
		r.OutputTextB = outputB.String
		r.FailureReason = failure.String
		r.Winner = domain.Winner(winner.String)
		r.WinnerReason = winReason.String
		r.JudgeDetails = details
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
