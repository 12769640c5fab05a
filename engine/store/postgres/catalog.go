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
	"chainguard.dev/promptlab/engine/store"
)

const listExamplesQuery = `SELECT id, dataset_id, input_variables, expected_output, metadata
	FROM examples WHERE dataset_id = $1 ORDER BY position, id`

func (s *Store) GetVersion(ctx context.Context, id string) (*domain.PromptVersion, error) {
	var (
		v              domain.PromptVersion
		content, model []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, content, model FROM prompt_versions WHERE id = $1`, id).
		Scan(&v.ID, &content, &model)
	if err != nil {
		return nil, handleNotFound(err, "version "+id)
	}
	if err := decodeJSON(content, &v.Content); err != nil {
		return nil, fmt.Errorf("decode version content: %w", err)
	}
	if err := decodeJSON(model, &v.Model); err != nil {
		return nil, fmt.Errorf("decode version model: %w", err)
	}
	return &v, nil
}

func (s *Store) GetRubric(ctx context.Context, id string) (*domain.RubricConfig, error) {
	var (
		r            domain.RubricConfig
		criteria     []byte
		instructions sql.NullString
		format       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, criteria, instructions, output_format FROM rubrics WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &criteria, &instructions, &format)
	if err != nil {
		return nil, handleNotFound(err, "rubric "+id)
	}
	if err := decodeJSON(criteria, &r.Criteria); err != nil {
		return nil, fmt.Errorf("decode rubric criteria: %w", err)
	}
	r.Instructions = instructions.String
	r.OutputFormat = domain.OutputFormat(format)
	return &r, nil
}

func (s *Store) ListExamples(ctx context.Context, datasetID string, limit int) ([]domain.Example, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM datasets WHERE id = $1)`, datasetID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup dataset: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, store.ErrNotFound)
	}

	query, args := listExamplesQuery, []any{datasetID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list examples: %w", err)
	}
	defer rows.Close()

	var out []domain.Example
	for rows.Next() {
		var (
			ex             domain.Example
			vars, metadata []byte
			expected       sql.NullString
		)
		if err := rows.Scan(&ex.ID, &ex.DatasetID, &vars, &expected, &metadata); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		if err := decodeJSON(vars, &ex.InputVariables); err != nil {
			return nil, fmt.Errorf("decode input variables of %s: %w", ex.ID, err)
		}
		if err := decodeJSON(metadata, &ex.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", ex.ID, err)
		}
		if expected.Valid {
			ex.ExpectedOutput = &expected.String
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate examples: %w", err)
	}
	return out, nil
}
