/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package store defines the persistence contracts of the run engine: run
// records, per-example results, the read-only catalog of versions, examples
// and rubrics, workspace policies and the audit log.
//
// Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"chainguard.dev/promptlab/engine/domain"
)

// DefaultClaimLease is how long a claimed run may stay queued before another
// worker may claim it.
const DefaultClaimLease = 10 * time.Minute

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when creating a record that already exists.
	ErrConflict = errors.New("already exists")
)

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	WorkspaceID string
	Kind        domain.Kind
	Status      domain.Status
	Limit       int
}

// Runs persists run records.
type Runs interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	// UpdateRun replaces the stored record. Repeating an identical write is a no-op.
	UpdateRun(ctx context.Context, run *domain.Run) error
	// ListRuns returns matching runs, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*domain.Run, error)
	// CountActive counts queued and running runs of a workspace in category c.
	CountActive(ctx context.Context, workspaceID string, c domain.Category) (int, error)
	// RequestCancel flags a run for cooperative cancellation.
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
	// ClaimQueued hands up to limit unclaimed queued evaluation and
	// comparison runs to the caller, oldest first. A claim on a run that is
	// still queued once its lease has passed lapses, so runs held by a
	// worker that died before starting them are handed out again.
	ClaimQueued(ctx context.Context, limit int) ([]*domain.Run, error)
}

// Results persists per-example results. A result is written once.
type Results interface {
	// CreateResult returns ErrConflict when the run already has a result for the example.
	CreateResult(ctx context.Context, result *domain.Result) error
	// ListResults returns the results of a run in creation order.
	ListResults(ctx context.Context, runID string) ([]*domain.Result, error)
}

// Catalog reads the entities a run references.
type Catalog interface {
	GetVersion(ctx context.Context, id string) (*domain.PromptVersion, error)
	GetRubric(ctx context.Context, id string) (*domain.RubricConfig, error)
	// ListExamples returns a dataset's examples in dataset order, at most
	// limit of them when limit is positive. Unknown datasets are ErrNotFound.
	ListExamples(ctx context.Context, datasetID string, limit int) ([]domain.Example, error)
}

// Policies persists workspace policies.
type Policies interface {
	GetPolicy(ctx context.Context, workspaceID string) (*domain.Policy, error)
	// CreatePolicy returns ErrConflict when the workspace already has one.
	CreatePolicy(ctx context.Context, p *domain.Policy) error
	// ResetDailyBudget zeroes the daily spend and sets the reset time to now,
	// but only if the last reset is not after cutoff. It reports whether it reset.
	ResetDailyBudget(ctx context.Context, workspaceID string, cutoff, now time.Time) (bool, error)
	// AddDailySpend atomically increments the daily spend.
	AddDailySpend(ctx context.Context, workspaceID string, usd float64) error
}

// Audit appends audit events.
type Audit interface {
	AppendAudit(ctx context.Context, event *domain.AuditEvent) error
}

// Store is the full persistence surface.
type Store interface {
	Runs
	Results
	Catalog
	Policies
	Audit
}
