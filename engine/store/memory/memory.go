/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package memory is an in-process implementation of the store contracts,
// used by tests and the local CLI.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store"
)

// Store keeps every record in maps guarded by one mutex. Records are copied
// on the way in and out, so callers never share memory with the store.
type Store struct {
	mu sync.Mutex

	runs     map[string]*domain.Run
	runOrder []string
	cancel   map[string]bool
	claimed  map[string]time.Time
	results  map[string][]*domain.Result
	versions map[string]*domain.PromptVersion
	rubrics  map[string]*domain.RubricConfig
	datasets map[string][]domain.Example
	policies map[string]*domain.Policy
	audit    []*domain.AuditEvent

	now   func() time.Time
	lease time.Duration
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for claim leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithClaimLease overrides store.DefaultClaimLease.
func WithClaimLease(d time.Duration) Option {
	return func(s *Store) { s.lease = d }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		runs:     make(map[string]*domain.Run),
		cancel:   make(map[string]bool),
		claimed:  make(map[string]time.Time),
		results:  make(map[string][]*domain.Result),
		versions: make(map[string]*domain.PromptVersion),
		rubrics:  make(map[string]*domain.RubricConfig),
		datasets: make(map[string][]domain.Example),
		policies: make(map[string]*domain.Policy),
		now:      time.Now,
		lease:    store.DefaultClaimLease,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutPolicy adds or replaces a workspace policy.
func (s *Store) PutPolicy(p domain.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.WorkspaceID] = &p
}

// PutVersion adds or replaces a prompt version.
func (s *Store) PutVersion(v domain.PromptVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID] = &v
}

// PutRubric adds or replaces a rubric.
func (s *Store) PutRubric(r domain.RubricConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Criteria = slices.Clone(r.Criteria)
	s.rubrics[r.ID] = &r
}

// PutDataset replaces the examples of a dataset, keeping their order.
func (s *Store) PutDataset(datasetID string, examples ...domain.Example) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Example, len(examples))
	for i, ex := range examples {
		ex.DatasetID = datasetID
		out[i] = ex
	}
	s.datasets[datasetID] = out
}

// AuditEvents returns the audit log in append order.
func (s *Store) AuditEvents() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEvent, len(s.audit))
	for i, e := range s.audit {
		out[i] = *e
	}
	return out
}

func (s *Store) CreateRun(_ context.Context, run *domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, store.ErrConflict)
	}
	s.runs[run.ID] = run.Clone()
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Store) UpdateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, store.ErrNotFound)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *Store) ListRuns(_ context.Context, f store.RunFilter) ([]*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Run
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		r := s.runs[s.runOrder[i]]
		if f.WorkspaceID != "" && r.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountActive(_ context.Context, workspaceID string, c domain.Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.runs {
		if r.WorkspaceID == workspaceID && r.Status.Active() && r.Kind.Category() == c {
			n++
		}
	}
	return n, nil
}

func (s *Store) RequestCancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	s.cancel[id] = true
	return nil
}

func (s *Store) CancelRequested(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return s.cancel[id], nil
}

func (s *Store) ClaimQueued(_ context.Context, limit int) ([]*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []*domain.Run
	for _, id := range s.runOrder {
		if limit > 0 && len(out) == limit {
			break
		}
		r := s.runs[id]
		if r.Status != domain.StatusQueued || r.Kind == domain.KindOptimization {
			continue
		}
		if at, ok := s.claimed[id]; ok && now.Sub(at) < s.lease {
			continue
		}
		s.claimed[id] = now
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *Store) CreateResult(_ context.Context, res *domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[res.RunID]; !ok {
		return fmt.Errorf("run %s: %w", res.RunID, store.ErrNotFound)
	}
	for _, existing := range s.results[res.RunID] {
		if existing.ExampleID == res.ExampleID {
			return fmt.Errorf("result for run %s example %s: %w", res.RunID, res.ExampleID, store.ErrConflict)
		}
	}
	cp := *res
	cp.JudgeDetails = slices.Clone(res.JudgeDetails)
	s.results[res.RunID] = append(s.results[res.RunID], &cp)
	return nil
}

func (s *Store) ListResults(_ context.Context, runID string) ([]*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Result, 0, len(s.results[runID]))
	for _, r := range s.results[runID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetVersion(_ context.Context, id string) (*domain.PromptVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, store.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (s *Store) GetRubric(_ context.Context, id string) (*domain.RubricConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rubrics[id]
	if !ok {
		return nil, fmt.Errorf("rubric %s: %w", id, store.ErrNotFound)
	}
	cp := *r
	cp.Criteria = slices.Clone(r.Criteria)
	return &cp, nil
}

func (s *Store) ListExamples(_ context.Context, datasetID string, limit int) ([]domain.Example, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	examples, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, store.ErrNotFound)
	}
	if limit > 0 && limit < len(examples) {
		examples = examples[:limit]
	}
	return slices.Clone(examples), nil
}

func (s *Store) GetPolicy(_ context.Context, workspaceID string) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[workspaceID]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", workspaceID, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CreatePolicy(_ context.Context, p *domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.WorkspaceID]; ok {
		return fmt.Errorf("policy %s: %w", p.WorkspaceID, store.ErrConflict)
	}
	cp := *p
	s.policies[p.WorkspaceID] = &cp
	return nil
}

func (s *Store) ResetDailyBudget(_ context.Context, workspaceID string, cutoff, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[workspaceID]
	if !ok {
		return false, fmt.Errorf("policy %s: %w", workspaceID, store.ErrNotFound)
	}
	if p.DailyBudgetReset.After(cutoff) {
		return false, nil
	}
	p.DailyBudgetUsed = 0
	p.DailyBudgetReset = now.UTC()
	return true, nil
}

func (s *Store) AddDailySpend(_ context.Context, workspaceID string, usd float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[workspaceID]
	if !ok {
		return fmt.Errorf("policy %s: %w", workspaceID, store.ErrNotFound)
	}
	p.DailyBudgetUsed += usd
	return nil
}

func (s *Store) AppendAudit(_ context.Context, e *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}
