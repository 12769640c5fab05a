/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/store"
)

// ErrInvalidRequest marks a request rejected before a run was created.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// EvaluationRequest asks for one prompt version to be scored on a dataset.
type EvaluationRequest struct {
	WorkspaceID   string              `json:"workspaceId" validate:"required"`
	VersionID     string              `json:"versionId" validate:"required"`
	DatasetID     string              `json:"datasetId" validate:"required"`
	MetricType    string              `json:"metricType" validate:"required"`
	JudgeRubricID string              `json:"judgeRubricId,omitempty"`
	JudgeModel    *domain.ModelConfig `json:"judgeModel,omitempty"`
	MaxSamples    int                 `json:"maxSamples,omitempty" validate:"gte=0"`
	Budget        domain.Budget       `json:"budget"`
}

// ComparisonRequest asks for two prompt versions to be compared on a dataset.
// MetricType defaults to pairwise_judge.
type ComparisonRequest struct {
	WorkspaceID   string              `json:"workspaceId" validate:"required"`
	VersionAID    string              `json:"versionAId" validate:"required"`
	VersionBID    string              `json:"versionBId" validate:"required"`
	DatasetID     string              `json:"datasetId" validate:"required"`
	MetricType    string              `json:"metricType,omitempty"`
	JudgeRubricID string              `json:"judgeRubricId,omitempty"`
	JudgeModel    *domain.ModelConfig `json:"judgeModel,omitempty"`
	MaxSamples    int                 `json:"maxSamples,omitempty" validate:"gte=0"`
	Budget        domain.Budget       `json:"budget"`
}

// Dispatcher starts queued runs in the background.
type Dispatcher interface {
	Submit(runID string) error
}

// Service creates runs.
type Service struct {
	store    store.Store
	enforcer *budget.Enforcer
	registry *metric.Registry
	dispatch Dispatcher
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service) error

// WithDispatcher hands every created run to d.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) error {
		if d == nil {
			return errors.New("dispatcher cannot be nil")
		}
		s.dispatch = d
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// WithIDGenerator replaces the generator of run ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) error {
		if newID == nil {
			return errors.New("id generator cannot be nil")
		}
		s.newID = newID
		return nil
	}
}

// New creates a Service. registry must hold the metrics the executors use.
func New(s store.Store, enforcer *budget.Enforcer, registry *metric.Registry, opts ...Option) (*Service, error) {
	if s == nil || enforcer == nil || registry == nil {
		return nil, errors.New("store, enforcer and registry are required")
	}
	svc := &Service{
		store:    s,
		enforcer: enforcer,
		registry: registry,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return svc, nil
}

// SubmitEvaluation creates a queued evaluation run.
func (s *Service) SubmitEvaluation(ctx context.Context, req EvaluationRequest) (*domain.Run, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalid("%v", err)
	}
	if err := s.checkVersion(ctx, req.VersionID); err != nil {
		return nil, err
	}

	run := domain.NewRun(s.newID(), domain.KindEvaluation, s.now())
	run.WorkspaceID = req.WorkspaceID
	run.VersionID = req.VersionID
	run.DatasetID = req.DatasetID
	run.MetricType = req.MetricType
	run.JudgeRubricID = req.JudgeRubricID
	run.JudgeModel = req.JudgeModel
	run.MaxSamples = req.MaxSamples
	run.Budget = req.Budget
	return s.submit(ctx, run)
}

// SubmitComparison creates a queued comparison run.
func (s *Service) SubmitComparison(ctx context.Context, req ComparisonRequest) (*domain.Run, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalid("%v", err)
	}
	if req.MetricType == "" {
		req.MetricType = metric.PairwiseJudge
	}
	for _, id := range []string{req.VersionAID, req.VersionBID} {
		if err := s.checkVersion(ctx, id); err != nil {
			return nil, err
		}
	}

	run := domain.NewRun(s.newID(), domain.KindComparison, s.now())
	run.WorkspaceID = req.WorkspaceID
	run.VersionAID = req.VersionAID
	run.VersionBID = req.VersionBID
	run.DatasetID = req.DatasetID
	run.MetricType = req.MetricType
	run.JudgeRubricID = req.JudgeRubricID
	run.JudgeModel = req.JudgeModel
	run.MaxSamples = req.MaxSamples
	run.Budget = req.Budget
	return s.submit(ctx, run)
}

// submit checks the metric, dataset and policy for run, then creates and
// dispatches it.
func (s *Service) submit(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	m, ok := s.registry.Get(run.MetricType)
	if !ok {
		return nil, invalid("unknown metric %q", run.MetricType)
	}
	req := metric.RequirementsOf(m)
	pairwise := run.Kind == domain.KindComparison
	switch {
	case req.Pairwise && !pairwise:
		return nil, invalid("metric %q is only available for comparison runs", run.MetricType)
	case !req.Pairwise && pairwise:
		return nil, invalid("metric %q cannot compare two outputs", run.MetricType)
	}

	if run.JudgeRubricID != "" {
		if _, err := s.store.GetRubric(ctx, run.JudgeRubricID); err != nil {
			return nil, notFound("rubric", run.JudgeRubricID, err)
		}
	} else if req.Rubric {
		return nil, invalid("metric %q requires judgeRubricId", run.MetricType)
	}

	examples, err := s.store.ListExamples(ctx, run.DatasetID, 0)
	if err != nil {
		return nil, notFound("dataset", run.DatasetID, err)
	}
	if req.Labels {
		if unlabeled := unlabeledExamples(examples); len(unlabeled) > 0 {
			return nil, invalid("metric %q needs an expected output for every example; dataset %s has none for %s",
				run.MetricType, run.DatasetID, strings.Join(unlabeled, ", "))
		}
	}

	decision, err := s.enforcer.CanStartEvaluationRun(ctx, run.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("check policy: %w", err)
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	log := clog.FromContext(ctx).With("run_id", run.ID).
		With("workspace_id", run.WorkspaceID).
		With("kind", string(run.Kind))
	log.Info("Run queued")

	if s.dispatch != nil {
		if err := s.dispatch.Submit(run.ID); err != nil {
			log.With("error", err).Warn("Run left queued: dispatch failed")
			return run, fmt.Errorf("dispatch run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

// Cancel asks a queued or running run to stop at the next example.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status.Terminal() {
		return invalid("run %s is already %s", runID, run.Status)
	}
	if err := s.store.RequestCancel(ctx, runID); err != nil {
		return fmt.Errorf("request cancellation: %w", err)
	}
	clog.FromContext(ctx).With("run_id", runID).Info("Run cancellation requested")
	return nil
}

func (s *Service) checkVersion(ctx context.Context, id string) error {
	if _, err := s.store.GetVersion(ctx, id); err != nil {
		return notFound("version", id, err)
	}
	return nil
}

func unlabeledExamples(examples []domain.Example) []string {
	var out []string
	for _, ex := range examples {
		if _, ok := ex.Expected(); !ok {
			out = append(out, ex.ID)
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func notFound(what, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return invalid("%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
