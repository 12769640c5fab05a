/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when a run is asked to move to a state
// the lifecycle does not allow from its current one.
var ErrInvalidTransition = errors.New("invalid run transition")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Active reports whether a run in state s counts against concurrency limits.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// Kind distinguishes the shapes of run.
type Kind string

const (
	KindEvaluation   Kind = "evaluation"
	KindComparison   Kind = "comparison"
	KindOptimization Kind = "optimization"
)

// Category is the quota bucket a run is counted in.
type Category string

const (
	CategoryEvaluation   Category = "evaluation"
	CategoryOptimization Category = "optimization"
)

// Category returns the quota bucket for k.
func (k Kind) Category() Category {
	if k == KindOptimization {
		return CategoryOptimization
	}
	return CategoryEvaluation
}

// Kinds returns the run kinds counted in c.
func (c Category) Kinds() []Kind {
	if c == CategoryOptimization {
		return []Kind{KindOptimization}
	}
	return []Kind{KindEvaluation, KindComparison}
}

// Run is one execution of an evaluation or comparison job.
type Run struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Kind        Kind   `json:"kind"`
	DatasetID   string `json:"datasetId"`

	// VersionID is set for evaluations, VersionAID/VersionBID for comparisons.
	VersionID  string `json:"versionId,omitempty"`
	VersionAID string `json:"versionAId,omitempty"`
	VersionBID string `json:"versionBId,omitempty"`

	MetricType    string       `json:"metricType"`
	JudgeRubricID string       `json:"judgeRubricId,omitempty"`
	JudgeModel    *ModelConfig `json:"judgeModel,omitempty"`
	MaxSamples    int          `json:"maxSamples,omitempty"`
	Budget        Budget       `json:"budget"`

	Status       Status `json:"status"`
	Progress     int    `json:"progress"`
	Stage        string `json:"stage"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Score *float64 `json:"score,omitempty"`

	WinsA  int      `json:"winsA"`
	WinsB  int      `json:"winsB"`
	Ties   int      `json:"ties"`
	ScoreA *float64 `json:"scoreA,omitempty"`
	ScoreB *float64 `json:"scoreB,omitempty"`

	Cost Cost `json:"cost"`
}

// NewRun returns a queued run of the given kind.
func NewRun(id string, kind Kind, now time.Time) *Run {
	return &Run{
		ID:        id,
		Kind:      kind,
		Status:    StatusQueued,
		Stage:     "queued",
		CreatedAt: now.UTC(),
	}
}

// Validate checks that the identity fields required by the run kind are set.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.WorkspaceID) == "" {
		return errors.New("workspace id is required")
	}
	if strings.TrimSpace(r.MetricType) == "" && r.Kind != KindOptimization {
		return errors.New("metric type is required")
	}
	switch r.Kind {
	case KindEvaluation:
		if r.VersionID == "" || r.DatasetID == "" {
			return errors.New("evaluation runs require versionId and datasetId")
		}
	case KindComparison:
		if r.VersionAID == "" || r.VersionBID == "" || r.DatasetID == "" {
			return errors.New("comparison runs require versionAId, versionBId and datasetId")
		}
	case KindOptimization:
	default:
		return fmt.Errorf("unknown run kind %q", r.Kind)
	}
	return nil
}

func (r *Run) transition(to Status, allowed ...Status) error {
	for _, s := range allowed {
		if r.Status == s {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
}

// Start moves a queued run to running and stamps StartedAt.
func (r *Run) Start(now time.Time) error {
	if err := r.transition(StatusRunning, StatusQueued); err != nil {
		return err
	}
	started := clampAfter(now, r.CreatedAt)
	r.StartedAt = &started
	r.Progress = 0
	r.Stage = "starting"
	return nil
}

// Advance records progress while running. Progress never decreases and is
// capped at 100.
func (r *Run) Advance(progress int, stage string) error {
	if r.Status != StatusRunning {
		return fmt.Errorf("%w: cannot advance a %s run", ErrInvalidTransition, r.Status)
	}
	progress = min(progress, 100)
	if progress > r.Progress {
		r.Progress = progress
	}
	if stage != "" {
		r.Stage = stage
	}
	return nil
}

// Succeed completes a running run.
func (r *Run) Succeed(now time.Time) error {
	if err := r.transition(StatusSucceeded, StatusRunning); err != nil {
		return err
	}
	r.Progress = 100
	r.Stage = "completed"
	r.finish(now)
	return nil
}

// Fail marks the run failed with msg.
func (r *Run) Fail(now time.Time, msg string) error {
	if err := r.transition(StatusFailed, StatusQueued, StatusRunning); err != nil {
		return err
	}
	r.ErrorMessage = msg
	r.Stage = "failed"
	r.finish(now)
	return nil
}

// Cancel marks the run canceled.
func (r *Run) Cancel(now time.Time) error {
	if err := r.transition(StatusCanceled, StatusQueued, StatusRunning); err != nil {
		return err
	}
	r.Stage = "canceled"
	r.finish(now)
	return nil
}

func (r *Run) finish(now time.Time) {
	floor := r.CreatedAt
	if r.StartedAt != nil {
		floor = *r.StartedAt
	}
	finished := clampAfter(now, floor)
	r.FinishedAt = &finished
}

// Duration returns the wall time between start and finish, or zero if the
// run has not both started and finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	out := *r
	out.StartedAt = clonePtr(r.StartedAt)
	out.FinishedAt = clonePtr(r.FinishedAt)
	out.Score = clonePtr(r.Score)
	out.ScoreA = clonePtr(r.ScoreA)
	out.ScoreB = clonePtr(r.ScoreB)
	out.JudgeModel = clonePtr(r.JudgeModel)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// clampAfter keeps timestamps ordered when clocks disagree.
func clampAfter(t, floor time.Time) time.Time {
	t = t.UTC()
	if t.Before(floor) {
		return floor.UTC()
	}
	return t
}
