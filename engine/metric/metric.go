/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"chainguard.dev/promptlab/engine/domain"
)

// Context is the input of a metric besides the output under test.
type Context struct {
	Example domain.Example
	// Rubric and Model are attached for metrics that use a judge.
	Rubric *domain.RubricConfig
	Model  *domain.ModelConfig
	// OutputA and OutputB are only set for pairwise metrics.
	OutputA *string
	OutputB *string
}

// Outcome is the verdict of one metric invocation.
type Outcome struct {
	Passed bool
	// Score is in [0, 1].
	Score float64
	// Reason explains a failed verdict.
	Reason string
	// Details is metric-specific structured output, stored as JSON.
	Details any
}

// Metric scores a single output.
type Metric interface {
	Evaluate(ctx context.Context, output string, mc Context) Outcome
}

// Func adapts a function to Metric.
type Func func(ctx context.Context, output string, mc Context) Outcome

// Evaluate implements Metric.
func (f Func) Evaluate(ctx context.Context, output string, mc Context) Outcome {
	return f(ctx, output, mc)
}

// Requirements describe what a metric needs from a run.
type Requirements struct {
	// Labels means every example needs a non-empty expected output.
	Labels bool
	// Rubric means the run must reference a rubric.
	Rubric bool
	// Judge means the metric calls the judge client.
	Judge bool
	// Pairwise means the metric compares two outputs and only suits comparison runs.
	Pairwise bool
}

// Describer is implemented by metrics with requirements.
type Describer interface {
	Requirements() Requirements
}

// RequirementsOf returns m's requirements; metrics that do not describe
// themselves have none.
func RequirementsOf(m Metric) Requirements {
	if d, ok := m.(Describer); ok {
		return d.Requirements()
	}
	return Requirements{}
}

// ErrDuplicate is returned when registering an id twice.
var ErrDuplicate = errors.New("metric already registered")

// Registry maps metric ids to metrics. It is populated at startup and read
// concurrently by executors afterwards.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds m under id.
func (r *Registry) Register(id string, m Metric) error {
	if id == "" {
		return errors.New("metric id is required")
	}
	if m == nil {
		return fmt.Errorf("metric %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.metrics[id] = m
	return nil
}

// Get returns the metric registered under id.
func (r *Registry) Get(id string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[id]
	return m, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.metrics))
	for id := range r.metrics {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func fail(reason string) Outcome {
	return Outcome{Passed: false, Score: 0, Reason: reason}
}

func verdict(ok bool, reason string) Outcome {
	if ok {
		return Outcome{Passed: true, Score: 1}
	}
	return fail(reason)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
