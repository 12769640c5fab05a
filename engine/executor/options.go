/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"errors"
	"fmt"
	"time"

	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/pricing"
	"chainguard.dev/promptlab/engine/render"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithRegistry sets the metrics runs can select. The default is
// metric.Builtins with the executor's judge.
func WithRegistry(r *metric.Registry) Option {
	return func(e *Executor) error {
		if r == nil {
			return errors.New("registry cannot be nil")
		}
		e.registry = r
		return nil
	}
}

// WithProgressBounds sets the progress reported before the first and after
// the last example.
func WithProgressBounds(low, high int) Option {
	return func(e *Executor) error {
		if low < 0 || high > 100 || low > high {
			return fmt.Errorf("invalid progress bounds %d..%d", low, high)
		}
		e.low, e.high = low, high
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		e.now = now
		return nil
	}
}

// WithPricing sets the table used to estimate USD cost.
func WithPricing(t *pricing.Table) Option {
	return func(e *Executor) error {
		if t == nil {
			return errors.New("pricing table cannot be nil")
		}
		e.prices = t
		return nil
	}
}

// WithRenderer replaces the prompt renderer.
func WithRenderer(r render.Interface) Option {
	return func(e *Executor) error {
		if r == nil {
			return errors.New("renderer cannot be nil")
		}
		e.renderer = r
		return nil
	}
}

// WithIDGenerator replaces the generator of result ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Executor) error {
		if newID == nil {
			return errors.New("id generator cannot be nil")
		}
		e.newID = newID
		return nil
	}
}
