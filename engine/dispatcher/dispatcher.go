/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"chainguard.dev/promptlab/engine/domain"
)

// Callback processes the run with the given id.
type Callback func(ctx context.Context, runID string) error

// Claimer hands out queued runs. store.Runs implements it.
type Claimer interface {
	ClaimQueued(ctx context.Context, limit int) ([]*domain.Run, error)
}

// HandleAsync claims up to batchSize queued runs (concurrency when batchSize
// is not positive) and processes them, at most concurrency at a time. The
// returned future waits for all of them and reports only a failed claim.
func HandleAsync(ctx context.Context, runs Claimer, concurrency, batchSize int, cb Callback) func() error {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := concurrency
	if batchSize > 0 {
		limit = batchSize
	}

	claimed, err := runs.ClaimQueued(ctx, limit)
	if err != nil {
		return func() error {
			return fmt.Errorf("claim() = %w", err)
		}
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, run := range claimed {
		g.Go(func() error {
			log := clog.FromContext(ctx).With("run_id", run.ID)
			if err := cb(ctx, run.ID); err != nil {
				log.With("error", err).Error("Run handler failed")
				return nil
			}
			log.Info("Run handled")
			return nil
		})
	}
	return g.Wait
}

// ErrClosed is returned when submitting to a closed Pool.
var ErrClosed = errors.New("dispatcher closed")

// Pool runs submitted runs in the background, at most a fixed number at a time.
type Pool struct {
	ctx context.Context
	cb  Callback
	sem *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool returns a Pool that calls cb with a context derived from ctx.
func NewPool(ctx context.Context, concurrency int, cb Callback) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{ctx: ctx, cb: cb, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Submit schedules runID and returns without waiting for it.
func (p *Pool) Submit(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log := clog.FromContext(p.ctx).With("run_id", runID)
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			log.With("error", err).Warn("Run not started")
			return
		}
		defer p.sem.Release(1)
		if err := p.cb(p.ctx, runID); err != nil {
			log.With("error", err).Error("Run handler failed")
		}
	}()
	return nil
}

// Close stops accepting runs and waits for the submitted ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
