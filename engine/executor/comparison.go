/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/metric"
)

// noSignal is the per-side score assumed when the judge gives none.
const noSignal = 0.5

func (j *job) compare(ctx context.Context) error {
	m, examples, rubric, err := j.setup(ctx, true)
	if err != nil {
		return err
	}
	versionA, err := j.loadVersion(ctx, j.run.VersionAID)
	if err != nil {
		return err
	}
	versionB, err := j.loadVersion(ctx, j.run.VersionBID)
	if err != nil {
		return err
	}
	if err := j.advance(ctx, j.low, "comparing"); err != nil {
		return err
	}

	n := len(examples)
	calls := j.callsPerExample(m, 2)
	var sumA, sumB float64
	for i, ex := range examples {
		ok, err := j.proceed(ctx, calls)
		if err != nil || !ok {
			return err
		}
		res := j.compareExample(ctx, i, ex, versionA, versionB, m, rubric)
		switch res.Winner {
		case domain.WinnerA:
			j.run.WinsA++
		case domain.WinnerB:
			j.run.WinsB++
		default:
			j.run.Ties++
		}
		sumA += res.scoreA
		sumB += res.scoreB
		if err := j.save(ctx, res.Result, res.details, j.progress(i+1, n), fmt.Sprintf("comparing (%d/%d)", i+1, n)); err != nil {
			return err
		}
	}

	var scoreA, scoreB float64
	if n > 0 {
		scoreA, scoreB = sumA/float64(n), sumB/float64(n)
	}
	j.run.ScoreA, j.run.ScoreB = &scoreA, &scoreB
	return j.succeed(ctx)
}

// compared is the outcome of one comparison example.
type compared struct {
	*domain.Result
	details        any
	scoreA, scoreB float64
}

func (j *job) compareExample(ctx context.Context, i int, ex domain.Example, versionA, versionB *domain.PromptVersion, m metric.Metric, rubric *domain.RubricConfig) compared {
	ctx, span := j.startExample(ctx, i, ex)
	defer span.End()

	var a, b output
	var g errgroup.Group
	g.Go(func() error {
		a = j.generate(ctx, versionA, ex)
		return a.err
	})
	g.Go(func() error {
		b = j.generate(ctx, versionB, ex)
		return b.err
	})
	// Each side keeps its own error.
	_ = g.Wait()
	j.charge(versionA.Model.Model, a)
	j.charge(versionB.Model.Model, b)

	res := j.newResult(ex)
	res.OutputTextA, res.OutputTextB = a.text, b.text
	tie := compared{
		Result:  res,
		details: metric.PairwiseDetails{Winner: domain.WinnerTie, Indeterminate: true},
		scoreA:  noSignal,
		scoreB:  noSignal,
	}
	res.Winner = domain.WinnerTie
	res.Score = metric.WinnerScore(domain.WinnerTie)

	if err := sideError(a.err, b.err); err != nil {
		j.log.With("example_id", ex.ID).With("error", err).Warn("Example failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.FailureReason = err.Error()
		return tie
	}

	outcome := j.score(ctx, m, b.text, metric.Context{
		Example: ex,
		Rubric:  rubric,
		Model:   j.run.JudgeModel,
		OutputA: &a.text,
		OutputB: &b.text,
	})
	details, ok := pairwiseDetails(outcome.Details)
	if !outcome.Passed || !ok {
		j.log.With("example_id", ex.ID).With("reason", outcome.Reason).Warn("No verdict for example")
		res.FailureReason = outcome.Reason
		if ok {
			tie.details = details
		}
		return tie
	}

	res.Passed = true
	res.Winner = details.Winner
	res.WinnerReason = details.Reasoning
	res.Score = outcome.Score
	c := compared{Result: res, details: details, scoreA: noSignal, scoreB: noSignal}
	if details.ScoreA != nil {
		c.scoreA = *details.ScoreA
	}
	if details.ScoreB != nil {
		c.scoreB = *details.ScoreB
	}
	span.SetAttributes(attribute.String("example.winner", string(res.Winner)))
	span.SetStatus(codes.Ok, "")
	return c
}

func sideError(a, b error) error {
	switch {
	case a != nil && b != nil:
		return fmt.Errorf("side A: %w; side B: %w", a, b)
	case a != nil:
		return fmt.Errorf("side A: %w", a)
	case b != nil:
		return fmt.Errorf("side B: %w", b)
	default:
		return nil
	}
}

func pairwiseDetails(v any) (metric.PairwiseDetails, bool) {
	switch d := v.(type) {
	case metric.PairwiseDetails:
		return d, true
	case *metric.PairwiseDetails:
		if d != nil {
			return *d, true
		}
	}
	return metric.PairwiseDetails{}, false
}
