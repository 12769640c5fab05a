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

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/telemetry"
)

func (j *job) evaluate(ctx context.Context) error {
	m, examples, rubric, err := j.setup(ctx, false)
	if err != nil {
		return err
	}
	version, err := j.loadVersion(ctx, j.run.VersionID)
	if err != nil {
		return err
	}
	if err := j.advance(ctx, j.low, "evaluating"); err != nil {
		return err
	}

	n := len(examples)
	calls := j.callsPerExample(m, 1)
	var sum float64
	for i, ex := range examples {
		ok, err := j.proceed(ctx, calls)
		if err != nil || !ok {
			return err
		}
		res, err := j.evaluateExample(ctx, i, ex, version, m, rubric)
		if err != nil {
			return err
		}
		sum += res.Score
		if err := j.save(ctx, res.Result, res.details, j.progress(i+1, n), fmt.Sprintf("evaluating (%d/%d)", i+1, n)); err != nil {
			return err
		}
	}

	var score float64
	if n > 0 {
		score = sum / float64(n)
	}
	j.run.Score = &score
	if err := j.succeed(ctx); err != nil {
		return err
	}
	telemetry.RunScored(string(j.run.Kind), j.run.MetricType, score)
	return nil
}

// scored is a Result with the metric details still unserialized.
type scored struct {
	*domain.Result
	details any
}

func (j *job) evaluateExample(ctx context.Context, i int, ex domain.Example, version *domain.PromptVersion, m metric.Metric, rubric *domain.RubricConfig) (scored, error) {
	ctx, span := j.startExample(ctx, i, ex)
	defer span.End()

	res := j.newResult(ex)
	out := j.generate(ctx, version, ex)
	j.charge(version.Model.Model, out)
	if out.err != nil {
		j.log.With("example_id", ex.ID).With("error", out.err).Warn("Example failed")
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		res.FailureReason = out.err.Error()
		return scored{Result: res}, nil
	}
	res.OutputText = out.text

	outcome := j.score(ctx, m, out.text, metric.Context{
		Example: ex,
		Rubric:  rubric,
		Model:   j.run.JudgeModel,
	})
	res.Passed = outcome.Passed
	res.Score = outcome.Score
	if !outcome.Passed {
		res.FailureReason = outcome.Reason
	}
	span.SetAttributes(
		attribute.Bool("example.passed", res.Passed),
		attribute.Float64("example.score", res.Score),
	)
	span.SetStatus(codes.Ok, "")
	return scored{Result: res, details: outcome.Details}, nil
}
