/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the OpenTelemetry meter shared by all providers; the model is
// a dimension on every measurement.
const MeterName = "chainguard.promptlab"

// AttributeEnricher adds contextual attributes (workspace, run) to the base
// attributes of a measurement.
type AttributeEnricher func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue

// GenAI records token usage and call counts for model completions. Counter
// creation failures degrade to no-op counters rather than failing the caller.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	calls            metric.Int64Counter
	enricher         AttributeEnricher
}

// NewGenAI creates the counters on the named meter.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	calls, err := meter.Int64Counter("genai.calls",
		metric.WithDescription("The number of model completions requested"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create call counter, metrics will be disabled", "error", err, "meter", meterName)
		calls = noop.Int64Counter{}
	}

	return &GenAI{
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		calls:            calls,
	}
}

// SetAttributeEnricher installs an enricher used for every later measurement.
func (g *GenAI) SetAttributeEnricher(e AttributeEnricher) {
	g.enricher = e
}

func (g *GenAI) attrs(ctx context.Context, base []attribute.KeyValue, extra []attribute.KeyValue) metric.MeasurementOption {
	if g.enricher != nil {
		base = g.enricher(ctx, base)
	}
	return metric.WithAttributes(append(base, extra...)...)
}

// RecordCompletion records one completion call and its token usage.
func (g *GenAI) RecordCompletion(ctx context.Context, provider, model string, promptTokens, completionTokens int64, extra ...attribute.KeyValue) {
	opt := g.attrs(ctx, []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
	}, extra)
	g.calls.Add(ctx, 1, opt)
	g.promptTokens.Add(ctx, promptTokens, opt)
	g.completionTokens.Add(ctx, completionTokens, opt)
}

// RunEnricher adds run identity from the context to measurements.
func RunEnricher(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
	info, ok := RunInfoFrom(ctx)
	if !ok {
		return base
	}
	return append(base,
		attribute.String("workspace_id", info.WorkspaceID),
		attribute.String("run_kind", info.Kind),
	)
}

type runInfoKey struct{}

// RunInfo identifies the run a measurement belongs to.
type RunInfo struct {
	RunID       string
	WorkspaceID string
	Kind        string
}

// WithRunInfo attaches run identity to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run identity attached to ctx.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
