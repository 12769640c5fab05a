/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package telemetry holds the run engine's metrics: OpenTelemetry counters
// for model token usage (GenAI) and Prometheus series for the run lifecycle,
// per-example outcomes, budget stops and run cost.
package telemetry
