/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor drives evaluation and comparison runs from queued to a
// terminal state.
//
// An evaluation run renders the candidate version's prompt for every example
// of the dataset, calls the model, scores the output with the run's metric
// and stores one Result per example. A comparison run does the same for two
// versions at once, calling both sides concurrently, and lets a pairwise
// metric pick a winner per example.
//
// Examples are processed one at a time, in dataset order. Before each one
// the executor checks for a cancellation request and asks the budget
// enforcer whether the run may continue; a denial hard-stops the run.
// Problems with a single example are recorded on its Result and never fail
// the run. Problems loading the run's inputs fail the run.
//
// Progress moves linearly from the lower to the upper progress bound across
// the example loop and reaches 100 when the run succeeds.
package executor
