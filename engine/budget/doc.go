/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package budget enforces workspace quotas and run spend ceilings.
//
// Every workspace has a Policy, created lazily with DefaultPolicy values the
// first time it is consulted. The Enforcer answers three questions:
//
//   - may a new run start (CanStartEvaluationRun, CanStartOptimizationRun)
//   - is a running run still within budget (CheckRunBudget)
//   - how fast may a workspace call models (Limiter)
//
// and performs two writes: RecordRunCost adds a finished run's spend to the
// workspace's daily total, and HardStopRun fails a run that ran out of budget.
//
// Ceilings are inclusive: reaching a limit exhausts it. A run that has made
// exactly MaxCallsPerRun calls may not make another, and a workspace whose
// daily spend equals its daily budget may not start new runs. Callers that
// know how many calls their next step makes reserve them with
// WithUpcomingCalls, so the call ceiling is never crossed.
//
// The daily window rolls: once 24 hours have passed since the last reset the
// spend counter returns to zero.
package budget
