/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package budget

import (
	"time"

	"chainguard.dev/promptlab/engine/domain"
)

// DailyWindow is the length of the rolling daily spend window.
const DailyWindow = 24 * time.Hour

// Policy defaults for new workspaces.
const (
	DefaultMaxActiveOptimizationRuns = 1
	DefaultMaxActiveEvaluationRuns   = 2
	DefaultMaxCallsPerRun            = 100
	DefaultMaxTokensPerRun           = 100_000
	DefaultMaxUSDPerRun              = 10.0
	DefaultDailyBudgetUSD            = 50.0
	DefaultMaxRequestsPerMinute      = 60
)

// DefaultPolicy returns the policy a workspace gets on first use.
func DefaultPolicy() domain.Policy {
	return domain.Policy{
		MaxActiveOptimizationRuns: DefaultMaxActiveOptimizationRuns,
		MaxActiveEvaluationRuns:   DefaultMaxActiveEvaluationRuns,
		MaxCallsPerRun:            DefaultMaxCallsPerRun,
		MaxTokensPerRun:           DefaultMaxTokensPerRun,
		MaxUSDPerRun:              DefaultMaxUSDPerRun,
		DailyBudgetUSD:            DefaultDailyBudgetUSD,
		MaxRequestsPerMinute:      DefaultMaxRequestsPerMinute,
	}
}

// windowExpired reports whether the daily window of p has elapsed at now.
func windowExpired(p *domain.Policy, now time.Time) bool {
	return !now.Before(p.DailyBudgetReset.Add(DailyWindow))
}
