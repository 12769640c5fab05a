/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

import "time"

// Policy is the quota and spend configuration of a workspace.
type Policy struct {
	WorkspaceID string `json:"workspaceId"`

	MaxActiveOptimizationRuns int `json:"maxActiveOptimizationRuns"`
	MaxActiveEvaluationRuns   int `json:"maxActiveEvaluationRuns"`

	MaxCallsPerRun  int64   `json:"maxCallsPerRun"`
	MaxTokensPerRun int64   `json:"maxTokensPerRun"`
	MaxUSDPerRun    float64 `json:"maxUSDPerRun"`

	DailyBudgetUSD   float64   `json:"dailyBudgetUSD"`
	DailyBudgetUsed  float64   `json:"dailyBudgetUsed"`
	DailyBudgetReset time.Time `json:"dailyBudgetReset"`

	MaxRequestsPerMinute int `json:"maxRequestsPerMinute"`
}

// MaxActive returns the ceiling on queued plus running runs in c.
func (p *Policy) MaxActive(c Category) int {
	if c == CategoryOptimization {
		return p.MaxActiveOptimizationRuns
	}
	return p.MaxActiveEvaluationRuns
}

// DailyRemaining is the USD left in the current daily window.
func (p *Policy) DailyRemaining() float64 {
	return p.DailyBudgetUSD - p.DailyBudgetUsed
}
