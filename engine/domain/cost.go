/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

// Cost is the resource usage accumulated by a run.
type Cost struct {
	Calls  int64   `json:"calls"`
	Tokens int64   `json:"tokens"`
	USD    float64 `json:"usdEstimate"`
}

// Add returns the sum of c and o.
func (c Cost) Add(o Cost) Cost {
	return Cost{
		Calls:  c.Calls + o.Calls,
		Tokens: c.Tokens + o.Tokens,
		USD:    c.USD + o.USD,
	}
}

// IsZero reports whether nothing has been spent.
func (c Cost) IsZero() bool {
	return c.Calls == 0 && c.Tokens == 0 && c.USD == 0
}

// Budget is the resource ceiling of one run. Zero fields are unlimited.
type Budget struct {
	MaxCalls  int64   `json:"maxCalls,omitempty" validate:"gte=0"`
	MaxTokens int64   `json:"maxTokens,omitempty" validate:"gte=0"`
	MaxUSD    float64 `json:"maxUSD,omitempty" validate:"gte=0"`
}
