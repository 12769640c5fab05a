/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"sync"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
)

// PriceFunc converts the token usage of one call into USD.
type PriceFunc func(model string, u llm.Usage) float64

// Meter accumulates the cost of judge calls made under a context.
// A nil *Meter discards everything recorded on it.
type Meter struct {
	price PriceFunc

	mu   sync.Mutex
	cost domain.Cost
}

// NewMeter returns an empty meter. price may be nil, in which case only
// calls and tokens are counted.
func NewMeter(price PriceFunc) *Meter {
	return &Meter{price: price}
}

// Record adds one call with usage u.
func (m *Meter) Record(model string, u llm.Usage) {
	if m == nil {
		return
	}
	var usd float64
	if m.price != nil {
		usd = m.price(model, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cost = m.cost.Add(domain.Cost{Calls: 1, Tokens: u.TotalTokens, USD: usd})
}

// Take returns the accumulated cost and resets the meter.
func (m *Meter) Take() domain.Cost {
	if m == nil {
		return domain.Cost{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cost
	m.cost = domain.Cost{}
	return c
}

type meterKey struct{}

// WithMeter attaches m to ctx.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the meter attached to ctx, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}
