/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"

	"golang.org/x/time/rate"
)

type limiterKey struct{}

// WithRateLimit returns a context whose provider calls share lim.
func WithRateLimit(ctx context.Context, lim *rate.Limiter) context.Context {
	return context.WithValue(ctx, limiterKey{}, lim)
}

// Throttle waits until the limiter on ctx admits one more request. It
// returns immediately when ctx carries no limiter.
func Throttle(ctx context.Context) error {
	lim, _ := ctx.Value(limiterKey{}).(*rate.Limiter)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}
