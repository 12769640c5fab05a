/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
)

// RetryConfig configures retries of transient provider errors.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt; 0 disables retrying.
	MaxRetries int
	// BaseBackoff is the first backoff; it doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the backoff, including waits the provider asks for.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of random jitter added to each backoff.
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 || c.MaxBackoff < 0 || c.MaxJitter < 0 {
		return errors.New("backoff durations cannot be negative")
	}
	return nil
}

// DefaultRetryConfig returns settings suited to quota and rate-limit errors,
// which usually take a while to clear.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Transient is a classifier's verdict on a failed attempt.
type Transient struct {
	Retry bool
	// After is the wait the provider asked for, zero when it gave none.
	After time.Duration
}

// Classifier decides whether a provider error is worth another attempt.
type Classifier func(error) Transient

// CallError is the final error of a provider call made through Retry.
type CallError struct {
	Operation string
	// Attempts counts the requests sent to the provider.
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	if e.Attempts <= 1 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Attempts returns how many provider requests stand behind err, or 0 when
// err did not come from Retry.
func Attempts(err error) int {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Attempts
	}
	return 0
}

// Retry calls fn until it succeeds, classify rejects its error, the retries
// are exhausted or ctx is done. Every failure is returned as a *CallError.
func Retry[T any](ctx context.Context, cfg RetryConfig, operation string, classify Classifier, fn func() (T, error)) (T, error) {
	log := clog.FromContext(ctx).With("operation", operation)
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				log.With("attempts", attempt).Info("Provider call recovered")
			}
			return result, nil
		}
		t := classify(err)
		if !t.Retry || attempt > cfg.MaxRetries {
			return result, &CallError{Operation: operation, Attempts: attempt, Err: err}
		}

		wait := cfg.backoff(attempt, t.After)
		log.With("attempt", attempt).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("provider_hint", t.After).
			With("error", err.Error()).
			Warn("Transient provider error, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, &CallError{Operation: operation, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// backoff is the wait after the given failed attempt: exponential with
// jitter, raised to the provider's hint, capped at MaxBackoff.
func (c RetryConfig) backoff(attempt int, hint time.Duration) time.Duration {
	wait := c.BaseBackoff << (attempt - 1)
	if wait <= 0 || (c.MaxBackoff > 0 && wait > c.MaxBackoff) {
		wait = c.MaxBackoff
	}
	if c.MaxJitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter))); err == nil {
			wait += time.Duration(n.Int64())
		}
	}
	wait = max(wait, hint)
	if c.MaxBackoff > 0 {
		wait = min(wait, c.MaxBackoff)
	}
	return wait
}

// statusTransient classifies an HTTP status from a provider response.
func statusTransient(status int, resp *http.Response, codes ...int) Transient {
	for _, c := range codes {
		if status == c {
			return Transient{Retry: true, After: retryAfter(resp)}
		}
	}
	return Transient{}
}

// retryAfter parses the Retry-After header as seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
