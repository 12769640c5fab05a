/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/promptlab/engine/llm"
)

func testRetryConfig() llm.RetryConfig {
	return llm.RetryConfig{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func alwaysRetryable(err error) llm.Transient { return llm.Transient{Retry: err != nil} }

func TestRetry_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := llm.Retry(context.Background(), testRetryConfig(), "test_op", alwaysRetryable, func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", errors.New("429 RESOURCE_EXHAUSTED")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("result = %q, want recovered", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	t.Parallel()
	cause := errors.New("quota exceeded")
	var attempts atomic.Int32
	_, err := llm.Retry(context.Background(), testRetryConfig(), "test_op", alwaysRetryable, func() (int, error) {
		attempts.Add(1)
		return 0, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want wrapped cause", err)
	}
	if !strings.HasPrefix(err.Error(), "test_op failed after 4 attempts") {
		t.Errorf("error = %q", err)
	}
	if n := attempts.Load(); n != 4 {
		t.Errorf("attempts = %d, want 4", n)
	}
	if n := llm.Attempts(fmt.Errorf("completion: %w", err)); n != 4 {
		t.Errorf("Attempts() = %d, want 4", n)
	}
}

func TestRetry_NonRetryable(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	_, err := llm.Retry(context.Background(), testRetryConfig(), "test_op", func(error) llm.Transient { return llm.Transient{} }, func() (int, error) {
		attempts.Add(1)
		return 0, errors.New("permission denied")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if got := err.Error(); got != "test_op: permission denied" {
		t.Errorf("error = %q", got)
	}
	if n := llm.Attempts(err); n != 1 {
		t.Errorf("Attempts() = %d, want 1", n)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	t.Parallel()
	cfg := testRetryConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := llm.Retry(ctx, cfg, "test_op", alwaysRetryable, func() (int, error) {
		return 0, errors.New("503")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRetry_WaitsForProviderHint(t *testing.T) {
	t.Parallel()
	cfg := testRetryConfig()
	cfg.MaxBackoff = time.Second
	hinted := func(error) llm.Transient { return llm.Transient{Retry: true, After: 50 * time.Millisecond} }

	var attempts atomic.Int32
	start := time.Now()
	_, err := llm.Retry(context.Background(), cfg, "test_op", hinted, func() (int, error) {
		if attempts.Add(1) < 2 {
			return 0, errors.New("429")
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("retried after %v, want at least the 50ms hint", elapsed)
	}
}

func TestAttemptsOfForeignError(t *testing.T) {
	t.Parallel()
	if n := llm.Attempts(errors.New("boom")); n != 0 {
		t.Errorf("Attempts() = %d, want 0", n)
	}
}

func TestRetryConfigValidate(t *testing.T) {
	t.Parallel()
	if err := llm.DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (llm.RetryConfig{MaxRetries: -1}).Validate(); err == nil {
		t.Error("negative retries accepted")
	}
}
