/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/judge"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/llm/llmtest"
)

func TestFromCompleterModelSelection(t *testing.T) {
	t.Parallel()

	defaults := domain.ModelConfig{Model: "judge-default", MaxTokens: 512}
	tests := []struct {
		name string
		cfg  *domain.ModelConfig
		want domain.ModelConfig
	}{{
		name: "no override",
		want: defaults,
	}, {
		name: "full override",
		cfg:  &domain.ModelConfig{Model: "judge-other", Temperature: 0.2},
		want: domain.ModelConfig{Model: "judge-other", Temperature: 0.2},
	}, {
		name: "override without model",
		cfg:  &domain.ModelConfig{MaxTokens: 64},
		want: domain.ModelConfig{Model: "judge-default", MaxTokens: 64},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got domain.ModelConfig
			c := llmtest.NewCompleter(func(_ llm.Messages, cfg domain.ModelConfig) (llm.Completion, error) {
				got = cfg
				return llm.Completion{Text: "{}"}, nil
			})
			if _, err := judge.FromCompleter(c, defaults).Call(context.Background(), "grade", tt.cfg); err != nil {
				t.Fatalf("Call() = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("model config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromCompleterError(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	c := llmtest.NewCompleter(func(llm.Messages, domain.ModelConfig) (llm.Completion, error) {
		return llm.Completion{}, cause
	})
	m := judge.NewMeter(nil)
	ctx := judge.WithMeter(context.Background(), m)
	_, err := judge.FromCompleter(c, domain.ModelConfig{Model: "m"}).Call(ctx, "p", nil)
	if !errors.Is(err, cause) {
		t.Fatalf("Call() error = %v, want wrapped %v", err, cause)
	}

	_, err = judge.FromCompleter(c, domain.ModelConfig{}).Call(ctx, "p", nil)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Call() without model = %v", err)
	}

	// Only the request that reached the provider is charged.
	if got, want := m.Take(), (domain.Cost{Calls: 1}); got != want {
		t.Errorf("Take() = %+v, want %+v", got, want)
	}
}

func TestFromCompleterThrottled(t *testing.T) {
	t.Parallel()
	c := llmtest.Fixed(`{"passed":true}`, 1)
	j := judge.FromCompleter(c, domain.ModelConfig{Model: "m"})
	ctx := llm.WithRateLimit(context.Background(), rate.NewLimiter(rate.Every(time.Hour), 1))
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if _, err := j.Call(ctx, "p", nil); err != nil {
		t.Fatalf("first Call() = %v", err)
	}
	_, err := j.Call(ctx, "p", nil)
	if err == nil || !strings.Contains(err.Error(), "wait for rate limit") {
		t.Errorf("second Call() = %v, want rate limit error", err)
	}
	if got := len(c.Calls()); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestMeter(t *testing.T) {
	t.Parallel()
	m := judge.NewMeter(func(model string, u llm.Usage) float64 {
		return float64(u.TotalTokens) / 1000
	})
	ctx := judge.WithMeter(context.Background(), m)

	j := judge.FromCompleter(llmtest.Fixed(`{"passed":true}`, 250), domain.ModelConfig{Model: "m"})
	for range 2 {
		if _, err := j.Call(ctx, "p", nil); err != nil {
			t.Fatal(err)
		}
	}

	want := domain.Cost{Calls: 2, Tokens: 500, USD: 0.5}
	if diff := cmp.Diff(want, m.Take()); diff != "" {
		t.Errorf("Take() (-want +got):\n%s", diff)
	}
	if got := m.Take(); !got.IsZero() {
		t.Errorf("second Take() = %+v, want zero", got)
	}

	// Calls without a meter are fine.
	if _, err := j.Call(context.Background(), "p", nil); err != nil {
		t.Fatal(err)
	}
	var nilMeter *judge.Meter
	nilMeter.Record("m", llm.Usage{TotalTokens: 1})
	if got := nilMeter.Take(); !got.IsZero() {
		t.Errorf("nil meter Take() = %+v", got)
	}
}
