/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"chainguard.dev/promptlab/engine/telemetry"
)

// settings are shared by all providers.
type settings struct {
	retry   RetryConfig
	metrics *telemetry.GenAI
}

func newSettings(opts []Option) (settings, error) {
	s := settings{
		retry:   DefaultRetryConfig(),
		metrics: telemetry.NewGenAI(telemetry.MeterName),
	}
	s.metrics.SetAttributeEnricher(telemetry.RunEnricher)
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

// Option configures a provider.
type Option func(*settings) error

// WithRetryConfig overrides the retry behaviour for transient errors.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *settings) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.retry = cfg
		return nil
	}
}

// WithAttributeEnricher replaces the default run enricher on token metrics.
func WithAttributeEnricher(e telemetry.AttributeEnricher) Option {
	return func(s *settings) error {
		s.metrics.SetAttributeEnricher(e)
		return nil
	}
}
