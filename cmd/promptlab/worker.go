/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"chainguard.dev/promptlab/engine/budget"
	"chainguard.dev/promptlab/engine/dispatcher"
	"chainguard.dev/promptlab/engine/executor"
	"chainguard.dev/promptlab/engine/metric"
	"chainguard.dev/promptlab/engine/store/postgres"
)

type workerConfig struct {
	MetricsPort  int           `env:"METRICS_PORT,default=2112"`
	Workers      int           `env:"WORKERS,default=4"`
	BatchSize    int           `env:"BATCH_SIZE,default=0"`
	PollInterval time.Duration `env:"POLL_INTERVAL,default=5s"`
	ClaimLease   time.Duration `env:"CLAIM_LEASE,default=10m"`

	Database postgres.Config
	Engine   engineConfig
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute queued runs from PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	var cfg workerConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}
	st := postgres.New(db, postgres.WithClaimLease(cfg.ClaimLease))

	completer, err := cfg.Engine.completer(ctx)
	if err != nil {
		return err
	}
	prices, err := cfg.Engine.prices()
	if err != nil {
		return err
	}
	enforcer, err := budget.New(st, st, st, cfg.Engine.budgetOptions()...)
	if err != nil {
		return fmt.Errorf("creating budget enforcer: %w", err)
	}
	j := cfg.Engine.judge(completer)
	exec, err := executor.New(st, completer, j, enforcer,
		executor.WithRegistry(metric.Builtins(j)),
		executor.WithPricing(prices))
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			clog.ErrorContextf(ctx, "metrics server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	handle := func(ctx context.Context, runID string) error {
		_, err := exec.Execute(ctx, runID)
		return err
	}

	clog.InfoContextf(ctx, "Starting worker with %d slots, polling every %v", cfg.Workers, cfg.PollInterval)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		future := dispatcher.HandleAsync(ctx, st, cfg.Workers, cfg.BatchSize, handle)
		if err := future(); err != nil {
			clog.WarnContextf(ctx, "dispatching runs: %v", err)
		}
		select {
		case <-ctx.Done():
			clog.InfoContextf(ctx, "Worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}
