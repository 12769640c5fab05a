/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher hands queued runs to a callback with bounded
// concurrency.
//
// Two modes are supported. HandleAsync claims a batch of queued runs from a
// store, for workers that poll a shared database:
//
//	for {
//		future := dispatcher.HandleAsync(ctx, runs, workers, batch, exec.Run)
//		if err := future(); err != nil {
//			clog.WarnContextf(ctx, "dispatch: %v", err)
//		}
//		time.Sleep(interval)
//	}
//
// A Pool executes runs submitted by the same process, returning to the
// submitter immediately.
//
// Runs are claimed once. A failing callback is logged; the callback is
// expected to have recorded the failure on the run itself.
package dispatcher
