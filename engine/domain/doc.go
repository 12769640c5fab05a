/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package domain holds the records shared by every part of the run engine:
// dataset examples, rubrics, prompt versions, runs, per-example results and
// the cost and budget figures attached to them.
//
// # Run lifecycle
//
// A Run moves through a one-directional state machine:
//
//	queued -> running -> succeeded | failed | canceled
//
// A queued run may also go straight to failed or canceled (configuration
// errors and early cancellation). The transition methods on Run are the only
// supported way to change Status; they stamp timestamps, freeze progress at
// terminal states and return ErrInvalidTransition for anything else.
package domain
