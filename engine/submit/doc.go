/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package submit accepts requests for evaluation and comparison runs.
//
// A request is validated, its referenced version, dataset and rubric are
// checked to exist, and the workspace policy is asked whether another run
// may start. The run is then created in the queued state and handed to a
// Dispatcher; Submit returns as soon as the run record exists. Without a
// Dispatcher, queued runs wait for a worker to claim them.
package submit
