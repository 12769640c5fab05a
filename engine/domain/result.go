/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package domain

import (
	"encoding/json"
	"time"
)

// Winner names the preferred side of a pairwise comparison.
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

// ParseWinner normalizes a judge-reported winner. Anything unrecognized is a tie.
func ParseWinner(s string) Winner {
	switch s {
	case "A", "a":
		return WinnerA
	case "B", "b":
		return WinnerB
	default:
		return WinnerTie
	}
}

// Result is the outcome of one example within one run. It is written once.
type Result struct {
	ID        string `json:"id"`
	RunID     string `json:"runId"`
	ExampleID string `json:"exampleId"`

	OutputText  string `json:"outputText,omitempty"`
	OutputTextA string `json:"outputTextA,omitempty"`
	OutputTextB string `json:"outputTextB,omitempty"`

	Passed        bool            `json:"passed"`
	Score         float64         `json:"score"`
	FailureReason string          `json:"failureReason,omitempty"`
	JudgeDetails  json.RawMessage `json:"judgeDetails,omitempty"`

	Winner       Winner `json:"winner,omitempty"`
	WinnerReason string `json:"winnerReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// AuditEvent records a state change made outside the normal run flow.
type AuditEvent struct {
	ID           string         `json:"id"`
	WorkspaceID  string         `json:"workspaceId"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
