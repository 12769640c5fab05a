/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package render_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/promptbuilder"
	"chainguard.dev/promptlab/engine/render"
)

func TestTemplatesRender(t *testing.T) {
	t.Parallel()

	content := domain.ContentSnapshot{
		System:  "You answer questions about {{topic}}.",
		User:    "Q: {{question}} ({{attempts}} attempts, strict={{strict}})",
		Context: "Facts: {{facts}}",
	}
	vars := domain.Variables{
		{Name: "topic", Value: "geography"},
		{Name: "question", Value: "capital of France?"},
		{Name: "attempts", Value: json.Number("3")},
		{Name: "strict", Value: true},
		{Name: "facts", Value: []any{"Paris", "Lyon"}},
	}

	got, err := render.Templates{}.Render(content, vars)
	if err != nil {
		t.Fatalf("Render() = %v", err)
	}
	want := llm.Messages{
		System:  "You answer questions about geography.",
		User:    "Q: capital of France? (3 attempts, strict=true)",
		Context: `Facts: ["Paris","Lyon"]`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Render() (-want +got):\n%s", diff)
	}
}

func TestTemplatesRenderErrors(t *testing.T) {
	t.Parallel()

	var tmpl render.Templates
	_, err := tmpl.Render(domain.ContentSnapshot{User: "{{missing}}"}, nil)
	var missing *promptbuilder.MissingVariableError
	if !errors.As(err, &missing) || missing.Name != "missing" {
		t.Errorf("Render() error = %v, want MissingVariableError", err)
	}

	if _, err := tmpl.Render(domain.ContentSnapshot{System: "sys"}, nil); !errors.Is(err, render.ErrEmptyPrompt) {
		t.Errorf("Render() error = %v, want ErrEmptyPrompt", err)
	}
}
