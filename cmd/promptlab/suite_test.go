/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store/memory"
)

const geographySuite = `
workspace: team-geo
versions:
  - id: terse
    model:
      model: claude-haiku-4-5
      maxTokens: 64
    system: Answer with one word.
    user: "{{question}} ({{hint}})"
  - id: verbose
    model:
      model: claude-haiku-4-5
    user: "Please answer: {{question}}"
rubrics:
  - id: accuracy
    name: Accuracy
    outputFormat: text
    criteria:
      - name: correct
        description: Names the right city.
        weight: 1
datasets:
  - id: capitals
    examples:
      - id: fr
        input:
          question: capital of France?
          hint: starts with P
          attempts: 2
        expected: Paris
      - input:
          question: capital of Japan?
          hint: starts with T
        expected: Tokyo
        metadata:
          requiredKeys: [city]
`

func TestParseSuite(t *testing.T) {
	t.Parallel()
	s, err := parseSuite([]byte(geographySuite))
	require.NoError(t, err)
	require.Equal(t, "team-geo", s.Workspace)
	require.Len(t, s.Versions, 2)
	require.Equal(t, domain.ModelConfig{Model: "claude-haiku-4-5", MaxTokens: 64}, s.Versions[0].Model)
	require.Equal(t, domain.OutputFormatText, s.Rubrics[0].OutputFormat)

	st := memory.New()
	require.NoError(t, s.seed(st))
	ctx := context.Background()

	v, err := st.GetVersion(ctx, "terse")
	require.NoError(t, err)
	require.Equal(t, "Answer with one word.", v.Content.System)

	r, err := st.GetRubric(ctx, "accuracy")
	require.NoError(t, err)
	require.Equal(t, []domain.Criterion{{Name: "correct", Description: "Names the right city.", Weight: 1}}, r.Criteria)

	examples, err := st.ListExamples(ctx, "capitals", 0)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	want := domain.Variables{
		{Name: "question", Value: "capital of France?"},
		{Name: "hint", Value: "starts with P"},
		{Name: "attempts", Value: 2},
	}
	if diff := cmp.Diff(want, examples[0].InputVariables); diff != "" {
		t.Errorf("input variables (-want +got):\n%s", diff)
	}
	require.Equal(t, "capitals-2", examples[1].ID)
	keys, ok := examples[1].RequiredKeys()
	require.True(t, ok)
	require.Equal(t, []string{"city"}, keys)
}

func TestParseSuiteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "versions: [\n"},
		{name: "no versions", data: "workspace: x\n"},
		{name: "version without template", data: "versions:\n  - id: v1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseSuite([]byte(tt.data)); err == nil {
				t.Error("parseSuite() = nil error, want error")
			}
		})
	}
}

func TestSeedRejectsNonMappingInput(t *testing.T) {
	t.Parallel()
	s, err := parseSuite([]byte(`
versions:
  - id: v1
    user: "{{q}}"
datasets:
  - id: ds
    examples:
      - input: [a, b]
`))
	require.NoError(t, err)
	require.ErrorContains(t, s.seed(memory.New()), "input must be a mapping")
}
