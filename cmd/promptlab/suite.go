/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/store/memory"
)

// suite is a local file of prompt versions, rubrics and datasets.
type suite struct {
	Workspace string               `yaml:"workspace"`
	Versions  []suiteVersion       `yaml:"versions"`
	Rubrics   []domain.RubricConfig `yaml:"rubrics"`
	Datasets  []suiteDataset       `yaml:"datasets"`
}

type suiteVersion struct {
	ID        string             `yaml:"id"`
	Model     domain.ModelConfig `yaml:"model"`
	System    string             `yaml:"system"`
	Developer string             `yaml:"developer"`
	User      string             `yaml:"user"`
	Context   string             `yaml:"context"`
}

type suiteDataset struct {
	ID       string         `yaml:"id"`
	Examples []suiteExample `yaml:"examples"`
}

type suiteExample struct {
	ID string `yaml:"id"`
	// Input is kept as a node so variables keep their file order.
	Input    yaml.Node      `yaml:"input"`
	Expected *string        `yaml:"expected"`
	Metadata map[string]any `yaml:"metadata"`
}

func loadSuite(path string) (*suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite: %w", err)
	}
	return parseSuite(data)
}

func parseSuite(data []byte) (*suite, error) {
	var s suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}
	if s.Workspace == "" {
		s.Workspace = "local"
	}
	if len(s.Versions) == 0 {
		return nil, errors.New("suite has no versions")
	}
	for _, v := range s.Versions {
		if v.ID == "" || v.User == "" {
			return nil, errors.New("every version needs an id and a user template")
		}
	}
	return &s, nil
}

// seed loads the suite into st.
func (s *suite) seed(st *memory.Store) error {
	for _, v := range s.Versions {
		st.PutVersion(domain.PromptVersion{
			ID: v.ID,
			Content: domain.ContentSnapshot{
				System:    v.System,
				Developer: v.Developer,
				User:      v.User,
				Context:   v.Context,
			},
			Model: v.Model,
		})
	}
	for _, r := range s.Rubrics {
		st.PutRubric(r)
	}
	for _, ds := range s.Datasets {
		examples := make([]domain.Example, 0, len(ds.Examples))
		for i, ex := range ds.Examples {
			vars, err := variables(&ex.Input)
			if err != nil {
				return fmt.Errorf("dataset %s example %d: %w", ds.ID, i+1, err)
			}
			id := ex.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d", ds.ID, i+1)
			}
			examples = append(examples, domain.Example{
				ID:             id,
				InputVariables: vars,
				ExpectedOutput: ex.Expected,
				Metadata:       ex.Metadata,
			})
		}
		st.PutDataset(ds.ID, examples...)
	}
	return nil
}

// variables converts a YAML mapping into ordered input variables.
func variables(node *yaml.Node) (domain.Variables, error) {
	vars := domain.Variables{}
	if node.Kind == 0 {
		return vars, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("input must be a mapping, got line %d", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("input %q: %w", node.Content[i].Value, err)
		}
		vars = append(vars, domain.Variable{Name: node.Content[i].Value, Value: value})
	}
	return vars, nil
}
