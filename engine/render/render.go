/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package render turns a prompt version's content snapshot and an example's
// input variables into the messages sent to a model.
package render

import (
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
	"chainguard.dev/promptlab/engine/llm"
	"chainguard.dev/promptlab/engine/promptbuilder"
)

// Interface renders prompts. Implementations are pure and deterministic.
type Interface interface {
	Render(content domain.ContentSnapshot, vars domain.Variables) (llm.Messages, error)
}

// ErrEmptyPrompt is returned for content without a user section.
var ErrEmptyPrompt = errors.New("prompt has no user section")

// Templates substitutes {{name}} placeholders in every section. Referencing
// a variable the example does not define is an error.
type Templates struct{}

var _ Interface = Templates{}

// Render implements Interface.
func (Templates) Render(content domain.ContentSnapshot, vars domain.Variables) (llm.Messages, error) {
	if strings.TrimSpace(content.User) == "" {
		return llm.Messages{}, ErrEmptyPrompt
	}
	values := vars.Map()

	var msgs llm.Messages
	for _, s := range []struct {
		name     string
		template string
		out      *string
	}{
		{"system", content.System, &msgs.System},
		{"developer", content.Developer, &msgs.Developer},
		{"user", content.User, &msgs.User},
		{"context", content.Context, &msgs.Context},
	} {
		if s.template == "" {
			continue
		}
		text, err := promptbuilder.Render(s.template, values)
		if err != nil {
			return llm.Messages{}, fmt.Errorf("render %s section: %w", s.name, err)
		}
		*s.out = text
	}
	return msgs, nil
}
