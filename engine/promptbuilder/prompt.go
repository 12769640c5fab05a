/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"fmt"
	"maps"
)

// Prompt is a parsed template with placeholders awaiting values.
type Prompt struct {
	template string
	bindings map[string]binding
}

// NewPrompt parses template and registers every placeholder as unbound.
func NewPrompt(template string) (*Prompt, error) {
	names, err := Placeholders(template)
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]binding, len(names))
	for _, name := range names {
		bindings[name] = unbound{name: name}
	}
	return &Prompt{template: template, bindings: bindings}, nil
}

// MustNewPrompt is NewPrompt for package-level templates; it panics on error.
func MustNewPrompt(template string) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the set of placeholder names in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	out := make(map[string]struct{}, len(p.bindings))
	for name := range p.bindings {
		out[name] = struct{}{}
	}
	return out
}

func (p *Prompt) bind(name string, b binding) (*Prompt, error) {
	current, ok := p.bindings[name]
	if !ok {
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	}
	if _, isUnbound := current.(unbound); !isUnbound {
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	next := &Prompt{template: p.template, bindings: maps.Clone(p.bindings)}
	next.bindings[name] = b
	return next, nil
}

// BindText substitutes value verbatim.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.bind(name, textBinding(value))
}

// BindXML substitutes data marshaled as indented XML.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.bind(name, xmlBinding{data: data})
}

// BindSection substitutes text wrapped in an XML element named after the
// placeholder.
func (p *Prompt) BindSection(name, text string) (*Prompt, error) {
	return p.bind(name, sectionBinding(NewSection(name, text)))
}

// BindJSON substitutes data marshaled as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, jsonBinding{data: data})
}

// BindYAML substitutes data marshaled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, yamlBinding{data: data})
}

// Build renders the template. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bindings))
	for name, b := range p.bindings {
		v, err := b.value()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return walkTemplate(p.template, func(name string) (string, error) {
		return values[name], nil
	})
}
