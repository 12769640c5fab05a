/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// binding produces the text substituted for a placeholder.
type binding interface {
	value() (string, error)
}

type unbound struct{ name string }

func (u unbound) value() (string, error) {
	return "", fmt.Errorf("unbound placeholder: %s", u.name)
}

type textBinding string

func (t textBinding) value() (string, error) { return string(t), nil }

// xmlBinding marshals data as indented XML.
type xmlBinding struct {
	data any
}

func (x xmlBinding) value() (string, error) {
	b, err := xml.MarshalIndent(x.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal XML: %w", err)
	}
	return string(b), nil
}

type jsonBinding struct {
	data any
}

func (j jsonBinding) value() (string, error) {
	b, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal JSON: %w", err)
	}
	return string(b), nil
}

type yamlBinding struct {
	data any
}

func (y yamlBinding) value() (string, error) {
	b, err := yaml.Marshal(y.data)
	if err != nil {
		return "", fmt.Errorf("marshal YAML: %w", err)
	}
	return string(b), nil
}

// Section is an XML element carrying free text, e.g. <candidate_output>.
type Section struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// NewSection returns a Section element named tag.
func NewSection(tag, text string) Section {
	return Section{XMLName: xml.Name{Local: tag}, Text: text}
}

// sectionEscaper escapes markup but keeps line breaks readable, which
// encoding/xml chardata does not.
var sectionEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type sectionBinding Section

func (s sectionBinding) value() (string, error) {
	tag := s.XMLName.Local
	return "<" + tag + ">" + sectionEscaper.Replace(s.Text) + "</" + tag + ">", nil
}
