/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// resolveFunc provides the replacement text for a placeholder.
type resolveFunc func(name string) (string, error)

// walkTemplate tokenizes template and substitutes each placeholder with the
// result of resolve.
func walkTemplate(template string, resolve resolveFunc) (string, error) {
	var sb strings.Builder
	sb.Grow(len(template))

	for len(template) > 0 {
		start := strings.Index(template, "{{")
		if start == -1 {
			sb.WriteString(template)
			break
		}
		sb.WriteString(template[:start])

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", errors.New("unclosed placeholder: missing '}}'")
		}
		end += start + 2

		name := strings.TrimSpace(template[start+2 : end-2])
		if !isIdentifier(name) {
			return "", fmt.Errorf("invalid placeholder %q", name)
		}
		replacement, err := resolve(name)
		if err != nil {
			return "", err
		}
		sb.WriteString(replacement)
		template = template[end:]
	}
	return sb.String(), nil
}

// isIdentifier reports whether s is a valid placeholder name.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_'):
		default:
			return false
		}
	}
	return true
}

// Placeholders returns the distinct placeholder names in template, in order
// of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string
	seen := map[string]struct{}{}
	_, err := walkTemplate(template, func(name string) (string, error) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
		return "", nil
	})
	return names, err
}
