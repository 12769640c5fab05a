/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder builds prompts from templates with {{name}} placeholders.
//
// Two styles are supported:
//
//   - Prompt: a parsed template whose placeholders are bound one at a time
//     (as text, JSON, XML or YAML) and then built. Binding returns a new
//     Prompt, so a package-level template can be shared safely. Judge prompts
//     are built this way.
//   - Render: one-shot substitution of a variable map into a template. Prompt
//     version content is rendered this way for every dataset example.
//
// Placeholder names must start with a letter and contain only letters, digits
// and underscores. Whitespace inside the braces is ignored.
package promptbuilder
