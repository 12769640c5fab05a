/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metric

import (
	"context"
	"strings"
)

const reasonNoExpected = "no expected output"

type exactMatch struct{}

func (exactMatch) Requirements() Requirements { return Requirements{Labels: true} }

func (exactMatch) Evaluate(_ context.Context, output string, mc Context) Outcome {
	expected, ok := mc.Example.Expected()
	if !ok {
		return fail(reasonNoExpected)
	}
	return verdict(strings.EqualFold(strings.TrimSpace(output), strings.TrimSpace(expected)),
		"output does not match expected output")
}

type contains struct{}

func (contains) Requirements() Requirements { return Requirements{Labels: true} }

func (contains) Evaluate(_ context.Context, output string, mc Context) Outcome {
	expected, ok := mc.Example.Expected()
	if !ok {
		return fail(reasonNoExpected)
	}
	return verdict(strings.Contains(strings.ToLower(output), strings.ToLower(expected)),
		"output does not contain expected output")
}
