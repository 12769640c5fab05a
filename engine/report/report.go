/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"chainguard.dev/promptlab/engine/domain"
)

// maxReasonLen bounds the failure reason shown per example.
const maxReasonLen = 60

// Run renders run and its results. It reports true when the run did not
// succeed or, for evaluation runs, scored below threshold.
func Run(run *domain.Run, results []*domain.Result, threshold float64) (string, bool) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "## %s run %s\n\n", run.Kind, run.ID)

	failed := run.Status != domain.StatusSucceeded
	summary := newTable(&buf, text("Field"), text("Value"))
	rows := [][]string{
		{"Status", status(run)},
		{"Metric", run.MetricType},
		{"Dataset", run.DatasetID},
	}
	switch run.Kind {
	case domain.KindComparison:
		rows = append(rows,
			[]string{"Versions", fmt.Sprintf("A=%s B=%s", run.VersionAID, run.VersionBID)},
			[]string{"Wins", fmt.Sprintf("A %d, B %d, ties %d", run.WinsA, run.WinsB, run.Ties)},
			[]string{"Score A", score(run.ScoreA)},
			[]string{"Score B", score(run.ScoreB)},
		)
	default:
		rows = append(rows,
			[]string{"Version", run.VersionID},
			[]string{"Score", score(run.Score)},
		)
		if run.Score != nil && *run.Score < threshold {
			failed = true
		}
	}
	rows = append(rows,
		[]string{"Cost", fmt.Sprintf("%d calls, %d tokens, $%.4f", run.Cost.Calls, run.Cost.Tokens, run.Cost.USD)},
		[]string{"Duration", run.Duration().String()},
	)
	for _, row := range rows {
		_ = summary.Append(row)
	}
	_ = summary.Render()

	if len(results) == 0 {
		return buf.String(), failed
	}
	buf.WriteString("\n")
	if run.Kind == domain.KindComparison {
		comparisonTable(&buf, results)
	} else {
		evaluationTable(&buf, results)
	}
	return buf.String(), failed
}

func evaluationTable(buf *bytes.Buffer, results []*domain.Result) {
	table := newTable(buf, text("Example"), text("Result"), number("Score"), text("Reason"))
	for _, r := range results {
		verdict := "pass"
		if !r.Passed {
			verdict = "FAIL"
		}
		_ = table.Append([]string{r.ExampleID, verdict, fmt.Sprintf("%.2f", r.Score), truncate(r.FailureReason)})
	}
	_ = table.Render()
}

func comparisonTable(buf *bytes.Buffer, results []*domain.Result) {
	table := newTable(buf, text("Example"), text("Winner"), text("Reason"))
	for _, r := range results {
		reason := r.WinnerReason
		if r.FailureReason != "" {
			reason = r.FailureReason
		}
		_ = table.Append([]string{r.ExampleID, string(r.Winner), truncate(reason)})
	}
	_ = table.Render()
}

// column is a table header and the alignment of its cells.
type column struct {
	name  string
	align tw.Align
}

func text(name string) column   { return column{name: name, align: tw.AlignLeft} }
func number(name string) column { return column{name: name, align: tw.AlignRight} }

// newTable returns a markdown table over cols. Cells are never wrapped:
// reasons are shortened by truncate before they are appended.
func newTable(w io.Writer, cols ...column) *tablewriter.Table {
	headers := make([]string, len(cols))
	aligns := make([]tw.Align, len(cols))
	for i, c := range cols {
		headers[i], aligns[i] = c.name, c.align
	}
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft, PerColumn: aligns},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft, PerColumn: aligns},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Right: tw.On, Top: tw.Off, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func status(run *domain.Run) string {
	if run.ErrorMessage != "" {
		return fmt.Sprintf("%s: %s", run.Status, run.ErrorMessage)
	}
	return string(run.Status)
}

func score(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *s)
}

// truncate shortens s to one line of at most maxReasonLen runes.
func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxReasonLen {
		return string(r[:maxReasonLen-3]) + "..."
	}
	return s
}
