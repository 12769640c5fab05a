/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package report renders finished runs as markdown.

# Usage

	run, _ := exec.Execute(ctx, runID)
	results, _ := st.ListResults(ctx, runID)
	out, failed := report.Run(run, results, 0.8)
	fmt.Print(out)
	if failed {
		os.Exit(1)
	}

# Report Format

A report has a summary table of the run followed by one row per example.
Evaluation runs list pass/fail and score per example; comparison runs list
the winner and the judge's reasoning. Failure reasons are truncated to keep
rows on one line.

The boolean result reports a run that did not succeed, or an evaluation run
whose aggregate score is below the threshold.
*/
package report
