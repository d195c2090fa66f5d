// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	fixengine "github.com/perfscope/perfscope/services/fix_engine"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

// fileReport is the JSON shape for one analyzed file.
type fileReport struct {
	File    string          `json:"file"`
	Error   string          `json:"error,omitempty"`
	Results []detect.Result `json:"results,omitempty"`
}

// printJSON writes the full report as indented JSON.
func printJSON(w io.Writer, results []fixengine.FileResult) error {
	reports := make([]fileReport, 0, len(results))
	for _, fr := range results {
		report := fileReport{File: fr.FileID, Results: fr.Results}
		if fr.Err != nil {
			report.Error = fr.Err.Error()
		}
		reports = append(reports, report)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// printHuman writes a colorized per-file report.
func printHuman(w io.Writer, results []fixengine.FileResult, withFixes bool) {
	bold := color.New(color.Bold)
	totalIssues := 0
	failedFiles := 0

	for _, fr := range results {
		if fr.Err != nil {
			failedFiles++
			color.New(color.FgRed).Fprintf(w, "✗ %s\n", fr.FileID)
			fmt.Fprintf(w, "  %v\n\n", fr.Err)
			continue
		}

		var issues []detect.Issue
		for _, r := range fr.Results {
			issues = append(issues, r.Issues...)
		}
		if len(issues) == 0 {
			color.New(color.FgGreen).Fprintf(w, "✓ %s\n", fr.FileID)
			continue
		}

		totalIssues += len(issues)
		bold.Fprintf(w, "%s (%d issue(s))\n", fr.FileID, len(issues))
		for _, issue := range issues {
			printIssue(w, issue, withFixes)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("─", 60))
	switch {
	case failedFiles > 0:
		color.New(color.FgRed).Fprintf(w, "%d issue(s), %d file(s) failed\n", totalIssues, failedFiles)
	case totalIssues > 0:
		color.New(color.FgYellow).Fprintf(w, "%d issue(s) found\n", totalIssues)
	default:
		color.New(color.FgGreen).Fprintln(w, "no issues found")
	}
}

func printIssue(w io.Writer, issue detect.Issue, withFixes bool) {
	severityColor(issue.Severity).Fprintf(w, "  [%s]", strings.ToUpper(string(issue.Severity)))
	fmt.Fprintf(w, " %s", issue.Title)
	if issue.LineNumber > 0 {
		fmt.Fprintf(w, " (line %d)", issue.LineNumber)
	}
	fmt.Fprintln(w)
	if issue.Description != "" {
		fmt.Fprintf(w, "      %s\n", issue.Description)
	}
	if issue.EstimatedImpact != nil && issue.EstimatedImpact.Description != "" {
		fmt.Fprintf(w, "      impact: %s\n", issue.EstimatedImpact.Description)
	}

	if !withFixes || len(issue.Solutions) == 0 {
		return
	}
	best := issue.Solutions[0]
	color.New(color.FgCyan).Fprintf(w, "      fix #%d %s (score %.1f, ~%d min, %s risk)\n",
		best.Rank, best.Type, best.FitnessScore, best.EstimatedMinutes, best.RiskLevel)
	if best.Reasoning != "" {
		fmt.Fprintf(w, "      %s\n", best.Reasoning)
	}
	for _, line := range strings.Split(best.Code, "\n") {
		fmt.Fprintf(w, "      │ %s\n", line)
	}
	if extra := len(issue.Solutions) - 1; extra > 0 {
		fmt.Fprintf(w, "      (%d more candidate(s); use --json for all)\n", extra)
	}
}

func severityColor(s detect.Severity) *color.Color {
	switch s {
	case detect.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case detect.SeverityHigh:
		return color.New(color.FgRed)
	case detect.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}
