// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect defines the finding model (Issue, Solution, severity) and
// the detector framework that produces findings from a parsed file.
//
// Detectors are pure functions of (AST, context): no I/O, no shared mutable
// state, no cross-call memory. The optimizer re-invokes adjacent logic
// repeatedly and depends on reproducible, parallelizable results.
package detect

import (
	"github.com/google/uuid"
)

// Severity classifies how damaging a finding is at scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityOrder supports threshold comparisons.
var severityOrder = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at least min severe. Unknown severities
// compare as low.
func (s Severity) AtLeast(min Severity) bool {
	return severityOrder[s] >= severityOrder[min]
}

// Issue type identifiers emitted by the built-in detectors.
const (
	TypeNPlusOneQuery          = "n_plus_one_query"
	TypeFilterThenMap          = "filter_then_map"
	TypeNestedIterationMethods = "nested_iteration_methods"
	TypePushInLoop             = "push_in_loop"
	TypeDOMMutationInLoop      = "dom_mutation_in_loop"
	TypeAwaitInLoop            = "await_in_loop"
	TypeStringConcatInLoop     = "string_concat_in_loop"
	TypeRegexInLoop            = "regex_in_loop"
	TypeJSONInLoop             = "json_in_loop"
	TypeLookupInLoop           = "lookup_in_loop"
	TypeNestedLoops            = "nested_loops"
	TypeSyncIOInLoop           = "sync_io_in_loop"
	TypeLargeResponse          = "large_response_payload"
	TypeUnboundedQuery         = "unbounded_query"
	TypeUnboundedReturn        = "unbounded_query_return"
	TypeListenerLeak           = "listener_leak"
	TypeTimerLeak              = "timer_leak"
	TypeGlobalAssignment       = "global_assignment"
	TypeLargeClosureCapture    = "large_closure_capture"
)

// RiskLevel classifies how risky applying a solution is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// EstimatedImpact quantifies a finding. Set at Issue creation, never mutated.
type EstimatedImpact struct {
	// SeverityScore grades the impact 0-10.
	SeverityScore float64 `json:"severityScore"`

	// Description explains the impact in one sentence.
	Description string `json:"description"`

	// ConfidenceScore grades detection confidence 0-100.
	ConfidenceScore float64 `json:"confidenceScore"`

	// Metrics holds detector-specific numeric evidence.
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Issue is one finding in one file. Immutable after creation except for the
// Solutions list, which the generator/optimizer attach and re-rank.
type Issue struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	FilePath    string    `json:"filePath"`
	LineNumber  int       `json:"lineNumber,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`

	// BeforeSnippet is the offending source excerpt.
	BeforeSnippet string `json:"beforeSnippet"`

	// AfterSnippet is a suggested rewrite, when a detector has one.
	AfterSnippet string `json:"afterSnippet,omitempty"`

	// EstimatedImpact quantifies the finding, when modeled.
	EstimatedImpact *EstimatedImpact `json:"estimatedImpact,omitempty"`

	// Metadata carries detector-specific string facts (e.g. nested depth,
	// complexity class).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Solutions is the ranked candidate-fix list.
	Solutions []Solution `json:"solutions,omitempty"`
}

// NewIssue constructs an Issue with a fresh ID.
func NewIssue(issueType string, severity Severity, filePath string) Issue {
	return Issue{
		ID:       uuid.NewString(),
		Type:     issueType,
		Severity: severity,
		FilePath: filePath,
	}
}

// Solution is one candidate fix for an Issue. Created by the generator
// (template) or the optimizer (type "evolved"); only Rank and FitnessScore
// change after creation, and only through re-ranking.
type Solution struct {
	ID      string `json:"id"`
	IssueID string `json:"issueId"`

	// Rank is dense and 1-based, consistent with descending FitnessScore.
	Rank int `json:"rank"`

	// Type names the fix strategy (e.g. "eager_loading", "evolved").
	Type string `json:"type"`

	// Code is the proposed replacement source.
	Code string `json:"code"`

	// FitnessScore is the weighted 0-100 quality score.
	FitnessScore float64 `json:"fitnessScore"`

	// Reasoning explains why this fix applies.
	Reasoning string `json:"reasoning"`

	// EstimatedMinutes is the implementation effort estimate.
	EstimatedMinutes int `json:"estimatedImplementationMinutes"`

	// RiskLevel grades application risk.
	RiskLevel RiskLevel `json:"riskLevel"`
}

// Result pairs a detector's name with the issues it found in one file.
type Result struct {
	DetectorName string  `json:"detectorName"`
	Issues       []Issue `json:"issues"`
}
