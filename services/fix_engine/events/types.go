// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events carries optimizer progress events to subscribers.
//
// Delivery is one-way and best-effort: the optimizer emits one progress
// event per generation; a slow or absent subscriber never blocks or fails
// an optimization run.
package events

import "time"

// Type identifies an event kind.
type Type string

const (
	// TypeEvolutionStart fires when an optimizer run begins.
	TypeEvolutionStart Type = "evolution-start"

	// TypeEvolutionProgress fires once per evaluated generation.
	TypeEvolutionProgress Type = "evolution-progress"

	// TypeEvolutionComplete fires when a run converges or finishes its
	// generation budget.
	TypeEvolutionComplete Type = "evolution-complete"

	// TypeEvolutionTimeout fires when a run is abandoned before
	// completing (budget or failure fallback).
	TypeEvolutionTimeout Type = "evolution-timeout"
)

// Event is one progress notification from an optimizer run.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// IssueType names the issue type being optimized.
	IssueType string `json:"issueType"`

	// IssueTitle is the human-readable issue title.
	IssueTitle string `json:"issueTitle"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Progress carries per-generation numbers; nil for start events.
	Progress *Progress `json:"progress,omitempty"`
}

// Progress is the per-generation payload of a progress event.
type Progress struct {
	// Generation is the zero-based generation index.
	Generation int `json:"generation"`

	// MaxGenerations is the run's generation budget.
	MaxGenerations int `json:"maxGenerations"`

	// BestFitness is the best fitness in the evaluated population.
	BestFitness float64 `json:"bestFitness"`

	// AvgFitness is the population's mean fitness.
	AvgFitness float64 `json:"avgFitness"`

	// BestSolution is the best candidate's source code.
	BestSolution string `json:"bestSolution,omitempty"`

	// Population summarizes each candidate as id/fitness pairs.
	Population []CandidateSummary `json:"population,omitempty"`
}

// CandidateSummary is one population member in a progress event.
type CandidateSummary struct {
	ID         string  `json:"id"`
	Fitness    float64 `json:"fitness"`
	Generation int     `json:"generation"`
	Mutations  int     `json:"mutations"`
}
