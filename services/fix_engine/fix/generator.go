// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fix

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

// template is one catalog entry before it becomes a Solution.
type template struct {
	Type      string
	Code      string
	Reasoning string
	Minutes   int
	Risk      detect.RiskLevel
}

// Generator produces the template solution catalog for an issue. It is
// both the non-optimized output path and the optimizer's seed source.
//
// Output is deterministic given the issue type, modulo access-library
// detection from the issue's beforeSnippet (which selects the family's
// template set for N+1 issues).
//
// Thread Safety: Read-only after construction.
type Generator struct {
	calc   *Calculator
	logger *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a Generator scoring against the given project.
func NewGenerator(project ProjectContext, opts ...GeneratorOption) *Generator {
	g := &Generator{
		calc:   NewCalculator(project),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Calculator exposes the generator's fitness calculator so callers rank
// merged lists with the same scoring.
func (g *Generator) Calculator() *Calculator {
	return g.calc
}

// GenerateSolutions returns the ranked template catalog for the issue.
// Unknown issue types yield an empty list, not an error.
func (g *Generator) GenerateSolutions(issue detect.Issue) []detect.Solution {
	templates := g.route(issue)
	if len(templates) == 0 {
		g.logger.Debug("no solution templates for issue type", "type", issue.Type)
		return nil
	}

	solutions := make([]detect.Solution, 0, len(templates))
	for _, tpl := range templates {
		solutions = append(solutions, detect.Solution{
			ID:               uuid.NewString(),
			IssueID:          issue.ID,
			Type:             tpl.Type,
			Code:             tpl.Code,
			Reasoning:        tpl.Reasoning,
			EstimatedMinutes: tpl.Minutes,
			RiskLevel:        tpl.Risk,
		})
	}
	return g.calc.Rank(solutions)
}

// route picks the template catalog for one issue type.
func (g *Generator) route(issue detect.Issue) []template {
	switch issue.Type {
	case detect.TypeNPlusOneQuery:
		return accessTemplates(detectFamily(issue.BeforeSnippet))
	case detect.TypeFilterThenMap:
		return filterThenMapTemplates()
	case detect.TypeNestedIterationMethods, detect.TypeLookupInLoop:
		return indexedLookupTemplates()
	case detect.TypePushInLoop:
		return pushInLoopTemplates()
	case detect.TypeDOMMutationInLoop:
		return domMutationTemplates()
	case detect.TypeAwaitInLoop:
		return awaitInLoopTemplates()
	case detect.TypeStringConcatInLoop:
		return stringConcatTemplates()
	case detect.TypeRegexInLoop:
		return regexInLoopTemplates()
	case detect.TypeJSONInLoop:
		return jsonInLoopTemplates()
	case detect.TypeNestedLoops:
		return nestedLoopsTemplates()
	case detect.TypeSyncIOInLoop:
		return syncIOTemplates()
	case detect.TypeLargeResponse, detect.TypeUnboundedQuery, detect.TypeUnboundedReturn:
		return payloadTemplates(issue.Type)
	case detect.TypeListenerLeak:
		return listenerLeakTemplates()
	case detect.TypeTimerLeak:
		return timerLeakTemplates()
	case detect.TypeGlobalAssignment, detect.TypeLargeClosureCapture:
		return scopedStateTemplates(issue.Type)
	default:
		return nil
	}
}

// familySignatures map snippet substrings to access families, checked in
// order so the more specific signatures win.
var familySignatures = []struct {
	marker string
	family ast.Family
}{
	{"findMany", ast.FamilyPrisma},
	{"findUnique", ast.FamilyPrisma},
	{"prisma", ast.FamilyPrisma},
	{"findAll", ast.FamilySequelize},
	{"findByPk", ast.FamilySequelize},
	{"createQueryBuilder", ast.FamilyTypeORM},
	{"getRepository", ast.FamilyTypeORM},
	{"knex", ast.FamilyKnex},
	{"whereIn", ast.FamilyKnex},
	{"populate", ast.FamilyMongoose},
	{"findById", ast.FamilyMongoose},
	{"countDocuments", ast.FamilyMongoose},
}

// detectFamily infers the access-library family from an issue snippet.
// Returns the empty family when nothing matches.
func detectFamily(snippet string) ast.Family {
	for _, sig := range familySignatures {
		if strings.Contains(snippet, sig.marker) {
			return sig.family
		}
	}
	return ""
}
