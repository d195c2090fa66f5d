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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

func nPlusOneIssue(snippet string) detect.Issue {
	issue := detect.NewIssue(detect.TypeNPlusOneQuery, detect.SeverityHigh, "test.js")
	issue.BeforeSnippet = snippet
	return issue
}

func TestGenerateSolutions(t *testing.T) {
	g := NewGenerator(ProjectContext{})

	t.Run("n+1 with mongoose snippet selects mongoose templates", func(t *testing.T) {
		solutions := g.GenerateSolutions(nPlusOneIssue(`await User.findById(u.id)`))
		require.NotEmpty(t, solutions)

		types := make([]string, 0, len(solutions))
		for _, s := range solutions {
			types = append(types, s.Type)
		}
		assert.Contains(t, types, TypeEagerLoading)
		assert.Contains(t, types, TypeBatchQuery)
		assert.Contains(t, solutions[0].Code, "populate")
	})

	t.Run("n+1 with prisma snippet selects prisma templates", func(t *testing.T) {
		solutions := g.GenerateSolutions(nPlusOneIssue(`await prisma.user.findUnique({ where: { id } })`))
		require.NotEmpty(t, solutions)
		assert.Contains(t, solutions[0].Code, "prisma")
	})

	t.Run("n+1 without a family falls back to generic templates", func(t *testing.T) {
		solutions := g.GenerateSolutions(nPlusOneIssue(`await repo.load(id)`))
		require.NotEmpty(t, solutions)
		assert.Equal(t, TypeBatchQuery, solutions[0].Type)
	})

	t.Run("output is sorted descending with dense ranks", func(t *testing.T) {
		issue := detect.NewIssue(detect.TypeLargeResponse, detect.SeverityMedium, "test.js")
		solutions := g.GenerateSolutions(issue)
		require.NotEmpty(t, solutions)
		for i, s := range solutions {
			assert.Equal(t, i+1, s.Rank)
			assert.Equal(t, issue.ID, s.IssueID)
			if i > 0 {
				assert.GreaterOrEqual(t, solutions[i-1].FitnessScore, s.FitnessScore)
			}
		}
	})

	t.Run("deterministic content for the same issue type", func(t *testing.T) {
		issue := detect.NewIssue(detect.TypeAwaitInLoop, detect.SeverityHigh, "test.js")
		a := g.GenerateSolutions(issue)
		b := g.GenerateSolutions(issue)
		require.Equal(t, len(a), len(b))
		for i := range a {
			assert.Equal(t, a[i].Type, b[i].Type)
			assert.Equal(t, a[i].Code, b[i].Code)
			assert.Equal(t, a[i].FitnessScore, b[i].FitnessScore)
			assert.Equal(t, a[i].Rank, b[i].Rank)
		}
	})

	t.Run("every detector issue type has a catalog", func(t *testing.T) {
		for _, issueType := range []string{
			detect.TypeNPlusOneQuery, detect.TypeFilterThenMap,
			detect.TypeNestedIterationMethods, detect.TypePushInLoop,
			detect.TypeDOMMutationInLoop, detect.TypeAwaitInLoop,
			detect.TypeStringConcatInLoop, detect.TypeRegexInLoop,
			detect.TypeJSONInLoop, detect.TypeLookupInLoop,
			detect.TypeNestedLoops, detect.TypeSyncIOInLoop,
			detect.TypeLargeResponse, detect.TypeUnboundedQuery,
			detect.TypeUnboundedReturn, detect.TypeListenerLeak,
			detect.TypeTimerLeak, detect.TypeGlobalAssignment,
			detect.TypeLargeClosureCapture,
		} {
			issue := detect.NewIssue(issueType, detect.SeverityMedium, "test.js")
			assert.NotEmpty(t, g.GenerateSolutions(issue), "no templates for %s", issueType)
		}
	})

	t.Run("unknown issue type yields no solutions", func(t *testing.T) {
		issue := detect.NewIssue("something_else", detect.SeverityLow, "test.js")
		assert.Empty(t, g.GenerateSolutions(issue))
	})
}

func TestDetectFamily(t *testing.T) {
	cases := []struct {
		snippet string
		want    ast.Family
	}{
		{`User.findById(id)`, ast.FamilyMongoose},
		{`User.findAll({ where })`, ast.FamilySequelize},
		{`prisma.user.findMany()`, ast.FamilyPrisma},
		{`repo.createQueryBuilder('u')`, ast.FamilyTypeORM},
		{`knex('users').whereIn('id', ids)`, ast.FamilyKnex},
		{`repo.load(id)`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, detectFamily(tc.snippet), "snippet %q", tc.snippet)
	}
}
