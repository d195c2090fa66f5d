// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// parseFile parses source and registers cleanup for the tree.
func parseFile(t *testing.T, source string) *ast.Context {
	t.Helper()
	actx, err := ast.Parse(context.Background(), []byte(source), "test.js")
	require.NoError(t, err)
	t.Cleanup(actx.Close)
	return actx
}

// issuesOfType filters issues by type.
func issuesOfType(issues []Issue, issueType string) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Type == issueType {
			out = append(out, i)
		}
	}
	return out
}

func TestNPlusOneDetector(t *testing.T) {
	d := NewNPlusOneDetector()

	t.Run("single call in for-of loop is medium", func(t *testing.T) {
		actx := parseFile(t, `
const mongoose = require('mongoose');
const User = mongoose.model('User', schema);

async function enrich(users) {
  for (const u of users) {
    u.profile = await User.findOne({ id: u.id });
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, issues, 1)

		issue := issues[0]
		assert.Equal(t, TypeNPlusOneQuery, issue.Type)
		assert.Equal(t, SeverityMedium, issue.Severity)
		require.NotNil(t, issue.EstimatedImpact)
		assert.Equal(t, float64(101), issue.EstimatedImpact.Metrics["queries_at_scale"])
	})

	t.Run("three calls in one loop is critical", func(t *testing.T) {
		actx := parseFile(t, `
const mongoose = require('mongoose');
const User = mongoose.model('User', schema);

async function enrich(users) {
  for (const u of users) {
    u.a = await User.findOne({ id: u.id });
    u.b = await User.findById(u.ref);
    u.c = await User.countDocuments({ owner: u.id });
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, SeverityCritical, issues[0].Severity)
		assert.Equal(t, float64(301), issues[0].EstimatedImpact.Metrics["queries_at_scale"])
	})

	t.Run("two calls is high", func(t *testing.T) {
		actx := parseFile(t, `
import { PrismaClient } from '@prisma/client';
const prisma = new PrismaClient();

async function load(ids) {
  for (const id of ids) {
    await prisma.findUnique({ where: { id } });
    await prisma.findFirst({ where: { parent: id } });
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, SeverityHigh, issues[0].Severity)
	})

	t.Run("heuristic fallback without imports lowers confidence", func(t *testing.T) {
		actx := parseFile(t, `
async function load(repo, ids) {
  for (const id of ids) {
    await repo.findOne(id);
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, SeverityMedium, issues[0].Severity)
		assert.Equal(t, float64(60), issues[0].EstimatedImpact.ConfidenceScore)
	})

	t.Run("call inside nested non-awaited function is not counted", func(t *testing.T) {
		actx := parseFile(t, `
const mongoose = require('mongoose');
const User = mongoose.model('User', schema);

function schedule(users) {
  for (const u of users) {
    setCallback(() => User.findOne({ id: u.id }));
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("iteration method callback is a loop", func(t *testing.T) {
		actx := parseFile(t, `
const mongoose = require('mongoose');
const User = mongoose.model('User', schema);

async function enrich(users) {
  await Promise.all(users.map(async (u) => {
    return await User.findOne({ id: u.id });
  }));
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, TypeNPlusOneQuery, issues[0].Type)
	})

	t.Run("loop without database calls is clean", func(t *testing.T) {
		actx := parseFile(t, `
function total(xs) {
  let sum = 0;
  for (const x of xs) {
    sum += x;
  }
  return sum;
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}

func TestSeverityForCallsMonotonic(t *testing.T) {
	prev := severityForCalls(1)
	for k := 2; k <= 6; k++ {
		cur := severityForCalls(k)
		assert.True(t, cur.AtLeast(prev), "severity dropped between %d and %d calls", k-1, k)
		prev = cur
	}
}

func TestLoopDetector(t *testing.T) {
	d := NewLoopDetector()

	t.Run("triple nested for loops are critical with cubic complexity", func(t *testing.T) {
		actx := parseFile(t, `
for (let i = 0; i < n; i++) {
  for (let j = 0; j < n; j++) {
    for (let k = 0; k < n; k++) {
    }
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		nested := issuesOfType(issues, TypeNestedLoops)
		require.Len(t, nested, 1)
		assert.Equal(t, SeverityCritical, nested[0].Severity)
		assert.Equal(t, "3", nested[0].Metadata["nestedDepth"])
		assert.Equal(t, "O(n³)", nested[0].Metadata["complexity"])
	})

	t.Run("double nested loops are high with quadratic complexity", func(t *testing.T) {
		actx := parseFile(t, `
for (const a of xs) {
  for (const b of ys) {
    use(a, b);
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		nested := issuesOfType(issues, TypeNestedLoops)
		require.Len(t, nested, 1)
		assert.Equal(t, SeverityHigh, nested[0].Severity)
		assert.Equal(t, "O(n²)", nested[0].Metadata["complexity"])
	})

	t.Run("single loop raises no nesting issue", func(t *testing.T) {
		actx := parseFile(t, `for (const x of xs) { use(x); }`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issuesOfType(issues, TypeNestedLoops))
	})

	t.Run("filter then map chain is medium", func(t *testing.T) {
		actx := parseFile(t, `const names = users.filter(u => u.active).map(u => u.name);`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		chained := issuesOfType(issues, TypeFilterThenMap)
		require.Len(t, chained, 1)
		assert.Equal(t, SeverityMedium, chained[0].Severity)
	})

	t.Run("nested iteration methods are high", func(t *testing.T) {
		actx := parseFile(t, `
const joined = orders.map(o => ({
  ...o,
  user: users.find(u => u.id === o.userId),
}));
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.NotEmpty(t, issuesOfType(issues, TypeNestedIterationMethods))
	})

	t.Run("await in loop is counted per occurrence", func(t *testing.T) {
		actx := parseFile(t, `
async function run(items) {
  for (const item of items) {
    await step(item);
    await log(item);
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		awaits := issuesOfType(issues, TypeAwaitInLoop)
		require.Len(t, awaits, 2)
		for _, issue := range awaits {
			assert.Equal(t, SeverityHigh, issue.Severity)
		}
	})

	t.Run("sync file io in loop is critical", func(t *testing.T) {
		actx := parseFile(t, `
const fs = require('fs');
for (const p of paths) {
  const data = fs.readFileSync(p);
  use(data);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		io := issuesOfType(issues, TypeSyncIOInLoop)
		require.Len(t, io, 1)
		assert.Equal(t, SeverityCritical, io[0].Severity)
	})

	t.Run("json stringify in loop is high", func(t *testing.T) {
		actx := parseFile(t, `
for (const row of rows) {
  cache.set(row.id, JSON.stringify(row));
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		json := issuesOfType(issues, TypeJSONInLoop)
		require.Len(t, json, 1)
		assert.Equal(t, SeverityHigh, json[0].Severity)
	})

	t.Run("membership lookup in loop is high", func(t *testing.T) {
		actx := parseFile(t, `
for (const id of ids) {
  if (seen.includes(id)) { skip(id); }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		lookups := issuesOfType(issues, TypeLookupInLoop)
		require.Len(t, lookups, 1)
		assert.Equal(t, SeverityHigh, lookups[0].Severity)
	})

	t.Run("push in loop is low", func(t *testing.T) {
		actx := parseFile(t, `
const out = [];
for (const x of xs) {
  out.push(transform(x));
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		pushes := issuesOfType(issues, TypePushInLoop)
		require.Len(t, pushes, 1)
		assert.Equal(t, SeverityLow, pushes[0].Severity)
	})

	t.Run("string concatenation in loop is medium", func(t *testing.T) {
		actx := parseFile(t, `
let html = '';
for (const row of rows) {
  html += '<li>' + row.name + '</li>';
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.NotEmpty(t, issuesOfType(issues, TypeStringConcatInLoop))
	})

	t.Run("regex construction in loop is medium", func(t *testing.T) {
		actx := parseFile(t, `
for (const line of lines) {
  const re = new RegExp(pattern);
  if (re.test(line)) { keep(line); }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.NotEmpty(t, issuesOfType(issues, TypeRegexInLoop))
	})

	t.Run("work outside loops is clean", func(t *testing.T) {
		actx := parseFile(t, `
const re = new RegExp(pattern);
const body = JSON.stringify(payload);
out.push(body);
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}

func TestPayloadDetector(t *testing.T) {
	d := NewPayloadDetector()

	t.Run("bare select-all query is high", func(t *testing.T) {
		actx := parseFile(t, `
const { Sequelize } = require('sequelize');
async function everything(User) {
  const rows = await User.findAll();
  use(rows);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		unbounded := issuesOfType(issues, TypeUnboundedQuery)
		require.Len(t, unbounded, 1)
		assert.Equal(t, SeverityHigh, unbounded[0].Severity)
	})

	t.Run("response emission of unbounded result is medium", func(t *testing.T) {
		actx := parseFile(t, `
const { Sequelize } = require('sequelize');
async function handler(req, res, User) {
  res.json(await User.findAll());
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		large := issuesOfType(issues, TypeLargeResponse)
		require.Len(t, large, 1)
		assert.Equal(t, SeverityMedium, large[0].Severity)
		assert.Empty(t, issuesOfType(issues, TypeUnboundedQuery))
	})

	t.Run("return forwarding unbounded result is high", func(t *testing.T) {
		actx := parseFile(t, `
import { PrismaClient } from '@prisma/client';
const prisma = new PrismaClient();

function allUsers() {
  return prisma.findMany();
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		forwarded := issuesOfType(issues, TypeUnboundedReturn)
		require.Len(t, forwarded, 1)
		assert.Equal(t, SeverityHigh, forwarded[0].Severity)
	})

	t.Run("field selection silences the finding", func(t *testing.T) {
		actx := parseFile(t, `
import { PrismaClient } from '@prisma/client';
const prisma = new PrismaClient();

function names() {
  return prisma.findMany({ select: { name: true } });
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("row limit silences the finding", func(t *testing.T) {
		actx := parseFile(t, `
const { Sequelize } = require('sequelize');
async function page(User) {
  return await User.findAll({ limit: 50, offset: 0 });
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}

func TestMemoryLeakDetector(t *testing.T) {
	d := NewMemoryLeakDetector()

	t.Run("setInterval without clearInterval is critical", func(t *testing.T) {
		actx := parseFile(t, `
function poll(fn) {
  setInterval(fn, 1000);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		timers := issuesOfType(issues, TypeTimerLeak)
		require.Len(t, timers, 1)
		assert.Equal(t, SeverityCritical, timers[0].Severity)
	})

	t.Run("timer severity ignores framework detection", func(t *testing.T) {
		actx := parseFile(t, `
import React, { useEffect } from 'react';

function Clock() {
  useEffect(() => {
    setInterval(tick, 1000);
  }, []);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		timers := issuesOfType(issues, TypeTimerLeak)
		require.Len(t, timers, 1)
		assert.Equal(t, SeverityCritical, timers[0].Severity)
	})

	t.Run("cleared timer raises nothing", func(t *testing.T) {
		actx := parseFile(t, `
function poll(fn) {
  const handle = setInterval(fn, 1000);
  return () => clearInterval(handle);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issuesOfType(issues, TypeTimerLeak))
	})

	t.Run("timer cleared in useEffect cleanup raises nothing", func(t *testing.T) {
		actx := parseFile(t, `
import { useEffect } from 'react';

function Clock() {
  useEffect(() => {
    const handle = setInterval(tick, 1000);
    return () => clearInterval(handle);
  }, []);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issuesOfType(issues, TypeTimerLeak))
	})

	t.Run("listener without framework is medium", func(t *testing.T) {
		actx := parseFile(t, `
function watch(el) {
  el.addEventListener('scroll', onScroll);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		listeners := issuesOfType(issues, TypeListenerLeak)
		require.Len(t, listeners, 1)
		assert.Equal(t, SeverityMedium, listeners[0].Severity)
		assert.Equal(t, string(FrameworkNone), listeners[0].Metadata["framework"])
	})

	t.Run("listener with framework detected is high", func(t *testing.T) {
		actx := parseFile(t, `
import { useEffect } from 'react';

function Widget() {
  useEffect(() => {
    window.addEventListener('resize', onResize);
  }, []);
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		listeners := issuesOfType(issues, TypeListenerLeak)
		require.Len(t, listeners, 1)
		assert.Equal(t, SeverityHigh, listeners[0].Severity)
	})

	t.Run("listener removed in lifecycle teardown raises nothing", func(t *testing.T) {
		actx := parseFile(t, `
import React from 'react';

class Widget extends React.Component {
  componentDidMount() {
    window.addEventListener('resize', this.onResize);
  }
  componentWillUnmount() {
    window.removeEventListener('resize', this.onResize);
  }
}
`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)
		assert.Empty(t, issuesOfType(issues, TypeListenerLeak))
	})

	t.Run("global assignment is medium", func(t *testing.T) {
		actx := parseFile(t, `window.appCache = buildCache();`)
		issues, err := d.Detect(context.Background(), actx)
		require.NoError(t, err)

		globals := issuesOfType(issues, TypeGlobalAssignment)
		require.Len(t, globals, 1)
		assert.Equal(t, SeverityMedium, globals[0].Severity)
	})
}

func TestFrameworkClassification(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   FrameworkKind
	}{
		{"react import is hooks", `import React from 'react';`, FrameworkHooks},
		{"vue import is lifecycle", `import Vue from 'vue';`, FrameworkLifecycle},
		{"angular import is lifecycle", `import { Component } from '@angular/core';`, FrameworkLifecycle},
		{"plain node file is none", `const fs = require('fs');`, FrameworkNone},
		{
			"useEffect without import is hooks",
			`function C() { useEffect(() => {}, []); }`,
			FrameworkHooks,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actx := parseFile(t, tc.source)
			assert.Equal(t, tc.want, ClassifyFramework(actx))
		})
	}
}

func TestFrameworkRun(t *testing.T) {
	t.Run("results keep registration order", func(t *testing.T) {
		actx := parseFile(t, `
const mongoose = require('mongoose');
const User = mongoose.model('User', schema);

async function enrich(users) {
  for (const u of users) {
    u.profile = await User.findOne({ id: u.id });
  }
}
`)
		f := NewFramework()
		results, err := f.Run(context.Background(), actx)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "n_plus_one", results[0].DetectorName)
		assert.Equal(t, "inefficient_loops", results[1].DetectorName)
		assert.Equal(t, "large_payload", results[2].DetectorName)
		assert.Equal(t, "memory_leak", results[3].DetectorName)
		assert.Len(t, results[0].Issues, 1)
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		actx := parseFile(t, `const x = 1;`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := NewFramework()
		_, err := f.Run(ctx, actx)
		require.Error(t, err)
	})
}
