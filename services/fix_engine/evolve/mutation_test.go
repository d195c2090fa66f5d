// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolve

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// mustStayValid parses the mutated code through the validator and fails
// the test on rejection.
func mustStayValid(t *testing.T, code string) {
	t.Helper()
	result, err := NewValidator().Validate(context.Background(), code)
	require.NoError(t, err)
	require.True(t, result.Valid, "mutated code no longer validates:\n%s", code)
}

func TestRenameVariable(t *testing.T) {
	ctx := context.Background()

	t.Run("renames the declaration and its uses", func(t *testing.T) {
		code := `const user = load();
use(user);
send(user.name);`
		result := renameVariable(ctx, code, testRand())
		require.True(t, result.OK)
		assert.NotContains(t, result.Code, "const user =")
		assert.Contains(t, result.Code, "userV2")
		// Property access keeps its name.
		assert.Contains(t, result.Code, ".name")
		mustStayValid(t, result.Code)
	})

	t.Run("skips property positions with the same name", func(t *testing.T) {
		code := `const name = pick();
use(obj.name, name);`
		result := renameVariable(ctx, code, testRand())
		require.True(t, result.OK)
		assert.Contains(t, result.Code, "obj.name")
		mustStayValid(t, result.Code)
	})

	t.Run("declines when nothing is declared", func(t *testing.T) {
		result := renameVariable(ctx, `run();`, testRand())
		assert.False(t, result.OK)
		assert.Equal(t, `run();`, result.Code)
	})
}

func TestPerturbQueryOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("adds selection or pagination to an options object", func(t *testing.T) {
		code := `const rows = await User.findAll({ where: { active: true } });`
		result := perturbQueryOptions(ctx, code, testRand())
		require.True(t, result.OK)
		changed := strings.Contains(result.Code, "limit: 50") ||
			strings.Contains(result.Code, "select: { id: true }")
		assert.True(t, changed, "no option added:\n%s", result.Code)
		mustStayValid(t, result.Code)
	})

	t.Run("creates the options argument when absent", func(t *testing.T) {
		code := `const rows = await User.findAll();`
		result := perturbQueryOptions(ctx, code, testRand())
		require.True(t, result.OK)
		mustStayValid(t, result.Code)
	})

	t.Run("can remove an include entry", func(t *testing.T) {
		code := `const rows = await User.findAll({ include: [Profile, Orders], limit: 10, select: { id: true } });`
		result := perturbQueryOptions(ctx, code, testRand())
		require.True(t, result.OK)
		// select and limit already present, so the only strategy is the
		// relation removal.
		assert.NotContains(t, result.Code, "Profile,")
		mustStayValid(t, result.Code)
	})

	t.Run("declines without a data-access call", func(t *testing.T) {
		result := perturbQueryOptions(ctx, `render(view);`, testRand())
		assert.False(t, result.OK)
	})
}

func TestSwapAccessMethod(t *testing.T) {
	ctx := context.Background()

	t.Run("swaps a method for a sibling", func(t *testing.T) {
		code := `const u = await User.findOne({ id });`
		result := swapAccessMethod(ctx, code, testRand())
		require.True(t, result.OK)
		assert.NotContains(t, result.Code, "findOne")
		swapped := strings.Contains(result.Code, "findById") || strings.Contains(result.Code, "find(")
		assert.True(t, swapped, "no sibling substituted:\n%s", result.Code)
		mustStayValid(t, result.Code)
	})

	t.Run("declines without a swappable method", func(t *testing.T) {
		result := swapAccessMethod(ctx, `render(view);`, testRand())
		assert.False(t, result.OK)
	})
}

func TestPrependCacheGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts an early return into an async body", func(t *testing.T) {
		code := `async function load(id) {
  return await User.findOne({ id });
}`
		result := prependCacheGuard(ctx, code, testRand())
		require.True(t, result.OK)
		assert.Contains(t, result.Code, "resultCache.get")
		assert.Contains(t, result.Code, "return cached")
		mustStayValid(t, result.Code)
	})

	t.Run("declines without an async function", func(t *testing.T) {
		result := prependCacheGuard(ctx, `function sync() { return 1; }`, testRand())
		assert.False(t, result.OK)
	})
}

func TestApplyRandomMutation(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the first successful operator", func(t *testing.T) {
		code := `async function load(id) {
  const row = await User.findOne({ id });
  return row;
}`
		result := ApplyRandomMutation(ctx, code, testRand())
		require.True(t, result.OK)
		assert.NotEqual(t, code, result.Code)
		assert.NotEmpty(t, result.Description)
		mustStayValid(t, result.Code)
	})

	t.Run("reports failure when every operator declines", func(t *testing.T) {
		result := ApplyRandomMutation(ctx, `1 + 1;`, testRand())
		assert.False(t, result.OK)
		assert.Equal(t, `1 + 1;`, result.Code)
	})
}
