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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossover(t *testing.T) {
	ctx := context.Background()

	parentA := `const a1 = first();
const a2 = second();
const a3 = third();`
	parentB := `const b1 = alpha();
const b2 = beta();
const b3 = gamma();`

	t.Run("children combine both parents' statements", func(t *testing.T) {
		childAB, childBA, err := Crossover(ctx, parentA, parentB, testRand())
		require.NoError(t, err)

		for _, child := range []string{childAB, childBA} {
			mustStayValid(t, child)
			fromA := strings.Contains(child, "a1") || strings.Contains(child, "a2") || strings.Contains(child, "a3")
			fromB := strings.Contains(child, "b1") || strings.Contains(child, "b2") || strings.Contains(child, "b3")
			assert.True(t, fromA || fromB, "child lost all statements:\n%s", child)
		}
		// The two orderings mirror each other around the same split.
		assert.NotEqual(t, childAB, childBA)
	})

	t.Run("statement counts are preserved across both children", func(t *testing.T) {
		childAB, childBA, err := Crossover(ctx, parentA, parentB, testRand())
		require.NoError(t, err)

		count := func(s string) int {
			return strings.Count(s, "const ")
		}
		assert.Equal(t, 6, count(childAB)+count(childBA))
	})

	t.Run("unparseable parent fails", func(t *testing.T) {
		_, _, err := Crossover(ctx, `function broken( {`, parentB, testRand())
		require.ErrorIs(t, err, ErrCrossoverFailed)
	})

	t.Run("empty parent fails", func(t *testing.T) {
		_, _, err := Crossover(ctx, ``, parentB, testRand())
		require.ErrorIs(t, err, ErrCrossoverFailed)
	})
}
