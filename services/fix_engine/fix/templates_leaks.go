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

import "github.com/perfscope/perfscope/services/fix_engine/detect"

func timerLeakTemplates() []template {
	return []template{
		{
			Type: TypeCleanupHandler,
			Code: `useEffect(() => {
  const handle = setInterval(tick, 1000);
  return () => clearInterval(handle);
}, []);`,
			Reasoning: "Store the handle and clear it in the teardown path so the timer dies with its owner.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeScopedState,
			Code: `class Poller {
  start(fn) { this.handle = setInterval(fn, 1000); }
  stop() { clearInterval(this.handle); }
}`,
			Reasoning: "Wrap the timer in an object whose lifecycle the caller controls explicitly.",
			Minutes:   30,
			Risk:      detect.RiskMedium,
		},
	}
}

func listenerLeakTemplates() []template {
	return []template{
		{
			Type: TypeCleanupHandler,
			Code: `useEffect(() => {
  window.addEventListener('resize', onResize);
  return () => window.removeEventListener('resize', onResize);
}, []);`,
			Reasoning: "Remove the listener with the same handler reference in the teardown path; registrations stop stacking across remounts.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
	}
}

func scopedStateTemplates(issueType string) []template {
	if issueType == detect.TypeLargeClosureCapture {
		return []template{
			{
				Type: TypeScopedState,
				Code: `const needed = new Map(bigList.map(item => [item.id, item.value]));
const lookup = (id) => needed.get(id);`,
				Reasoning: "Derive the small structure the closure actually needs; the large array becomes collectable.",
				Minutes:   30,
				Risk:      detect.RiskMedium,
			},
		}
	}
	return []template{
		{
			Type: TypeScopedState,
			Code: `// cache.js
const cache = buildCache();
export function getCache() { return cache; }`,
			Reasoning: "Module-scoped state replaces the global-object property; consumers import it and the lifetime stays visible.",
			Minutes:   25,
			Risk:      detect.RiskLow,
		},
	}
}
