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

func filterThenMapTemplates() []template {
	return []template{
		{
			Type: TypeCombinedIteration,
			Code: `const names = users.reduce((acc, u) => {
  if (u.active) acc.push(u.name);
  return acc;
}, []);`,
			Reasoning: "One reduce pass does the filtering and the projection together, skipping the intermediate array.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeMapTransform,
			Code: `const names = [];
for (const u of users) {
  if (u.active) names.push(u.name);
}`,
			Reasoning: "A plain for-of loop expresses the same single pass without callback overhead.",
			Minutes:   10,
			Risk:      detect.RiskLow,
		},
	}
}

func indexedLookupTemplates() []template {
	return []template{
		{
			Type: TypeIndexedLookup,
			Code: `const byId = new Map(users.map(u => [u.id, u]));
const joined = orders.map(o => ({ ...o, user: byId.get(o.userId) }));`,
			Reasoning: "Index the inner collection once; each outer element then joins in O(1) instead of a linear scan.",
			Minutes:   20,
			Risk:      detect.RiskLow,
		},
	}
}

func pushInLoopTemplates() []template {
	return []template{
		{
			Type: TypeMapTransform,
			Code: `const out = xs.map(x => transform(x));`,
			Reasoning: "map expresses the element-wise construction in one declaration and lets the engine presize the result.",
			Minutes:   10,
			Risk:      detect.RiskLow,
		},
	}
}

func domMutationTemplates() []template {
	return []template{
		{
			Type: TypeDocumentFragment,
			Code: `const fragment = document.createDocumentFragment();
for (const item of items) {
  const li = document.createElement('li');
  li.textContent = item.name;
  fragment.appendChild(li);
}
list.appendChild(fragment);`,
			Reasoning: "Build the subtree in a detached fragment and attach it once, triggering a single reflow.",
			Minutes:   25,
			Risk:      detect.RiskLow,
		},
	}
}

func awaitInLoopTemplates() []template {
	return []template{
		{
			Type: TypePromiseAll,
			Code: `const results = await Promise.all(items.map(item => step(item)));`,
			Reasoning: "Start every asynchronous operation before waiting; total latency drops from the sum to the maximum.",
			Minutes:   20,
			Risk:      detect.RiskMedium,
		},
	}
}

func stringConcatTemplates() []template {
	return []template{
		{
			Type: TypeStringJoin,
			Code: `const html = rows.map(row => '<li>' + row.name + '</li>').join('');`,
			Reasoning: "Collect the parts and join once; no quadratic re-copying of the accumulated string.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
	}
}

func regexInLoopTemplates() []template {
	return []template{
		{
			Type: TypeHoistedRegex,
			Code: `const re = new RegExp(pattern);
for (const line of lines) {
  if (re.test(line)) keep(line);
}`,
			Reasoning: "Compile the pattern once above the loop and reuse it every iteration.",
			Minutes:   10,
			Risk:      detect.RiskLow,
		},
	}
}

func jsonInLoopTemplates() []template {
	return []template{
		{
			Type: TypeHoistedJSON,
			Code: `const encoded = JSON.stringify(payload);
for (const target of targets) {
  send(target, encoded);
}`,
			Reasoning: "Serialize once outside the loop when the value does not change per iteration.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
	}
}

func nestedLoopsTemplates() []template {
	return []template{
		{
			Type: TypeIndexedLookup,
			Code: `const byKey = new Map(ys.map(y => [y.key, y]));
for (const x of xs) {
  const y = byKey.get(x.key);
  if (y) use(x, y);
}`,
			Reasoning: "Index one side by the join key; the pairing drops from O(n·m) to O(n+m).",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeFlattenedLoops,
			Code: `const pairs = xs.flatMap(x => ys.filter(y => y.key === x.key).map(y => [x, y]));`,
			Reasoning: "Flattening makes the traversal explicit and isolates the hot pairing for later indexing.",
			Minutes:   30,
			Risk:      detect.RiskMedium,
		},
	}
}

func syncIOTemplates() []template {
	return []template{
		{
			Type: TypeAsyncIO,
			Code: `const contents = await Promise.all(paths.map(p => fs.promises.readFile(p)));`,
			Reasoning: "The promise-based fs API keeps the event loop free and overlaps the disk waits.",
			Minutes:   25,
			Risk:      detect.RiskMedium,
		},
	}
}
