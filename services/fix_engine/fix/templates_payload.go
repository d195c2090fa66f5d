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

// payloadTemplates covers the three payload issue kinds; response emission
// additionally offers a streaming rewrite.
func payloadTemplates(issueType string) []template {
	templates := []template{
		{
			Type: TypeFieldSelection,
			Code: `const rows = await User.findAll({
  attributes: ['id', 'name', 'email'],
});`,
			Reasoning: "Select only the fields the caller consumes; payload size stops tracking the table width.",
			Minutes:   20,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypePagination,
			Code: `const page = Number(req.query.page) || 1;
const pageSize = 50;
const rows = await User.findAll({
  limit: pageSize,
  offset: (page - 1) * pageSize,
});`,
			Reasoning: "A limit/offset pair bounds every response regardless of table growth.",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
	}
	if issueType == detect.TypeLargeResponse {
		templates = append(templates, template{
			Type: TypeStreaming,
			Code: `const stream = User.findAllStream({ where: { active: true } });
stream.pipe(JSONStream.stringify()).pipe(res);`,
			Reasoning: "Streaming keeps memory flat for responses that must stay large, at the cost of a streaming dependency.",
			Minutes:   90,
			Risk:      detect.RiskHigh,
		})
	}
	return templates
}
