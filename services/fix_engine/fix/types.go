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

// Solution type identifiers produced by the template catalogs. The
// optimizer additionally emits TypeEvolved for candidates it refined.
const (
	TypeEagerLoading      = "eager_loading"
	TypeBatchQuery        = "batch_query"
	TypeJoinQuery         = "join_query"
	TypeRawSQL            = "raw_sql"
	TypePromiseAll        = "promise_all"
	TypeIndexedLookup     = "indexed_lookup"
	TypeCombinedIteration = "combined_iteration"
	TypeStringJoin        = "string_join"
	TypeAsyncIO           = "async_io"
	TypeHoistedRegex      = "hoisted_regex"
	TypeHoistedJSON       = "hoisted_json"
	TypeDocumentFragment  = "document_fragment"
	TypeMapTransform      = "map_transform"
	TypeFlattenedLoops    = "flattened_loops"
	TypeFieldSelection    = "field_selection"
	TypePagination        = "pagination"
	TypeStreaming         = "streaming"
	TypeCleanupHandler    = "cleanup_handler"
	TypeScopedState       = "scoped_state"
	TypeEvolved           = "evolved"
)
