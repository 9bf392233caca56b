// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import (
	"errors"

	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// Querier runs layered queries. Live layer trees and snapshots implement it.
type Querier interface {
	ExecuteQuery(kind QueryKind, region ranges.Set) (*LayeredCursor, error)
}

// CollectHighlights runs the highlights query over region and interprets
// the allowed matches.
//
// Description:
//
//	When every consulted layer has a locals query, its results feed the
//	"local" group so that is-not? local predicates see scope information.
//	Without locals the group is empty and such predicates pass.
//
// Outputs:
//
//	[]NamedRange - Highlights ordered as by HighlightsOf.
//	error        - *QueryUnavailableError if a layer lacks highlights.
func CollectHighlights(q Querier, region ranges.Set, text predicate.TextProvider) ([]NamedRange, error) {
	pctx := predicate.NewContext(text, nil)

	membership, err := localMembership(q, region, pctx)
	if err != nil {
		return nil, err
	}

	cursor, err := q.ExecuteQuery(Highlights, region)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	cursor.Resolve(pctx.WithMembership(membership))
	return HighlightsOf(cursor.Collect()), nil
}

// localMembership builds the "local" group from the locals query, or
// returns nil if some layer has no locals query.
func localMembership(q Querier, region ranges.Set, pctx *predicate.Context) (predicate.GroupMembershipProvider, error) {
	cursor, err := q.ExecuteQuery(Locals, region)
	if errors.Is(err, ErrQueryUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	cursor.Resolve(pctx)
	return ScopeMembership(LocalsOf(cursor.Collect()), pctx.TextProvider()), nil
}

// Highlights runs CollectHighlights on the live tree.
func (l *LanguageLayer) Highlights(region ranges.Set, text predicate.TextProvider) ([]NamedRange, error) {
	return CollectHighlights(l, region, text)
}

// Highlights runs CollectHighlights on the snapshot.
func (s *TreeSnapshot) Highlights(region ranges.Set, text predicate.TextProvider) ([]NamedRange, error) {
	return CollectHighlights(s, region, text)
}
