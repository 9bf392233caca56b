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
	"fmt"
	"iter"
	"strings"

	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// QueryCapture is one captured node, annotated with its layer.
type QueryCapture struct {
	Node  engine.Node
	Index uint32

	// Name is the capture name without the leading '@'.
	Name string

	// NameComponents is Name split on '.'.
	NameComponents []string

	Range ranges.Range

	// Metadata holds set! directives that name this capture.
	Metadata map[string]string

	PatternIndex uint
	Depth        int
	Language     string
}

// QueryMatch is one pattern match, annotated with its layer.
type QueryMatch struct {
	PatternIndex uint
	Captures     []QueryCapture
	Predicates   []predicate.Predicate

	// Metadata holds set! directives that name no capture.
	Metadata map[string]string

	Depth    int
	Language string
}

// Span returns the smallest byte range covering every capture.
func (m QueryMatch) Span() (ranges.ByteRange, bool) {
	if len(m.Captures) == 0 {
		return ranges.ByteRange{}, false
	}
	span := m.Captures[0].Range.Bytes
	for _, c := range m.Captures[1:] {
		span = span.Union(c.Range.Bytes)
	}
	return span, true
}

// CapturesNamed returns the captures called name.
func (m QueryMatch) CapturesNamed(name string) []QueryCapture {
	var out []QueryCapture
	for _, c := range m.Captures {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Allowed evaluates the match's predicates against ctx.
func (m QueryMatch) Allowed(ctx *predicate.Context) bool {
	if len(m.Predicates) == 0 {
		return true
	}
	captures := make([]predicate.Capture, len(m.Captures))
	for i, c := range m.Captures {
		captures[i] = predicate.Capture{Name: c.Name, Range: c.Range}
	}
	return predicate.Allows(m.Predicates, captures, ctx)
}

// queryTarget is one layer's contribution to a layered query.
type queryTarget struct {
	language string
	depth    int
	tree     *engine.Tree
	query    *engine.Query
	rangeSet ranges.Set
}

// LayeredCursor yields the matches of one query kind across a layer tree.
//
// Description:
//
//	Layers are visited in pre-order, so a parent's matches precede its
//	children's. Each layer runs over the intersection of its range set with
//	the cursor's region, one engine cursor per contiguous range. A match
//	extending past the region grows the region, so later layers also cover
//	the bytes that match touched.
//
//	Without Resolve every raw match is produced with its predicates
//	attached but not applied.
//
// Thread Safety:
//
//	NOT safe for concurrent use. The trees it reads must not be edited or
//	reparsed until the cursor is closed; cursors obtained from a Snapshot
//	have no such restriction.
type LayeredCursor struct {
	kind       QueryKind
	targets    []queryTarget
	region     ranges.Set
	matchLimit uint
	filter     *predicate.Context
	onClose    func()

	next    int
	current *queryTarget
	windows []ranges.ByteRange
	matches *engine.Matches
	seen    map[string]struct{}
	closed  bool
}

func newLayeredCursor(kind QueryKind, targets []queryTarget, region ranges.Set, matchLimit uint, onClose func()) *LayeredCursor {
	return &LayeredCursor{
		kind:       kind,
		targets:    targets,
		region:     region,
		matchLimit: matchLimit,
		onClose:    onClose,
	}
}

// Resolve makes the cursor drop matches whose predicates fail against ctx.
// It returns the cursor for chaining.
func (c *LayeredCursor) Resolve(ctx *predicate.Context) *LayeredCursor {
	c.filter = ctx
	return c
}

// Region returns the region covered so far, including growth from matches
// already produced.
func (c *LayeredCursor) Region() ranges.Set {
	return c.region
}

// Next returns the next match, or false once every layer is exhausted.
func (c *LayeredCursor) Next() (QueryMatch, bool) {
	for !c.closed {
		if c.matches != nil {
			raw, ok := c.matches.Next()
			if !ok {
				c.matches.Close()
				c.matches = nil
				continue
			}

			m := c.convert(raw)
			if c.duplicate(m) {
				continue
			}
			if span, ok := m.Span(); ok {
				c.region = c.region.Insert(span)
			}
			if c.filter != nil && !m.Allowed(c.filter) {
				continue
			}
			recordQueryMatch(m.Language, c.kind)
			return m, true
		}

		if len(c.windows) > 0 {
			window := c.windows[0]
			c.windows = c.windows[1:]
			c.matches = c.current.query.Execute(c.current.tree, window, engine.WithMatchLimit(c.matchLimit))
			continue
		}

		if c.next >= len(c.targets) {
			return QueryMatch{}, false
		}
		c.current = &c.targets[c.next]
		c.next++
		c.windows = c.current.rangeSet.Intersection(c.region).Ranges()
		c.seen = nil
		if len(c.windows) > 1 {
			c.seen = make(map[string]struct{})
		}
	}
	return QueryMatch{}, false
}

// All returns an iterator over the remaining matches.
func (c *LayeredCursor) All() iter.Seq[QueryMatch] {
	return func(yield func(QueryMatch) bool) {
		for {
			m, ok := c.Next()
			if !ok || !yield(m) {
				return
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (c *LayeredCursor) Collect() []QueryMatch {
	var out []QueryMatch
	for m := range c.All() {
		out = append(out, m)
	}
	return out
}

// Close releases the cursor. Nodes from produced matches must not be used
// after closing a snapshot cursor.
func (c *LayeredCursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.matches.Close()
	c.matches = nil
	if c.onClose != nil {
		c.onClose()
		c.onClose = nil
	}
}

// duplicate reports whether m was already produced from another window of
// the current layer.
func (c *LayeredCursor) duplicate(m QueryMatch) bool {
	if c.seen == nil {
		return false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d", m.PatternIndex)
	for _, capture := range m.Captures {
		fmt.Fprintf(&b, ":%d@%d-%d", capture.Index, capture.Range.Bytes.Start, capture.Range.Bytes.End)
	}
	key := b.String()
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}

func (c *LayeredCursor) convert(raw engine.RawMatch) QueryMatch {
	t := c.current
	preds := t.query.Predicates(raw.PatternIndex)

	m := QueryMatch{
		PatternIndex: raw.PatternIndex,
		Captures:     make([]QueryCapture, 0, len(raw.Captures)),
		Predicates:   preds,
		Metadata:     predicate.Directives(preds, ""),
		Depth:        t.depth,
		Language:     t.language,
	}
	for _, rc := range raw.Captures {
		name := t.query.CaptureName(rc.Index)
		m.Captures = append(m.Captures, QueryCapture{
			Node:           rc.Node,
			Index:          rc.Index,
			Name:           name,
			NameComponents: strings.Split(name, "."),
			Range:          rc.Node.Range(),
			Metadata:       predicate.Directives(preds, name),
			PatternIndex:   raw.PatternIndex,
			Depth:          t.depth,
			Language:       t.language,
		})
	}
	return m
}

// ExecuteQuery runs the kind query across this layer and its descendants.
//
// Description:
//
//	Every layer with a tree whose range set intersects region must have a
//	query of kind; layers reached only because a match grew the region are
//	skipped when they lack one. The cursor reads the live trees: close it
//	before the next edit.
//
// Inputs:
//
//	kind   - The query kind.
//	region - Bytes to query. Use ranges.All() for the whole document.
//
// Outputs:
//
//	*LayeredCursor - The cursor. Close it when done.
//	error          - *QueryUnavailableError, or ErrClosed.
func (l *LanguageLayer) ExecuteQuery(kind QueryKind, region ranges.Set) (*LayeredCursor, error) {
	if l.closed {
		return nil, ErrClosed
	}

	var targets []queryTarget
	for _, layer := range l.Layers() {
		if layer.state.IsEmpty() {
			continue
		}
		t, err := targetFor(layer.config, layer.depth, layer.state.Tree(), layer.RangeSet(), kind, region, false)
		if err != nil {
			return nil, err
		}
		if t != nil {
			targets = append(targets, *t)
		}
	}
	return newLayeredCursor(kind, targets, region, l.settings.matchLimit, nil), nil
}

// targetFor builds one layer's query target. It returns nil for a layer
// that lacks the query but lies outside region, or for any layer lacking
// it when partial is set.
func targetFor(cfg *LanguageConfiguration, depth int, tree *engine.Tree, rangeSet ranges.Set, kind QueryKind, region ranges.Set, partial bool) (*queryTarget, error) {
	query, ok := cfg.Query(kind)
	if !ok {
		if !partial && rangeSet.IntersectsSet(region) {
			return nil, &QueryUnavailableError{Layer: cfg.Name, Kind: kind}
		}
		return nil, nil
	}
	return &queryTarget{
		language: cfg.Name,
		depth:    depth,
		tree:     tree,
		query:    query,
		rangeSet: rangeSet,
	}, nil
}
