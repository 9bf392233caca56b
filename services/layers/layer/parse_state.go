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
	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// ParseState holds at most one tree: the most recent parse of a layer.
//
// The zero value is the empty state of a layer that has never parsed.
type ParseState struct {
	tree *engine.Tree
}

// NewParseState wraps tree. The state takes ownership of it.
func NewParseState(tree *engine.Tree) ParseState {
	return ParseState{tree: tree}
}

// Tree returns the tree, or nil for the empty state.
func (s ParseState) Tree() *engine.Tree {
	return s.tree
}

// IsEmpty reports whether the state holds no tree.
func (s ParseState) IsEmpty() bool {
	return s.tree == nil
}

// ApplyEdit shifts the tree's offsets for edit. It does not reparse.
func (s ParseState) ApplyEdit(edit ranges.InputEdit) {
	if s.tree != nil {
		s.tree.Edit(edit)
	}
}

// RootRange returns the span of the root node.
func (s ParseState) RootRange() (ranges.Range, bool) {
	if s.tree == nil {
		return ranges.Range{}, false
	}
	return s.tree.RootRange(), true
}

// Copy returns a state holding an independent clone of the tree.
func (s ParseState) Copy() ParseState {
	if s.tree == nil {
		return ParseState{}
	}
	return ParseState{tree: s.tree.Clone()}
}

// Close releases the tree.
func (s ParseState) Close() {
	s.tree.Close()
}

// Diff returns the ranges that changed between old and newer.
//
// Description:
//
//	With both trees present the engine's structural diff is returned; old
//	must be the edited tree newer was parsed from. An empty old state
//	reports the whole root span of newer. An empty newer state reports
//	nothing; a layer losing its tree is reported through retirement, not
//	through a diff.
func Diff(old, newer ParseState) []ranges.Range {
	switch {
	case newer.tree == nil:
		return nil
	case old.tree == nil:
		return []ranges.Range{newer.tree.RootRange()}
	default:
		return old.tree.ChangedRanges(newer.tree)
	}
}
