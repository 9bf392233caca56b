// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// Tree is an owned syntax tree.
//
// Thread Safety:
//
//	A Tree must not be edited while another goroutine reads it. Clone is
//	cheap (the runtime shares structure) and returns an independent tree
//	that may be handed to another goroutine.
type Tree struct {
	inner *sitter.Tree
}

// Edit shifts the tree's node positions for a text edit. It does not
// reparse.
func (t *Tree) Edit(edit ranges.InputEdit) {
	e := sitter.InputEdit{
		StartByte:      edit.StartByte,
		OldEndByte:     edit.OldEndByte,
		NewEndByte:     edit.NewEndByte,
		StartPosition:  toPoint(edit.StartPoint),
		OldEndPosition: toPoint(edit.OldEndPoint),
		NewEndPosition: toPoint(edit.NewEndPoint),
	}
	t.inner.Edit(&e)
}

// ChangedRanges returns the ranges whose structure differs between t, an
// edited tree, and newer, the tree parsed from it.
func (t *Tree) ChangedRanges(newer *Tree) []ranges.Range {
	raw := t.inner.ChangedRanges(newer.inner)
	out := make([]ranges.Range, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromRange(r))
	}
	return out
}

// RootNode returns the root of the tree.
func (t *Tree) RootNode() Node {
	return Node{inner: *t.inner.RootNode()}
}

// RootRange returns the span of the root node.
func (t *Tree) RootRange() ranges.Range {
	return t.RootNode().Range()
}

// IncludedRanges returns the ranges the tree was parsed from.
func (t *Tree) IncludedRanges() []ranges.Range {
	raw := t.inner.IncludedRanges()
	out := make([]ranges.Range, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromRange(r))
	}
	return out
}

// Clone returns an independent copy sharing structure with t.
func (t *Tree) Clone() *Tree {
	return &Tree{inner: t.inner.Clone()}
}

// Close releases the tree. Close on a nil tree is a no-op.
func (t *Tree) Close() {
	if t == nil || t.inner == nil {
		return
	}
	t.inner.Close()
	t.inner = nil
}

// Node is a syntax node. It is valid only while its tree is open.
type Node struct {
	inner sitter.Node
}

// Range returns the node span in both coordinate systems.
func (n Node) Range() ranges.Range {
	return fromRange(n.inner.Range())
}

// Kind returns the grammar node type, e.g. "call_expression".
func (n Node) Kind() string {
	return n.inner.Kind()
}

// IsNamed reports whether the node is a named grammar node.
func (n Node) IsNamed() bool {
	return n.inner.IsNamed()
}

// HasError reports whether the node or a descendant is a syntax error.
func (n Node) HasError() bool {
	return n.inner.HasError()
}

// String returns the node as an S-expression.
func (n Node) String() string {
	return n.inner.ToSexp()
}

func toPoint(p ranges.Point) sitter.Point {
	return sitter.Point{Row: p.Row, Column: p.Column}
}

func fromPoint(p sitter.Point) ranges.Point {
	return ranges.Point{Row: p.Row, Column: p.Column}
}

func toRange(r ranges.Range) sitter.Range {
	return sitter.Range{
		StartByte:  r.Bytes.Start,
		EndByte:    r.Bytes.End,
		StartPoint: toPoint(r.StartPoint),
		EndPoint:   toPoint(r.EndPoint),
	}
}

func fromRange(r sitter.Range) ranges.Range {
	return ranges.Range{
		Bytes:      ranges.ByteRange{Start: r.StartByte, End: r.EndByte},
		StartPoint: fromPoint(r.StartPoint),
		EndPoint:   fromPoint(r.EndPoint),
	}
}
