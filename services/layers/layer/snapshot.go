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
	"sync"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// LayerInfo describes one layer for display and diagnostics.
type LayerInfo struct {
	Language string             `json:"language"`
	Depth    int                `json:"depth"`
	Ranges   []ranges.ByteRange `json:"ranges,omitempty"`
	HasTree  bool               `json:"has_tree"`
	Missing  []string           `json:"missing,omitempty"`
}

// Info describes this layer.
func (l *LanguageLayer) Info() LayerInfo {
	info := LayerInfo{
		Language: l.Name(),
		Depth:    l.depth,
		HasTree:  !l.state.IsEmpty(),
		Missing:  sortedKeys(l.missing),
	}
	if l.restricted {
		info.Ranges = l.RangeSet().Ranges()
	}
	return info
}

// LayerSnapshot is a frozen copy of one layer.
type LayerSnapshot struct {
	info     LayerInfo
	config   *LanguageConfiguration
	state    ParseState
	rangeSet ranges.Set
}

// Info describes the layer as it was when the snapshot was taken.
func (s *LayerSnapshot) Info() LayerInfo {
	return s.info
}

// State returns the copied parse state.
func (s *LayerSnapshot) State() ParseState {
	return s.state
}

// TreeSnapshot is an immutable copy of a whole layer tree.
//
// Description:
//
//	Every tree is cloned, so the snapshot stays valid while the live tree
//	keeps being edited. Language configurations are shared, not copied.
//
// Thread Safety:
//
//	Safe to query from multiple goroutines; each query gets its own
//	cursor. Close must not race with open cursors.
type TreeSnapshot struct {
	layers     []*LayerSnapshot
	matchLimit uint

	mu     sync.Mutex
	closed bool
}

// Snapshot copies this layer and every descendant.
func (l *LanguageLayer) Snapshot() *TreeSnapshot {
	return l.SnapshotIn(ranges.All())
}

// SnapshotIn copies this layer and the descendants whose range set
// intersects region.
func (l *LanguageLayer) SnapshotIn(region ranges.Set) *TreeSnapshot {
	snap := &TreeSnapshot{matchLimit: l.settings.matchLimit}
	l.snapshotInto(snap, region)
	return snap
}

func (l *LanguageLayer) snapshotInto(snap *TreeSnapshot, region ranges.Set) {
	rangeSet := l.RangeSet()
	if l.depth > 0 && !rangeSet.IntersectsSet(region) {
		return
	}
	snap.layers = append(snap.layers, &LayerSnapshot{
		info:     l.Info(),
		config:   l.config,
		state:    l.state.Copy(),
		rangeSet: rangeSet,
	})
	for _, child := range l.Children() {
		child.snapshotInto(snap, region)
	}
}

// Layers returns the copied layers in pre-order.
func (s *TreeSnapshot) Layers() []*LayerSnapshot {
	return s.layers
}

// Infos describes the copied layers in pre-order.
func (s *TreeSnapshot) Infos() []LayerInfo {
	out := make([]LayerInfo, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.info
	}
	return out
}

// ExecuteQuery runs the kind query across the snapshot. It behaves like
// LanguageLayer.ExecuteQuery.
func (s *TreeSnapshot) ExecuteQuery(kind QueryKind, region ranges.Set) (*LayeredCursor, error) {
	return s.executeQuery(kind, region, false)
}

// ExecuteQueryPartial runs the kind query in every layer that defines it
// and skips the others instead of failing. Tools use it for optional
// kinds such as tags, which few languages ship.
func (s *TreeSnapshot) ExecuteQueryPartial(kind QueryKind, region ranges.Set) (*LayeredCursor, error) {
	return s.executeQuery(kind, region, true)
}

func (s *TreeSnapshot) executeQuery(kind QueryKind, region ranges.Set, partial bool) (*LayeredCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var targets []queryTarget
	for _, l := range s.layers {
		if l.state.IsEmpty() {
			continue
		}
		t, err := targetFor(l.config, l.info.Depth, l.state.Tree(), l.rangeSet, kind, region, partial)
		if err != nil {
			return nil, err
		}
		if t != nil {
			targets = append(targets, *t)
		}
	}
	return newLayeredCursor(kind, targets, region, s.matchLimit, nil), nil
}

// Close releases the copied trees.
func (s *TreeSnapshot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, l := range s.layers {
		l.state.Close()
	}
}

// ExecuteQueryOwned runs the query and transfers ownership of the snapshot
// to the cursor, which closes it on Close.
func (s *TreeSnapshot) ExecuteQueryOwned(kind QueryKind, region ranges.Set) (*LayeredCursor, error) {
	cursor, err := s.ExecuteQuery(kind, region)
	if err != nil {
		s.Close()
		return nil, err
	}
	cursor.onClose = s.Close
	return cursor, nil
}
