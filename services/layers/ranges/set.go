// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranges

import (
	"slices"
	"strings"
)

// Set is a normalized set of byte offsets.
//
// Description:
//
//	The set is stored as sorted, non-overlapping, non-adjacent, non-empty
//	byte ranges. Adjacent ranges are coalesced, so a Set built from 0..<3
//	and 3..<5 holds the single range 0..<5. The zero value is the empty set.
//
// Thread Safety:
//
//	Set values are immutable once built. Every operation returns a new Set,
//	so a Set may be shared freely between goroutines.
type Set struct {
	ranges []ByteRange
}

// NewSet builds a normalized set from arbitrary ranges.
func NewSet(rs ...ByteRange) Set {
	return Set{ranges: normalize(rs)}
}

// SetOf builds a set covering the byte spans of rs.
func SetOf(rs []Range) Set {
	brs := make([]ByteRange, 0, len(rs))
	for _, r := range rs {
		brs = append(brs, r.Bytes)
	}
	return NewSet(brs...)
}

// All returns the unbounded set covering every offset.
func All() Set {
	return NewSet(ByteRange{Start: 0, End: MaxOffset})
}

func normalize(rs []ByteRange) []ByteRange {
	out := make([]ByteRange, 0, len(rs))
	for _, r := range rs {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	if len(out) < 2 {
		return out
	}

	slices.SortFunc(out, func(a, b ByteRange) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		if a.End < b.End {
			return -1
		}
		if a.End > b.End {
			return 1
		}
		return 0
	})

	merged := out[:1]
	for _, r := range out[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// IsEmpty reports whether the set holds no offsets.
func (s Set) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Ranges returns a copy of the contiguous ranges in ascending order.
func (s Set) Ranges() []ByteRange {
	return slices.Clone(s.ranges)
}

// Count returns the number of bytes in the set.
func (s Set) Count() uint {
	var n uint
	for _, r := range s.ranges {
		n += r.Len()
	}
	return n
}

// Span returns the smallest range covering the whole set.
func (s Set) Span() (ByteRange, bool) {
	if s.IsEmpty() {
		return ByteRange{}, false
	}
	return ByteRange{Start: s.ranges[0].Start, End: s.ranges[len(s.ranges)-1].End}, true
}

// Contains reports whether offset is in the set.
func (s Set) Contains(offset uint) bool {
	i := s.search(offset)
	return i < len(s.ranges) && s.ranges[i].Contains(offset)
}

// ContainsRange reports whether every byte of r is in the set.
//
// An empty r is contained when its position lies within, or on the end
// boundary of, a member range.
func (s Set) ContainsRange(r ByteRange) bool {
	for _, m := range s.ranges {
		if m.ContainsRange(r) {
			return true
		}
		if m.Start > r.End {
			break
		}
	}
	return false
}

// Intersects reports whether r shares at least one byte with the set.
func (s Set) Intersects(r ByteRange) bool {
	if r.IsEmpty() {
		return false
	}
	for _, m := range s.ranges[s.search(r.Start):] {
		if m.Start >= r.End {
			return false
		}
		if m.Intersects(r) {
			return true
		}
	}
	return false
}

// IntersectsSet reports whether the two sets overlap.
func (s Set) IntersectsSet(o Set) bool {
	return !s.Intersection(o).IsEmpty()
}

// search returns the index of the first range whose End is past offset.
func (s Set) search(offset uint) int {
	i, _ := slices.BinarySearchFunc(s.ranges, offset, func(r ByteRange, off uint) int {
		if r.End <= off {
			return -1
		}
		return 1
	})
	return i
}

// Union returns every offset in either set.
func (s Set) Union(o Set) Set {
	if s.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return s
	}
	all := make([]ByteRange, 0, len(s.ranges)+len(o.ranges))
	all = append(all, s.ranges...)
	all = append(all, o.ranges...)
	return Set{ranges: normalize(all)}
}

// Insert returns the set with r added.
func (s Set) Insert(r ByteRange) Set {
	return s.Union(NewSet(r))
}

// Intersection returns the offsets present in both sets.
func (s Set) Intersection(o Set) Set {
	var out []ByteRange
	i, j := 0, 0
	for i < len(s.ranges) && j < len(o.ranges) {
		a, b := s.ranges[i], o.ranges[j]
		if r, ok := a.Intersection(b); ok {
			out = append(out, r)
		}
		if a.End < b.End {
			i++
		} else {
			j++
		}
	}
	return Set{ranges: out}
}

// Subtract returns the offsets of s that are not in o.
func (s Set) Subtract(o Set) Set {
	if s.IsEmpty() || o.IsEmpty() {
		return s
	}
	var out []ByteRange
	j := 0
	for _, r := range s.ranges {
		cur := r
		for j < len(o.ranges) && o.ranges[j].End <= cur.Start {
			j++
		}
		k := j
		for k < len(o.ranges) && o.ranges[k].Start < cur.End {
			cut := o.ranges[k]
			if cut.Start > cur.Start {
				out = append(out, ByteRange{Start: cur.Start, End: cut.Start})
			}
			cur.Start = max(cur.Start, cut.End)
			if cur.Start >= cur.End {
				break
			}
			k++
		}
		if cur.Start < cur.End {
			out = append(out, cur)
		}
	}
	return Set{ranges: out}
}

// Equal reports whether two sets cover the same offsets.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s.ranges, o.ranges)
}

// Shift moves every range through edit with the same rule as Range.Shift.
func (s Set) Shift(edit InputEdit) Set {
	if s.IsEmpty() {
		return s
	}
	shifted := make([]ByteRange, 0, len(s.ranges))
	for _, r := range s.ranges {
		shifted = append(shifted, Range{Bytes: r}.Shift(edit).Bytes)
	}
	return Set{ranges: normalize(shifted)}
}

func (s Set) String() string {
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		parts = append(parts, r.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
