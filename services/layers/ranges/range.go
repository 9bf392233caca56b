// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranges holds the byte and row/column coordinate model shared by
// every layer of a document: points, half-open byte ranges, dual-coordinate
// ranges, edit descriptors and a normalized range-set algebra.
//
// All ranges are half-open: [Start, End).
package ranges

import (
	"fmt"
	"math"
)

// MaxOffset is the end offset of an unbounded range.
//
// It matches the engine's default included range, which ends at the largest
// 32-bit offset. Edits never move an end that sits at MaxOffset.
const MaxOffset uint = math.MaxUint32

// Point is a zero-based row/column position. Column counts bytes.
type Point struct {
	Row    uint
	Column uint
}

// Compare orders points by row, then column.
func (p Point) Compare(o Point) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	}
	return 0
}

// add returns p advanced by the extent d.
func (p Point) add(d Point) Point {
	if d.Row > 0 {
		return Point{Row: p.Row + d.Row, Column: d.Column}
	}
	return Point{Row: p.Row, Column: p.Column + d.Column}
}

// sub returns the extent between o and p. p must not precede o.
func (p Point) sub(o Point) Point {
	if p.Row > o.Row {
		return Point{Row: p.Row - o.Row, Column: p.Column}
	}
	if p.Column < o.Column {
		return Point{}
	}
	return Point{Column: p.Column - o.Column}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Column)
}

// ByteRange is a half-open [Start, End) span of byte offsets.
type ByteRange struct {
	Start uint
	End   uint
}

// NewByteRange returns [start, end), swapping the bounds if reversed.
func NewByteRange(start, end uint) ByteRange {
	if end < start {
		start, end = end, start
	}
	return ByteRange{Start: start, End: end}
}

// Len returns the number of bytes covered.
func (r ByteRange) Len() uint {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// IsEmpty reports whether the range covers no bytes.
func (r ByteRange) IsEmpty() bool {
	return r.End <= r.Start
}

// Contains reports whether offset lies inside the range.
func (r ByteRange) Contains(offset uint) bool {
	return offset >= r.Start && offset < r.End
}

// ContainsRange reports whether o lies entirely inside r.
//
// An empty o is contained when its position lies within [Start, End].
func (r ByteRange) ContainsRange(o ByteRange) bool {
	if o.IsEmpty() {
		return o.Start >= r.Start && o.Start <= r.End
	}
	return o.Start >= r.Start && o.End <= r.End
}

// Intersects reports whether the two ranges share at least one byte.
func (r ByteRange) Intersects(o ByteRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Intersection returns the overlap of r and o and whether it is non-empty.
func (r ByteRange) Intersection(o ByteRange) (ByteRange, bool) {
	start := max(r.Start, o.Start)
	end := min(r.End, o.End)
	if end <= start {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

// Union returns the smallest range covering both r and o.
func (r ByteRange) Union(o ByteRange) ByteRange {
	return ByteRange{Start: min(r.Start, o.Start), End: max(r.End, o.End)}
}

func (r ByteRange) String() string {
	if r.End == MaxOffset {
		return fmt.Sprintf("%d..<max", r.Start)
	}
	return fmt.Sprintf("%d..<%d", r.Start, r.End)
}

// Range describes one span in both coordinate systems.
type Range struct {
	Bytes      ByteRange
	StartPoint Point
	EndPoint   Point
}

// Everything returns the unbounded range used for "whole document".
func Everything() Range {
	return Range{
		Bytes:    ByteRange{Start: 0, End: MaxOffset},
		EndPoint: Point{Row: math.MaxUint32, Column: math.MaxUint32},
	}
}

// StartByte returns the first byte offset.
func (r Range) StartByte() uint { return r.Bytes.Start }

// EndByte returns the exclusive end byte offset.
func (r Range) EndByte() uint { return r.Bytes.End }

// Shift applies edit to r using the engine's included-range rule.
//
// Description:
//
//	Bounds at or after the edit's old end move by the edit's delta. Bounds
//	that fall strictly inside the replaced span collapse onto the edit's
//	start. Bounds before the edit are untouched. An end at MaxOffset stays
//	unbounded.
//
// Outputs:
//
//	Range - The shifted range. It may be empty if the edit swallowed it.
func (r Range) Shift(edit InputEdit) Range {
	out := r

	if r.Bytes.End >= edit.OldEndByte {
		if r.Bytes.End != MaxOffset {
			out.Bytes.End = edit.NewEndByte + (r.Bytes.End - edit.OldEndByte)
			out.EndPoint = edit.NewEndPoint.add(r.EndPoint.sub(edit.OldEndPoint))
		}
	} else if r.Bytes.End > edit.StartByte {
		out.Bytes.End = edit.StartByte
		out.EndPoint = edit.StartPoint
	}

	if r.Bytes.Start >= edit.OldEndByte {
		out.Bytes.Start = edit.NewEndByte + (r.Bytes.Start - edit.OldEndByte)
		out.StartPoint = edit.NewEndPoint.add(r.StartPoint.sub(edit.OldEndPoint))
	} else if r.Bytes.Start > edit.StartByte {
		out.Bytes.Start = edit.StartByte
		out.StartPoint = edit.StartPoint
	}

	return out
}

func (r Range) String() string {
	return fmt.Sprintf("%s %s-%s", r.Bytes, r.StartPoint, r.EndPoint)
}

// ShiftAll applies edit to every range, dropping those left empty.
func ShiftAll(rs []Range, edit InputEdit) []Range {
	out := rs[:0:0]
	for _, r := range rs {
		shifted := r.Shift(edit)
		if shifted.Bytes.IsEmpty() {
			continue
		}
		out = append(out, shifted)
	}
	return out
}
