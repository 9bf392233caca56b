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
	"fmt"
	"sort"
)

// Locator converts between byte offsets and points for one fixed text.
//
// Description:
//
//	Locator indexes the start offset of every line once, then answers
//	lookups with a binary search. Columns are byte columns, which is what
//	the parsing engine expects.
//
// Thread Safety:
//
//	A Locator is immutable after construction and safe for concurrent use.
type Locator struct {
	lineStarts []uint
	length     uint
}

// NewLocator indexes the line starts of text.
func NewLocator(text string) *Locator {
	starts := []uint{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, uint(i+1))
		}
	}
	return &Locator{lineStarts: starts, length: uint(len(text))}
}

// Len returns the length of the indexed text in bytes.
func (l *Locator) Len() uint {
	return l.length
}

// Point returns the point of offset. offset may equal Len.
func (l *Locator) Point(offset uint) (Point, error) {
	if offset > l.length {
		return Point{}, fmt.Errorf("%w: %d > %d", ErrOffsetOutOfBounds, offset, l.length)
	}
	row := sort.Search(len(l.lineStarts), func(i int) bool {
		return l.lineStarts[i] > offset
	}) - 1
	return Point{Row: uint(row), Column: offset - l.lineStarts[row]}, nil
}

// Offset returns the byte offset of p, clamping the column to the line end.
func (l *Locator) Offset(p Point) (uint, error) {
	if p.Row >= uint(len(l.lineStarts)) {
		return 0, fmt.Errorf("%w: row %d of %d", ErrOffsetOutOfBounds, p.Row, len(l.lineStarts))
	}
	start := l.lineStarts[p.Row]
	end := l.length
	if int(p.Row)+1 < len(l.lineStarts) {
		end = l.lineStarts[p.Row+1]
	}
	return min(start+p.Column, end), nil
}

// Range builds a dual-coordinate range for a byte span.
func (l *Locator) Range(r ByteRange) (Range, error) {
	start, err := l.Point(r.Start)
	if err != nil {
		return Range{}, err
	}
	end, err := l.Point(r.End)
	if err != nil {
		return Range{}, err
	}
	return Range{Bytes: r, StartPoint: start, EndPoint: end}, nil
}

// Transformer adapts the locator to a LocationTransformer.
func (l *Locator) Transformer() LocationTransformer {
	return func(offset uint) (Point, bool) {
		p, err := l.Point(offset)
		return p, err == nil
	}
}
