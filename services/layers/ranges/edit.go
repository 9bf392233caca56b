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

import "fmt"

// LocationTransformer maps an absolute byte offset in the current text to a
// row/column point. It returns false when the offset cannot be located.
//
// Implementations must be safe to call repeatedly and must not mutate the
// text they read from.
type LocationTransformer func(offset uint) (Point, bool)

// InputEdit describes one text replacement in both coordinate systems.
//
// StartByte..OldEndByte is the replaced span in the old text and
// StartByte..NewEndByte is the replacement in the new text.
type InputEdit struct {
	StartByte   uint
	OldEndByte  uint
	NewEndByte  uint
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

// NewInputEdit builds an edit from the replaced span and the length delta.
//
// Description:
//
//	affected is the span of the old text that was replaced. The new end is
//	affected.End + delta. transformer runs against the new text, so it
//	supplies the start and new end points; oldEndPoint must be captured by
//	the caller before the text changed. A nil transformer, or one that
//	cannot locate an offset, leaves the corresponding point at zero.
//
// Inputs:
//
//	affected    - Replaced span in old-text offsets.
//	delta       - New length minus old length of the replaced span.
//	oldEndPoint - Point of affected.End in the old text.
//	transformer - Offset to point mapping over the new text. May be nil.
//
// Outputs:
//
//	InputEdit - The edit descriptor.
//	error     - Non-nil if delta would move the new end before the start.
//
// Example:
//
//	// "abc" -> "abXYc": replace the empty span at 2 with "XY"
//	edit, err := ranges.NewInputEdit(ranges.ByteRange{Start: 2, End: 2}, 2, oldEnd, loc.Transformer())
func NewInputEdit(affected ByteRange, delta int, oldEndPoint Point, transformer LocationTransformer) (InputEdit, error) {
	newEnd := int(affected.End) + delta
	if newEnd < int(affected.Start) {
		return InputEdit{}, fmt.Errorf("%w: delta %d moves end before start %d", ErrInvalidEdit, delta, affected.Start)
	}

	edit := InputEdit{
		StartByte:   affected.Start,
		OldEndByte:  affected.End,
		NewEndByte:  uint(newEnd),
		OldEndPoint: oldEndPoint,
	}

	if transformer != nil {
		if p, ok := transformer(edit.StartByte); ok {
			edit.StartPoint = p
		}
		if p, ok := transformer(edit.NewEndByte); ok {
			edit.NewEndPoint = p
		}
	}

	return edit, nil
}

// Delta returns the signed change in length.
func (e InputEdit) Delta() int {
	return int(e.NewEndByte) - int(e.OldEndByte)
}

// NewSpan returns the span the replacement text occupies after the edit.
func (e InputEdit) NewSpan() ByteRange {
	return ByteRange{Start: e.StartByte, End: e.NewEndByte}
}

// OldSpan returns the span the replaced text occupied before the edit.
func (e InputEdit) OldSpan() ByteRange {
	return ByteRange{Start: e.StartByte, End: e.OldEndByte}
}

// AffectedSet returns the bytes an edit touches in new-text offsets.
//
// A pure deletion covers the single byte at the edit point, if any, so the
// caller still rescans the seam.
func (e InputEdit) AffectedSet() Set {
	span := e.NewSpan()
	if span.IsEmpty() {
		span.End = span.Start + 1
	}
	return NewSet(span)
}
