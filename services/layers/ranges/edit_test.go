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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInputEdit(t *testing.T) {
	oldText := "one\ntwo"
	newText := "one\nt\nXwo"
	oldLoc := NewLocator(oldText)
	newLoc := NewLocator(newText)

	oldEnd, err := oldLoc.Point(6)
	require.NoError(t, err)

	// replace "w" (5..6) with "\nXw" (+2)
	edit, err := NewInputEdit(br(5, 6), 2, oldEnd, newLoc.Transformer())
	require.NoError(t, err)

	assert.Equal(t, uint(5), edit.StartByte)
	assert.Equal(t, uint(6), edit.OldEndByte)
	assert.Equal(t, uint(8), edit.NewEndByte)
	assert.Equal(t, Point{Row: 1, Column: 1}, edit.StartPoint)
	assert.Equal(t, Point{Row: 1, Column: 2}, edit.OldEndPoint)
	assert.Equal(t, Point{Row: 2, Column: 2}, edit.NewEndPoint)
	assert.Equal(t, 2, edit.Delta())
}

func TestNewInputEdit_NilTransformer(t *testing.T) {
	edit, err := NewInputEdit(br(2, 2), 3, Point{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Point{}, edit.StartPoint)
	assert.Equal(t, Point{}, edit.NewEndPoint)
	assert.Equal(t, br(2, 5), edit.NewSpan())
}

func TestNewInputEdit_InvalidDelta(t *testing.T) {
	_, err := NewInputEdit(br(2, 4), -3, Point{}, nil)
	assert.ErrorIs(t, err, ErrInvalidEdit)
}

func TestInputEdit_AffectedSet(t *testing.T) {
	del := InputEdit{StartByte: 3, OldEndByte: 6, NewEndByte: 3}
	assert.Equal(t, []ByteRange{br(3, 4)}, del.AffectedSet().Ranges())

	ins := InputEdit{StartByte: 3, OldEndByte: 3, NewEndByte: 6}
	assert.Equal(t, []ByteRange{br(3, 6)}, ins.AffectedSet().Ranges())
}

func TestRange_Shift(t *testing.T) {
	r := Range{
		Bytes:      br(10, 20),
		StartPoint: Point{Row: 1, Column: 2},
		EndPoint:   Point{Row: 1, Column: 12},
	}

	t.Run("edit before moves both bounds", func(t *testing.T) {
		edit := InputEdit{
			StartByte: 0, OldEndByte: 0, NewEndByte: 4,
			NewEndPoint: Point{Row: 1, Column: 0},
		}
		got := r.Shift(edit)
		assert.Equal(t, br(14, 24), got.Bytes)
		assert.Equal(t, Point{Row: 2, Column: 2}, got.StartPoint)
		assert.Equal(t, Point{Row: 2, Column: 12}, got.EndPoint)
	})

	t.Run("edit after leaves range", func(t *testing.T) {
		edit := InputEdit{StartByte: 25, OldEndByte: 26, NewEndByte: 30}
		assert.Equal(t, r, r.Shift(edit))
	})

	t.Run("insert inside grows end", func(t *testing.T) {
		edit := InputEdit{
			StartByte: 12, OldEndByte: 12, NewEndByte: 15,
			StartPoint:  Point{Row: 1, Column: 4},
			OldEndPoint: Point{Row: 1, Column: 4},
			NewEndPoint: Point{Row: 1, Column: 7},
		}
		got := r.Shift(edit)
		assert.Equal(t, br(10, 23), got.Bytes)
		assert.Equal(t, Point{Row: 1, Column: 15}, got.EndPoint)
	})

	t.Run("delete over end clamps to edit start", func(t *testing.T) {
		edit := InputEdit{
			StartByte: 15, OldEndByte: 30, NewEndByte: 15,
			StartPoint: Point{Row: 1, Column: 7},
		}
		got := r.Shift(edit)
		assert.Equal(t, br(10, 15), got.Bytes)
		assert.Equal(t, Point{Row: 1, Column: 7}, got.EndPoint)
	})

	t.Run("delete covering range empties it", func(t *testing.T) {
		edit := InputEdit{StartByte: 5, OldEndByte: 25, NewEndByte: 5}
		assert.True(t, r.Shift(edit).Bytes.IsEmpty())
		assert.Empty(t, ShiftAll([]Range{r}, edit))
	})
}

func TestLocator(t *testing.T) {
	loc := NewLocator("ab\ncde\n")

	tests := []struct {
		offset uint
		want   Point
	}{
		{0, Point{0, 0}},
		{2, Point{0, 2}},
		{3, Point{1, 0}},
		{6, Point{1, 3}},
		{7, Point{2, 0}},
	}
	for _, tt := range tests {
		got, err := loc.Point(tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "offset %d", tt.offset)

		back, err := loc.Offset(got)
		require.NoError(t, err)
		assert.Equal(t, tt.offset, back)
	}

	_, err := loc.Point(8)
	assert.ErrorIs(t, err, ErrOffsetOutOfBounds)

	off, err := loc.Offset(Point{Row: 0, Column: 99})
	require.NoError(t, err)
	assert.Equal(t, uint(3), off, "column clamps to line end")
}
