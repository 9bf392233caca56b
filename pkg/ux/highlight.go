// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Span is a named byte range of the rendered text.
type Span struct {
	Start uint
	End   uint
	Name  string
}

var captureStyles = map[string]lipgloss.Style{
	"keyword":     lipgloss.NewStyle().Foreground(ColorKeyword),
	"conditional": lipgloss.NewStyle().Foreground(ColorKeyword),
	"repeat":      lipgloss.NewStyle().Foreground(ColorKeyword),
	"include":     lipgloss.NewStyle().Foreground(ColorKeyword),
	"string":      lipgloss.NewStyle().Foreground(ColorString),
	"escape":      lipgloss.NewStyle().Foreground(ColorNumber),
	"number":      lipgloss.NewStyle().Foreground(ColorNumber),
	"float":       lipgloss.NewStyle().Foreground(ColorNumber),
	"boolean":     lipgloss.NewStyle().Foreground(ColorNumber),
	"constant":    lipgloss.NewStyle().Foreground(ColorNumber),
	"comment":     lipgloss.NewStyle().Foreground(ColorComment).Italic(true),
	"function":    lipgloss.NewStyle().Foreground(ColorFunction),
	"method":      lipgloss.NewStyle().Foreground(ColorFunction),
	"type":        lipgloss.NewStyle().Foreground(ColorType),
	"tag":         lipgloss.NewStyle().Foreground(ColorTag),
	"attribute":   lipgloss.NewStyle().Foreground(ColorType),
	"property":    lipgloss.NewStyle().Foreground(ColorTealPrimary),
	"operator":    lipgloss.NewStyle().Foreground(ColorTealDeep),
	"punctuation": lipgloss.NewStyle().Foreground(ColorSlate),
	"embedded":    lipgloss.NewStyle().Foreground(ColorTealBright),
}

// StyleFor returns the style for a capture name such as "string.special".
// The longest dotted prefix with a style wins.
func StyleFor(name string) (lipgloss.Style, bool) {
	for {
		if s, ok := captureStyles[name]; ok {
			return s, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return lipgloss.Style{}, false
		}
		name = name[:i]
	}
}

// RenderHighlights paints spans onto text.
//
// Description:
//
//	Spans are applied in order, so a later span overrides an earlier one
//	where they overlap. Callers pass highlights ordered by layer depth so
//	injected languages paint over their host. Spans without a style and
//	bytes outside text are ignored. Outside ModeRich the text is returned
//	unchanged.
//
// Inputs:
//
//	text  - The source text.
//	spans - Named byte ranges, lowest priority first.
//
// Outputs:
//
//	string - The styled text.
func (p *Printer) RenderHighlights(text string, spans []Span) string {
	if p.mode != ModeRich || len(spans) == 0 {
		return text
	}

	// owner[i] is 1 + the index of the span painting byte i.
	owner := make([]int, len(text))
	for i, s := range spans {
		if _, ok := StyleFor(s.Name); !ok {
			continue
		}
		end := min(s.End, uint(len(text)))
		for b := s.Start; b < end; b++ {
			owner[b] = i + 1
		}
	}

	var sb strings.Builder
	start := 0
	for i := 1; i <= len(text); i++ {
		if i < len(text) && owner[i] == owner[start] {
			continue
		}
		chunk := text[start:i]
		if owner[start] == 0 {
			sb.WriteString(chunk)
		} else {
			style, _ := StyleFor(spans[owner[start]-1].Name)
			// Style per line so borders of multi-line runs stay intact.
			lines := strings.Split(chunk, "\n")
			for j, line := range lines {
				if j > 0 {
					sb.WriteByte('\n')
				}
				if line != "" {
					sb.WriteString(style.Render(line))
				}
			}
		}
		start = i
	}
	return sb.String()
}
