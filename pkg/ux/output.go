// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for layerctl.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")

	// Syntax colors
	ColorKeyword  = lipgloss.Color("#C678DD")
	ColorString   = lipgloss.Color("#98C379")
	ColorNumber   = lipgloss.Color("#D19A66")
	ColorComment  = lipgloss.Color("#5C6370")
	ColorFunction = lipgloss.Color("#61AFEF")
	ColorType     = lipgloss.Color("#E5C07B")
	ColorTag      = lipgloss.Color("#E06C75")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Mode controls how rich the output is.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons but no color.
	ModePlain Mode = "plain"

	// ModeMachine prints tab-separated text for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode maps a flag value to a Mode. Unknown values are ModeRich.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePlain:
		return ModePlain
	case ModeMachine:
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode returns ModeRich on a terminal and ModePlain otherwise.
// NO_COLOR forces ModePlain.
func DetectMode(f *os.File) Mode {
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// Printer writes styled lines to w.
//
// Thread Safety: Not safe for concurrent use; guard w if shared.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a Printer.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Writer returns the destination.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// render applies style only in ModeRich.
func (p *Printer) render(style lipgloss.Style, text string) string {
	if p.mode != ModeRich {
		return text
	}
	return style.Render(text)
}

// Title prints a styled title. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.render(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "OK: %s\n", text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Success, string(IconSuccess)), text)
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "WARN: %s\n", text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Warning, string(IconWarning)), p.render(Styles.Warning, text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Error, string(IconError)), p.render(Styles.Error, text))
	}
}

// Info prints an informational line
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Muted, "│"), text)
}

// Row prints tab-separated fields. Non-machine modes mute every field
// after the first.
func (p *Printer) Row(fields ...string) {
	if p.mode == ModeMachine || len(fields) == 0 {
		fmt.Fprintln(p.w, strings.Join(fields, "\t"))
		return
	}
	out := make([]string, len(fields))
	out[0] = fields[0]
	for i, f := range fields[1:] {
		out[i+1] = p.render(Styles.Muted, f)
	}
	fmt.Fprintln(p.w, strings.Join(out, "  "))
}

// Box prints content in a rounded box under title.
func (p *Printer) Box(title, content string) {
	if p.mode != ModeRich {
		fmt.Fprintf(p.w, "%s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Summary prints per-run counts.
func (p *Printer) Summary(files, spans, failed int) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "SUMMARY: files=%d spans=%d failed=%d\n", files, spans, failed)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s\n",
		p.render(Styles.Bold, fmt.Sprintf("%d", files)), p.render(Styles.Muted, "files"),
		p.render(Styles.Success, fmt.Sprintf("%d", spans)), p.render(Styles.Muted, "spans"),
		p.render(Styles.Error, fmt.Sprintf("%d", failed)), p.render(Styles.Muted, "failed"),
	)
}
