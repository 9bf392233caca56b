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
	"context"
	"fmt"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// ReadFunc returns the text starting at offset. It may return any amount
// of text and returns an empty slice at the end of the document.
//
// The view it reads from must not change for the duration of one Parse.
type ReadFunc func(offset uint, p ranges.Point) []byte

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithTimeout abandons a single parse after d. Zero means no limit.
func WithTimeout(d time.Duration) ParserOption {
	return func(p *Parser) {
		p.timeout = d
	}
}

// Parser is an owned incremental parser bound to one language.
//
// Thread Safety:
//
//	A Parser is NOT safe for concurrent use.
type Parser struct {
	inner    *sitter.Parser
	language *Language
	timeout  time.Duration
}

// NewParser creates a parser for lang.
//
// Outputs:
//
//	*Parser - The parser. Close it when done.
//	error   - ErrLanguageVersion if the grammar's ABI is not supported.
func NewParser(lang *Language, opts ...ParserOption) (*Parser, error) {
	inner := sitter.NewParser()
	if err := inner.SetLanguage(lang.inner); err != nil {
		inner.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLanguageVersion, lang.name, err)
	}

	p := &Parser{inner: inner, language: lang}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Language returns the parser's language.
func (p *Parser) Language() *Language {
	return p.language
}

// SetIncludedRanges restricts parsing to rs. An empty rs parses the whole
// document. rs must be sorted and non-overlapping.
func (p *Parser) SetIncludedRanges(rs []ranges.Range) error {
	raw := make([]sitter.Range, 0, len(rs))
	for _, r := range rs {
		raw = append(raw, toRange(r))
	}
	if err := p.inner.SetIncludedRanges(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrIncludedRanges, err)
	}
	return nil
}

// Parse parses the document, reusing old when it is non-nil.
//
// Description:
//
//	old must already have been edited to match the current text. The
//	returned tree is new; old is left untouched and still owned by the
//	caller. Parsing stops early when ctx ends or the parser's timeout
//	elapses.
//
// Inputs:
//
//	ctx  - Cancels the parse. Must not be nil.
//	read - Supplies the current text.
//	old  - Previous, edited tree, or nil.
//
// Outputs:
//
//	*Tree - The new tree.
//	error - ErrParseCanceled when stopped early, ErrParseFailed when the
//	        runtime produced no tree.
func (p *Parser) Parse(ctx context.Context, read ReadFunc, old *Tree) (*Tree, error) {
	if p.inner == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCanceled, err)
	}

	callback := func(offset int, pt sitter.Point) []byte {
		return read(uint(offset), fromPoint(pt))
	}

	var oldInner *sitter.Tree
	if old != nil {
		oldInner = old.inner
	}

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}

	var options *sitter.ParseOptions
	if ctx.Done() != nil || !deadline.IsZero() {
		options = &sitter.ParseOptions{
			ProgressCallback: func(sitter.ParseState) bool {
				if ctx.Err() != nil {
					return true
				}
				return !deadline.IsZero() && time.Now().After(deadline)
			},
		}
	}

	tree := p.inner.ParseWithOptions(callback, oldInner, options)
	if tree == nil {
		// an abandoned parse resumes on the next call unless reset
		p.inner.Reset()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseCanceled, err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: timeout %s", ErrParseCanceled, p.timeout)
		}
		return nil, ErrParseFailed
	}

	return &Tree{inner: tree}, nil
}

// Reset discards any partial parse state.
func (p *Parser) Reset() {
	if p.inner != nil {
		p.inner.Reset()
	}
}

// Close releases the parser.
func (p *Parser) Close() {
	if p == nil || p.inner == nil {
		return
	}
	p.inner.Close()
	p.inner = nil
}
