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
	"errors"
	"fmt"
)

// Sentinel errors for engine failures.
var (
	// ErrParseFailed indicates the runtime returned no tree. Callers keep
	// their previous tree when they see it.
	ErrParseFailed = errors.New("engine: parse failed")

	// ErrParseCanceled indicates the parse was abandoned because the
	// context ended or the parse timeout elapsed.
	ErrParseCanceled = errors.New("engine: parse canceled")

	// ErrLanguageVersion indicates a grammar built for an incompatible ABI.
	ErrLanguageVersion = errors.New("engine: incompatible language version")

	// ErrIncludedRanges indicates included ranges that are unordered or
	// overlapping.
	ErrIncludedRanges = errors.New("engine: invalid included ranges")

	// ErrQueryCompile indicates query source the runtime rejected.
	ErrQueryCompile = errors.New("engine: query compile failed")

	// ErrClosed indicates use of a handle after Close.
	ErrClosed = errors.New("engine: handle closed")
)

// QueryCompileError describes where query compilation failed.
//
// Example:
//
//	_, err := engine.NewQuery(lang, "(call_expression")
//	var qe *engine.QueryCompileError
//	if errors.As(err, &qe) {
//	    fmt.Printf("query %s:%d:%d: %s\n", qe.Language, qe.Row+1, qe.Column, qe.Message)
//	}
type QueryCompileError struct {
	// Language is the name of the grammar the query was compiled for.
	Language string

	// Row and Column locate the error in the query source, zero-based.
	Row    uint
	Column uint

	// Offset is the byte offset of the error in the query source.
	Offset uint

	// Message is the runtime's description of the failure.
	Message string

	// Cause is set when the failure came from predicate parsing rather
	// than the runtime.
	Cause error
}

func (e *QueryCompileError) Error() string {
	return fmt.Sprintf("%s query %d:%d: %s", e.Language, e.Row+1, e.Column, e.Message)
}

// Unwrap returns the predicate error, if any.
func (e *QueryCompileError) Unwrap() error {
	return e.Cause
}

// Is matches ErrQueryCompile.
func (e *QueryCompileError) Is(target error) bool {
	return target == ErrQueryCompile
}
