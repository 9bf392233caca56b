// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate

import "errors"

// Sentinel errors for malformed predicate step lists.
//
// These indicate the engine handed back structurally broken data, not a
// query using an unknown predicate. Unknown predicates parse as Generic.
var (
	// ErrStepNameExpected indicates an invocation whose first step is not
	// the predicate name string.
	ErrStepNameExpected = errors.New("predicate: step name expected")

	// ErrDoneExpected indicates the step list ended inside an invocation.
	ErrDoneExpected = errors.New("predicate: done expected")

	// ErrArgumentsContainDone indicates a Done step inside an argument list.
	ErrArgumentsContainDone = errors.New("predicate: arguments contain done")
)
