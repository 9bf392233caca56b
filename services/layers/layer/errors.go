// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import (
	"errors"
	"fmt"
)

// Sentinel errors for layer tree operations.
//
// Conditions that degrade instead of failing (an unresolved injected
// language, missing predicate text, a parse the engine could not finish)
// are not errors and have no sentinel here.
var (
	// ErrQueryUnavailable indicates a layer whose language has no query of
	// the requested kind. Inspect the *QueryUnavailableError for details.
	//
	// Example:
	//   cursor, err := root.ExecuteQuery(layer.Highlights, region)
	//   if errors.Is(err, layer.ErrQueryUnavailable) {
	//       // the language was registered without highlights
	//   }
	ErrQueryUnavailable = errors.New("layer: query unavailable")

	// ErrNilConfiguration indicates a layer constructed without a
	// language configuration.
	ErrNilConfiguration = errors.New("layer: nil language configuration")

	// ErrClosed indicates use of a layer tree or snapshot after Close.
	ErrClosed = errors.New("layer: closed")
)

// QueryUnavailableError reports which layer lacks which query.
type QueryUnavailableError struct {
	// Layer is the language name of the layer.
	Layer string

	// Kind is the requested query kind.
	Kind QueryKind
}

func (e *QueryUnavailableError) Error() string {
	return fmt.Sprintf("layer %s: no %s query", e.Layer, e.Kind)
}

// Is matches ErrQueryUnavailable.
func (e *QueryUnavailableError) Is(target error) bool {
	return target == ErrQueryUnavailable
}
