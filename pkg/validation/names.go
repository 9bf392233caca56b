// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-supplied names that end up in file paths.
//
// Language names and query kinds select files under the query directory
// (<query_dir>/<language>/<kind>.scm), so both are restricted to a small
// alphabet that cannot express a separator or a parent reference.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidName is returned for a language name or query kind outside
// the allowed alphabet.
var ErrInvalidName = errors.New("invalid name")

// namePattern matches language names and query kinds.
// Allows: lowercase letters, digits, underscore, hyphen, plus (c++)
// Max length: 32 characters
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_+\-]{0,31}$`)

// ValidateLanguageName validates a language name such as "go" or
// "embedded-template".
//
// Example:
//
//	if err := validation.ValidateLanguageName(name); err != nil {
//	    return fmt.Errorf("bad --language: %w", err)
//	}
//	// Safe to join onto the query directory
func ValidateLanguageName(name string) error {
	return validate("language", name)
}

// ValidateQueryKind validates a query kind such as "highlights" or "tags".
// A trailing ".scm" is not accepted; strip it first.
func ValidateQueryKind(kind string) error {
	return validate("query kind", kind)
}

// ValidateNames validates several language names.
// Returns an error listing every invalid name if any fail validation.
func ValidateNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateLanguageName(n); err != nil {
			invalid = append(invalid, n)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, invalid)
	}
	return nil
}

// SanitizeName trims and lowercases name, then validates it as a language
// name.
//
//	lang, err := validation.SanitizeName(" Go ")
//	// lang == "go"
func SanitizeName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateLanguageName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func validate(what, s string) error {
	if s == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidName, what)
	}
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%w: %s %q (must be 1-32 lowercase letters, digits, '_', '-' or '+')", ErrInvalidName, what, s)
	}
	return nil
}
