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

import (
	"fmt"
	"regexp"
)

// StepKind discriminates the raw predicate steps emitted by the engine.
type StepKind int

const (
	// StepDone terminates one predicate invocation.
	StepDone StepKind = iota
	// StepCapture names a capture, without the leading "@".
	StepCapture
	// StepString is a string literal, including the predicate name.
	StepString
)

// Step is one raw predicate step of a query pattern.
type Step struct {
	Kind  StepKind
	Value string
}

// Done returns a terminating step.
func Done() Step { return Step{Kind: StepDone} }

// CaptureStep returns a capture step for name.
func CaptureStep(name string) Step { return Step{Kind: StepCapture, Value: name} }

// StringStep returns a string literal step.
func StringStep(value string) Step { return Step{Kind: StepString, Value: value} }

func (s Step) String() string {
	switch s.Kind {
	case StepDone:
		return "<done>"
	case StepCapture:
		return "@" + s.Value
	default:
		return fmt.Sprintf("%q", s.Value)
	}
}

// Parse groups raw steps into structured predicates.
//
// Description:
//
//	Each invocation is a string step naming the predicate, its arguments,
//	and a terminating Done step. Invocations with an unknown name, or a known
//	name whose arguments do not fit, become Generic predicates rather than
//	errors, so a query using a predicate this package does not understand
//	still compiles.
//
// Inputs:
//
//	steps - The raw steps of one pattern, in engine order.
//
// Outputs:
//
//	[]Predicate - One entry per invocation, in order. Nil when steps is empty.
//	error       - ErrStepNameExpected when an invocation does not start with
//	              a string, ErrDoneExpected when the final invocation is not
//	              terminated.
//
// Example:
//
//	preds, err := predicate.Parse([]predicate.Step{
//	    predicate.StringStep("eq?"), predicate.CaptureStep("name"),
//	    predicate.StringStep("self"), predicate.Done(),
//	})
func Parse(steps []Step) ([]Predicate, error) {
	var predicates []Predicate

	for len(steps) > 0 {
		p, consumed, err := parseNext(steps)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
		steps = steps[consumed:]
	}

	return predicates, nil
}

func parseNext(steps []Step) (Predicate, int, error) {
	if steps[0].Kind != StepString {
		return nil, 0, fmt.Errorf("%w: got %s", ErrStepNameExpected, steps[0])
	}
	name := steps[0].Value

	done := -1
	for i, s := range steps {
		if s.Kind == StepDone {
			done = i
			break
		}
	}
	if done < 0 {
		return nil, 0, fmt.Errorf("%w: predicate %s", ErrDoneExpected, name)
	}

	p, err := build(name, steps[1:done])
	if err != nil {
		return nil, 0, err
	}
	return p, done + 1, nil
}

func build(name string, args []Step) (Predicate, error) {
	var strs, captures []string
	for _, a := range args {
		switch a.Kind {
		case StepCapture:
			captures = append(captures, a.Value)
		case StepString:
			strs = append(strs, a.Value)
		case StepDone:
			return nil, ErrArgumentsContainDone
		}
	}

	generic := Generic{Operator: name, Strings: strs, Captures: captures}

	switch name {
	case "eq?", "any-eq?":
		if len(captures) == 0 {
			return generic, nil
		}
		return Eq{Strings: strs, Captures: captures, Any: name == "any-eq?"}, nil

	case "not-eq?", "any-not-eq?":
		if len(captures) == 0 {
			return generic, nil
		}
		return NotEq{Strings: strs, Captures: captures, Any: name == "any-not-eq?"}, nil

	case "match?", "any-match?", "not-match?", "any-not-match?":
		if len(strs) != 1 || len(captures) == 0 {
			return generic, nil
		}
		re, err := regexp.Compile(strs[0])
		if err != nil {
			return generic, nil
		}
		anyNode := name == "any-match?" || name == "any-not-match?"
		if name == "match?" || name == "any-match?" {
			return Match{Regex: re, Captures: captures, Any: anyNode}, nil
		}
		return NotMatch{Regex: re, Captures: captures, Any: anyNode}, nil

	case "any-of?":
		if len(captures) != 1 {
			return generic, nil
		}
		return AnyOf{Capture: captures[0], Values: strs}, nil

	case "not-any-of?":
		if len(captures) != 1 {
			return generic, nil
		}
		return NotAnyOf{Capture: captures[0], Values: strs}, nil

	case "is-not?":
		if len(strs) != 1 || len(captures) != 0 {
			return generic, nil
		}
		return IsNot{Group: strs[0]}, nil

	case "set!":
		if len(strs) == 0 || len(strs) > 2 || len(captures) > 1 {
			return generic, nil
		}
		s := Set{Key: strs[0]}
		if len(strs) == 2 {
			s.Value = strs[1]
		}
		if len(captures) == 1 {
			s.Capture = captures[0]
		}
		return s, nil
	}

	return generic, nil
}
