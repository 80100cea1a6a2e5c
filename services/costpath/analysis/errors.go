// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/costpath/services/costpath/trace"
)

var (
	// ErrInconsistentRecursion is matched by every InconsistentRecursionError.
	ErrInconsistentRecursion = errors.New("inconsistent recursive context")

	// ErrUnresolvedLoop is matched by every UnresolvedLoopError.
	ErrUnresolvedLoop = errors.New("no general expression found for loop")

	// ErrUnresolvedPath is matched by every UnresolvedPathError.
	ErrUnresolvedPath = errors.New("no general expression found for path")

	// ErrParamNotNumeric is wrapped by UnresolvedLoopError when a tree's
	// size parameter is missing or not a number.
	ErrParamNotNumeric = errors.New("size parameter is not numeric")

	// ErrLoopMismatch is wrapped by UnresolvedLoopError when trees in one
	// path group disagree on their loop structure.
	ErrLoopMismatch = errors.New("loop structure differs within path group")
)

// InconsistentRecursionError reports two trace roots with the same call key
// whose trees differ. Linking either one would be ambiguous, so the run
// stops.
type InconsistentRecursionError struct {
	Key trace.CallKey

	// First and Second name the conflicting trees.
	First, Second string
}

func (e *InconsistentRecursionError) Error() string {
	return fmt.Sprintf("%s: %q has differing trees (%s, %s)", ErrInconsistentRecursion, e.Key, e.First, e.Second)
}

func (e *InconsistentRecursionError) Is(target error) bool {
	return target == ErrInconsistentRecursion
}

// UnresolvedLoopError reports a loop whose count could not be expressed in
// the size parameter. The path is skipped; the run continues.
type UnresolvedLoopError struct {
	Signature string
	PathID    int
	LoopID    trace.ID
	Err       error
}

func (e *UnresolvedLoopError) Error() string {
	return fmt.Sprintf("%s: %s path %d loop %s: %v", ErrUnresolvedLoop, e.Signature, e.PathID, e.LoopID, e.Err)
}

func (e *UnresolvedLoopError) Is(target error) bool {
	return target == ErrUnresolvedLoop
}

func (e *UnresolvedLoopError) Unwrap() error { return e.Err }

// UnresolvedPathError reports a loop-free path whose trees synthesized
// different expressions. The path is skipped; the run continues.
type UnresolvedPathError struct {
	Signature string
	PathID    int

	// Exprs holds the distinct expressions, in first-seen order.
	Exprs []string
}

func (e *UnresolvedPathError) Error() string {
	return fmt.Sprintf("%s: %s path %d: [%s]", ErrUnresolvedPath, e.Signature, e.PathID, strings.Join(e.Exprs, "; "))
}

func (e *UnresolvedPathError) Is(target error) bool {
	return target == ErrUnresolvedPath
}
