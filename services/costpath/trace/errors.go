// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"errors"
	"fmt"
)

// ErrMalformedTrace is the sentinel matched by every MalformedTraceError.
var ErrMalformedTrace = errors.New("malformed trace record")

// MalformedTraceError reports a raw trace record that cannot be turned into a
// node: a required field is absent or has the wrong shape, or the record's
// type tag belongs to a different variant family than the one requested.
//
// Construction validates the whole record tree before building anything, so
// no partially constructed tree is ever returned alongside this error.
type MalformedTraceError struct {
	// ID is the offending record's id, or "" if the id itself is missing.
	ID string

	// Field names the missing or invalid field ("id", "type", "children", ...).
	Field string

	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements error.
func (e *MalformedTraceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: field %q: %s", ErrMalformedTrace, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %s: field %q: %s", ErrMalformedTrace, e.ID, e.Field, e.Reason)
}

// Is reports whether target is ErrMalformedTrace.
func (e *MalformedTraceError) Is(target error) bool {
	return target == ErrMalformedTrace
}

func malformed(id, field, reason string) error {
	return &MalformedTraceError{ID: id, Field: field, Reason: reason}
}
