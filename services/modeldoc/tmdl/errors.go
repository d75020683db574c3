// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tmdl parses tabular-model definition text (TMDL-like format) into
// an immutable entity snapshot.
//
// The parser recognizes the nested block structure of a tabular model -
// tables containing columns and measures, plus model-level relationship
// declarations - independent of ordering, and is tolerant of unknown
// properties: anything it does not understand is preserved opaquely on the
// entity so the serializer can round-trip it byte for byte.
//
// # Ownership Model
//
// A parsed Model is an immutable snapshot. Entities are never mutated in
// place after Parse returns; downstream stages that need to change an entity
// (the annotation coordinator) clone the model first via Model.Clone().
//
// # Error Handling
//
// Parse failures are fatal for the whole input and reported as a *ParseError
// carrying the 1-based line number and a reason. Everything non-fatal
// (unresolved references, cycles) is detected later by the analyzer and
// graph builder, not here.
package tmdl

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse operations.
var (
	// ErrInvalidInput is returned when input validation fails before
	// parsing starts (empty text, nil receiver).
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyModel is returned when the input contains no table,
	// model, or relationship declarations at all.
	ErrEmptyModel = errors.New("no model declarations found")
)

// ParseError is a fatal syntax or structure error in the model definition.
//
// A ParseError rejects the whole input; nothing is written back when one is
// returned. Line is 1-based.
type ParseError struct {
	// Line is the 1-based line number where the error was detected.
	Line int

	// Reason describes what went wrong.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
}

// parseErrorf builds a *ParseError at the given line.
func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
