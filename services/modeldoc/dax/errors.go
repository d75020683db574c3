// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dax

import "errors"

// Sentinel errors for expression analysis.
var (
	// ErrInvalidInput is returned when input validation fails (nil context,
	// nil enclosing entity, nil model).
	ErrInvalidInput = errors.New("invalid input")
)

// WarningKind classifies a non-fatal analysis finding.
type WarningKind string

const (
	// UnresolvedReference is a name that matched nothing in the model's
	// identifier namespace.
	UnresolvedReference WarningKind = "unresolved_reference"

	// AmbiguousReference is a short name that matched entities in more than
	// one table; resolution picked a deterministic candidate.
	AmbiguousReference WarningKind = "ambiguous_reference"
)

// Warning is a non-fatal analysis finding attached to the analyzed entity's
// record. Analysis continues past warnings; expression grammars evolve and
// an unknown name must not fail the whole entity.
type Warning struct {
	// Kind classifies the finding.
	Kind WarningKind `json:"kind"`

	// EntityID identifies the entity whose expression produced the finding.
	EntityID string `json:"entity_id"`

	// Name is the expression text that failed to resolve cleanly.
	Name string `json:"name"`

	// Message is a human-readable explanation.
	Message string `json:"message"`
}
