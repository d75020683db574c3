// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package annotate coordinates the external text-generation collaborator.
//
// The coordinator hands the collaborator a structured fact bundle per
// entity, never free text, and treats the reply as untrusted input: required
// fields must be present and every entity identifier the reply mentions must
// exist in the dependency graph, so a hallucinated dependency cannot be
// written back as documentation.
//
// # Failure Isolation
//
// Annotation calls are independently cancellable, retryable units keyed by
// entity identifier. A validation failure or collaborator timeout on one
// entity never aborts the batch; the entity keeps its prior annotations and
// the failure is recorded on the Outcome. Rendering waits for every
// outstanding call to finish or fail, so a half-annotated file is never
// produced.
package annotate

import (
	"errors"
	"fmt"
)

// Sentinel errors for annotation operations.
var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoClient is returned when the coordinator is built without a
	// text-generation client.
	ErrNoClient = errors.New("no text-generation client configured")
)

// ValidationError rejects one entity's annotation merge. The entity's prior
// description and notes are preserved unchanged; the rest of the batch
// proceeds.
type ValidationError struct {
	// EntityID is the entity whose merge was rejected.
	EntityID string

	// Reason describes what was wrong with the collaborator's reply.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("annotation rejected for %s: %s", e.EntityID, e.Reason)
}

// CollaboratorFailure records a failed or timed-out collaborator call. The
// entity proceeds to rendering with whatever annotation it already had.
type CollaboratorFailure struct {
	// EntityID is the entity whose call failed.
	EntityID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *CollaboratorFailure) Error() string {
	return fmt.Sprintf("collaborator call failed for %s: %v", e.EntityID, e.Err)
}

// Unwrap exposes the underlying error for errors.Is checks.
func (e *CollaboratorFailure) Unwrap() error {
	return e.Err
}
