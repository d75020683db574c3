// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package annotate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// validate holds the shared struct validator. The validator is stateless
// and safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// MergeResponse validates a collaborator reply and merges it into the
// entity.
//
// # Description
//
// Validation rejects replies missing required fields, replies whose text
// fields contain newlines or other control characters, and replies whose
// referenced_entities name identifiers absent from the dependency graph.
// On rejection the entity is left untouched. On success the description,
// technical notes, and display folder are written through the property bag,
// the entity is marked dirty, and a provenance annotation is recorded.
// Merging a reply identical to the entity's current values changes nothing,
// so re-annotating with unchanged facts is idempotent.
//
// # Outputs
//
//   - error: *ValidationError on rejection, ErrInvalidInput on nil
//     arguments, nil on success.
func (c *Coordinator) MergeResponse(e *tmdl.Entity, resp *Response, g *graph.Graph) error {
	if e == nil || g == nil {
		return fmt.Errorf("%w: nil entity or graph", ErrInvalidInput)
	}
	if resp == nil {
		return &ValidationError{EntityID: e.ID, Reason: "empty response"}
	}
	if err := validate.Struct(resp); err != nil {
		return &ValidationError{EntityID: e.ID, Reason: missingFields(err)}
	}
	for _, f := range []struct{ name, value string }{
		{"description", resp.Description},
		{"technical_notes", resp.TechnicalNotes},
		{"display_folder", resp.DisplayFolder},
	} {
		if reason := controlCharProblem(f.name, f.value); reason != "" {
			return &ValidationError{EntityID: e.ID, Reason: reason}
		}
	}
	for _, id := range resp.ReferencedEntities {
		if _, ok := g.GetNode(id); !ok {
			return &ValidationError{
				EntityID: e.ID,
				Reason:   fmt.Sprintf("reply references unknown entity %q", id),
			}
		}
	}

	changed := false
	if resp.Description != e.Description {
		e.SetProperty("description", resp.Description)
		changed = true
	}
	if resp.TechnicalNotes != "" && resp.TechnicalNotes != e.TechnicalNotes {
		e.SetAnnotation(tmdl.AnnotationTechnicalNotes, resp.TechnicalNotes)
		changed = true
	}
	if resp.DisplayFolder != "" && resp.DisplayFolder != e.DisplayFolder {
		e.SetProperty("displayFolder", resp.DisplayFolder)
		changed = true
	}
	if changed {
		e.SetAnnotation(tmdl.AnnotationAIGenerated, "true")
		e.Dirty = true
	}
	return nil
}

// controlCharProblem rejects text that cannot live on a single property
// line. Every merged field is rendered verbatim into a line-oriented
// document, so a reply carrying newlines or tabs could splice arbitrary
// blocks into it.
func controlCharProblem(field, value string) string {
	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Sprintf("field %s contains a control character (%q)", field, r)
		}
	}
	return ""
}

// missingFields renders validator output into a stable reason string.
func missingFields(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "missing required fields: " + strings.Join(fields, ", ")
}
