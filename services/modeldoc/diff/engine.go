// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff compares two model snapshots into a typed change set.
//
// Entities are matched by stable identifier, never by position, so moving a
// block inside the source file is not a change. Expression text is compared
// whitespace-insensitively so reformatting a measure does not produce a
// false Modified record.
package diff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// Sentinel errors for diff operations.
var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Diff compares two dependency graphs and produces a ChangeSet.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - oldGraph: Graph built from the old snapshot.
//   - newGraph: Graph built from the new snapshot.
//
// # Outputs
//
//   - *ChangeSet: Ordered Removed/Modified/Added records, each group sorted
//     by entity identifier.
//   - error: ErrInvalidInput or a context error.
func Diff(ctx context.Context, oldGraph, newGraph *graph.Graph) (*ChangeSet, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if oldGraph == nil || newGraph == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidInput)
	}

	cs := &ChangeSet{
		OldSnapshotID: oldGraph.SnapshotID,
		NewSnapshotID: newGraph.SnapshotID,
	}

	var removed, modified, added []ChangeRecord

	oldGraph.Nodes()(func(id string, oldNode *graph.Node) bool {
		newNode, exists := newGraph.GetNode(id)
		if !exists {
			removed = append(removed, record(Removed, oldNode.Entity, nil))
			return true
		}
		if fields := compareFields(oldNode.Entity, newNode.Entity); len(fields) > 0 {
			modified = append(modified, record(Modified, newNode.Entity, fields))
		}
		return true
	})

	newGraph.Nodes()(func(id string, newNode *graph.Node) bool {
		if _, exists := oldGraph.GetNode(id); !exists {
			added = append(added, record(Added, newNode.Entity, nil))
		}
		return true
	})

	for _, group := range [][]ChangeRecord{removed, modified, added} {
		sort.Slice(group, func(i, j int) bool {
			return group[i].EntityID < group[j].EntityID
		})
		cs.Records = append(cs.Records, group...)
	}
	return cs, nil
}

// record builds one change record for an entity.
func record(t ChangeType, e *tmdl.Entity, fields []FieldDiff) ChangeRecord {
	return ChangeRecord{
		Type:     t,
		EntityID: e.ID,
		Kind:     e.Kind,
		KindName: e.Kind.String(),
		Fields:   fields,
	}
}

// compareFields diffs the compared fields of two entity versions. Only
// differing fields appear in the result, in a fixed field order.
func compareFields(oldE, newE *tmdl.Entity) []FieldDiff {
	var fields []FieldDiff
	if oldE.Description != newE.Description {
		fields = append(fields, FieldDiff{FieldDescription, oldE.Description, newE.Description})
	}
	if oldE.TechnicalNotes != newE.TechnicalNotes {
		fields = append(fields, FieldDiff{FieldTechnicalNotes, oldE.TechnicalNotes, newE.TechnicalNotes})
	}
	if normalizeExpression(oldE.Expression) != normalizeExpression(newE.Expression) {
		fields = append(fields, FieldDiff{FieldExpression, oldE.Expression, newE.Expression})
	}
	if oldE.DisplayFolder != newE.DisplayFolder {
		fields = append(fields, FieldDiff{FieldDisplayFolder, oldE.DisplayFolder, newE.DisplayFolder})
	}
	return fields
}

// normalizeExpression collapses whitespace runs so reformatted expressions
// compare equal.
func normalizeExpression(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}
