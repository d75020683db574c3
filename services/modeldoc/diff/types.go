// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import "github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"

// ChangeType discriminates change records.
type ChangeType string

const (
	// Added marks an entity present only in the new snapshot.
	Added ChangeType = "added"

	// Removed marks an entity present only in the old snapshot.
	Removed ChangeType = "removed"

	// Modified marks an entity present in both snapshots with at least one
	// differing field.
	Modified ChangeType = "modified"
)

// Compared field names, as they appear in FieldDiff.Field.
const (
	FieldDescription    = "description"
	FieldTechnicalNotes = "technical_notes"
	FieldExpression     = "expression"
	FieldDisplayFolder  = "display_folder"
)

// FieldDiff is one differing field on a modified entity.
type FieldDiff struct {
	// Field is the compared field name.
	Field string `json:"field"`

	// Old is the field value in the old snapshot.
	Old string `json:"old"`

	// New is the field value in the new snapshot.
	New string `json:"new"`
}

// ChangeRecord is one entry of a ChangeSet.
type ChangeRecord struct {
	// Type is added, removed, or modified.
	Type ChangeType `json:"type"`

	// EntityID is the stable identifier of the changed entity.
	EntityID string `json:"entity_id"`

	// Kind is the entity's kind.
	Kind tmdl.EntityKind `json:"-"`

	// KindName is the entity kind as a string, for serialized output.
	KindName string `json:"kind"`

	// Fields carries the differing fields. Only set on Modified records.
	Fields []FieldDiff `json:"fields,omitempty"`
}

// ChangeSet is the ordered result of comparing two model snapshots.
//
// Records are ordered Removed, then Modified, then Added, each group sorted
// by entity identifier. The order is deterministic regardless of input
// iteration order; changelog text and tests rely on that. No entity
// identifier appears in more than one record.
type ChangeSet struct {
	// OldSnapshotID identifies the old snapshot compared.
	OldSnapshotID string `json:"old_snapshot_id"`

	// NewSnapshotID identifies the new snapshot compared.
	NewSnapshotID string `json:"new_snapshot_id"`

	// Records holds the ordered change records.
	Records []ChangeRecord `json:"records"`
}

// IsEmpty reports whether the two snapshots were identical on all compared
// fields.
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Records) == 0
}

// ForEntity returns the record for the given entity identifier, if any.
func (cs *ChangeSet) ForEntity(id string) (ChangeRecord, bool) {
	for _, r := range cs.Records {
		if r.EntityID == id {
			return r, true
		}
	}
	return ChangeRecord{}, false
}

// Counts returns the number of added, removed, and modified records.
func (cs *ChangeSet) Counts() (added, removed, modified int) {
	for _, r := range cs.Records {
		switch r.Type {
		case Added:
			added++
		case Removed:
			removed++
		case Modified:
			modified++
		}
	}
	return added, removed, modified
}
