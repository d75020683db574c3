// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tmdl

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// EntityKind identifies the variant of a model entity.
type EntityKind int

const (
	// KindUnknown indicates an unrecognized entity kind.
	KindUnknown EntityKind = iota

	// KindTable is a table declared at model scope.
	KindTable

	// KindColumn is a column declared inside a table.
	KindColumn

	// KindMeasure is a measure declared inside a table.
	KindMeasure

	// KindRelationship is a relationship declared at model scope.
	KindRelationship
)

// entityKindNames maps EntityKind values to their string representations.
var entityKindNames = map[EntityKind]string{
	KindUnknown:      "unknown",
	KindTable:        "table",
	KindColumn:       "column",
	KindMeasure:      "measure",
	KindRelationship: "relationship",
}

// String returns the string representation of the EntityKind.
func (k EntityKind) String() string {
	if name, ok := entityKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Property is one named property line preserved from the source block.
//
// Known keys (description, displayFolder) are also lifted into Entity
// fields; everything else is carried opaquely so the serializer can
// round-trip properties the engine does not understand.
type Property struct {
	// Key is the property name as written ("description", "formatString",
	// or the annotation key for annotation properties).
	Key string

	// Value is the property value with surrounding whitespace trimmed.
	Value string

	// Offset is the line offset of this property inside the entity's raw
	// block (0 = the entity header line).
	Offset int

	// Annotation is true when the line was written in annotation form
	// ("annotation Key = Value") rather than property form ("key: value").
	Annotation bool
}

// Span is a half-open line range [Start, End) into Model.Lines.
type Span struct {
	Start int
	End   int
}

// RelationshipEndpoints holds the declared endpoints of a relationship.
type RelationshipEndpoints struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// Entity is one node of the parsed model: a table, column, measure, or
// relationship.
//
// The stable identifier scheme is the qualified name path:
//
//	table:        Payments
//	column:       Payments[Amount]
//	measure:      Payments[Net Pay]
//	relationship: relationship/<name>
//
// Entities are immutable after Parse; the annotation coordinator mutates
// only cloned snapshots and marks touched entities Dirty so the serializer
// knows which blocks to rewrite.
type Entity struct {
	// ID is the stable qualified identifier (see scheme above).
	ID string

	// Kind discriminates the entity variant.
	Kind EntityKind

	// Name is the unqualified declared name (quotes stripped).
	Name string

	// Table is the enclosing table name for columns and measures,
	// empty for tables and relationships.
	Table string

	// Description is the free-text description, empty when absent.
	Description string

	// TechnicalNotes is the free-text technical notes annotation
	// (annotation Technical_Notes = ...), empty when absent.
	TechnicalNotes string

	// DisplayFolder is the user-facing grouping label, empty when absent.
	DisplayFolder string

	// Expression is the source expression text, empty for plain columns
	// and tables. Multi-line expressions are joined with newlines with
	// continuation indentation stripped.
	Expression string

	// Properties is the ordered opaque property bag, including the known
	// keys above in their original positions.
	Properties []Property

	// Rel holds relationship endpoints; nil unless Kind == KindRelationship.
	Rel *RelationshipEndpoints

	// Raw is the entity's source block span into Model.Lines. Children of
	// a table are nested inside the table's span.
	Raw Span

	// Children are nested entities (columns and measures of a table),
	// in declaration order. Nil for non-table entities.
	Children []*Entity

	// Dirty marks an entity whose annotation fields were changed after
	// parse. Only set on cloned snapshots by the annotation coordinator.
	Dirty bool
}

// IsCalculated reports whether the entity carries a source expression.
func (e *Entity) IsCalculated() bool {
	return e.Expression != ""
}

// Property returns the value of the named property and whether it exists.
func (e *Entity) Property(key string) (string, bool) {
	for _, p := range e.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty updates a property-form line or, when the key is absent,
// appends a new property with no source offset so the serializer knows to
// insert a line. Lifted fields stay in sync.
func (e *Entity) SetProperty(key, value string) {
	e.setBagEntry(key, value, false)
}

// SetAnnotation updates an annotation-form line, appending when absent.
func (e *Entity) SetAnnotation(key, value string) {
	e.setBagEntry(key, value, true)
}

func (e *Entity) setBagEntry(key, value string, annotation bool) {
	found := false
	for i := range e.Properties {
		if e.Properties[i].Annotation == annotation && e.Properties[i].Key == key {
			e.Properties[i].Value = value
			found = true
			break
		}
	}
	if !found {
		e.Properties = append(e.Properties, Property{
			Key:        key,
			Value:      value,
			Offset:     -1,
			Annotation: annotation,
		})
	}
	switch {
	case !annotation && key == propDescription:
		e.Description = value
	case !annotation && key == propDisplayFolder:
		e.DisplayFolder = value
	case annotation && key == AnnotationTechnicalNotes:
		e.TechnicalNotes = value
	}
}

// Model is an immutable snapshot of a parsed model definition.
type Model struct {
	// Name is the declared model name, empty if the input had no model block.
	Name string

	// Entities holds the top-level entities (tables, relationships, and the
	// model block's pseudo entity is excluded) in declaration order.
	Entities []*Entity

	// Lines is the source text split into lines, retained for
	// format-preserving rendering.
	Lines []string

	// TrailingNewline records whether the source text ended with a newline,
	// so rendering can reproduce the final byte exactly.
	TrailingNewline bool

	// SnapshotID is the content hash of the source text. Two models parsed
	// from identical text share a SnapshotID.
	SnapshotID string

	byID map[string]*Entity
}

// computeSnapshotID hashes the source text into a stable snapshot identifier.
func computeSnapshotID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// Entity returns the entity with the given ID and whether it exists.
func (m *Model) Entity(id string) (*Entity, bool) {
	e, ok := m.byID[id]
	return e, ok
}

// EntityIDs returns all entity identifiers in sorted order.
func (m *Model) EntityIDs() []string {
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every entity (top-level and nested) in declaration order.
func (m *Model) All() []*Entity {
	out := make([]*Entity, 0, len(m.byID))
	for _, e := range m.Entities {
		out = append(out, e)
		out = append(out, e.Children...)
	}
	return out
}

// Measures returns every measure entity in declaration order.
func (m *Model) Measures() []*Entity {
	var out []*Entity
	for _, e := range m.Entities {
		for _, c := range e.Children {
			if c.Kind == KindMeasure {
				out = append(out, c)
			}
		}
	}
	return out
}

// Clone returns a deep copy of the model suitable for mutation by the
// annotation coordinator. The copy starts with no Dirty entities.
func (m *Model) Clone() *Model {
	clone := &Model{
		Name:            m.Name,
		Entities:        make([]*Entity, 0, len(m.Entities)),
		Lines:           append([]string(nil), m.Lines...),
		TrailingNewline: m.TrailingNewline,
		SnapshotID:      m.SnapshotID,
		byID:            make(map[string]*Entity, len(m.byID)),
	}
	for _, e := range m.Entities {
		ce := cloneEntity(e)
		clone.Entities = append(clone.Entities, ce)
		clone.byID[ce.ID] = ce
		for _, c := range ce.Children {
			clone.byID[c.ID] = c
		}
	}
	return clone
}

// cloneEntity deep-copies an entity and its children.
func cloneEntity(e *Entity) *Entity {
	ce := *e
	ce.Dirty = false
	ce.Properties = append([]Property(nil), e.Properties...)
	if e.Rel != nil {
		rel := *e.Rel
		ce.Rel = &rel
	}
	if e.Children != nil {
		ce.Children = make([]*Entity, 0, len(e.Children))
		for _, c := range e.Children {
			ce.Children = append(ce.Children, cloneEntity(c))
		}
	}
	return &ce
}

// ColumnID builds the qualified identifier for a column or measure.
func ColumnID(table, name string) string {
	return table + "[" + name + "]"
}

// RelationshipID builds the identifier for a relationship by name.
func RelationshipID(name string) string {
	return "relationship/" + name
}

// SplitQualified splits a qualified identifier "Table[Name]" into its parts.
// The second return is empty when the identifier is not qualified.
func SplitQualified(id string) (table, name string) {
	open := strings.IndexByte(id, '[')
	if open <= 0 || !strings.HasSuffix(id, "]") {
		return id, ""
	}
	return id[:open], id[open+1 : len(id)-1]
}
