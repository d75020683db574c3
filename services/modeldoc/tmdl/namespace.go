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

import "sort"

// ResolveTable returns the table with the given name.
func (m *Model) ResolveTable(name string) (*Entity, bool) {
	e, ok := m.byID[name]
	if !ok || e.Kind != KindTable {
		return nil, false
	}
	return e, true
}

// ResolveQualified returns the column or measure Table[Name].
func (m *Model) ResolveQualified(table, name string) (*Entity, bool) {
	e, ok := m.byID[ColumnID(table, name)]
	if !ok || (e.Kind != KindColumn && e.Kind != KindMeasure) {
		return nil, false
	}
	return e, true
}

// MeasuresNamed returns every measure with the given short name, sorted by
// identifier for deterministic resolution.
func (m *Model) MeasuresNamed(name string) []*Entity {
	return m.childrenNamed(name, KindMeasure)
}

// ColumnsNamed returns every column with the given short name, sorted by
// identifier for deterministic resolution.
func (m *Model) ColumnsNamed(name string) []*Entity {
	return m.childrenNamed(name, KindColumn)
}

func (m *Model) childrenNamed(name string, kind EntityKind) []*Entity {
	var out []*Entity
	for _, t := range m.Entities {
		for _, c := range t.Children {
			if c.Kind == kind && c.Name == name {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
