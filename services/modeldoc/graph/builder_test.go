// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/modeldoc/services/modeldoc/dax"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

const builderModel = `table Payments
	column EmployeeID
	column Amount
	column Deductions
	measure 'Net Pay' = SUM(Payments[Amount]) - SUM(Payments[Deductions])
	measure 'Net Pay Pct' = DIVIDE([Net Pay], SUM(Payments[Amount]))

table PersonalInfo
	column EmployeeID
	column Region

relationship payments-to-personal
	fromColumn: Payments.EmployeeID
	toColumn: PersonalInfo.EmployeeID
`

func buildModel(t *testing.T, src string) *BuildResult {
	t.Helper()
	model, err := tmdl.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	res, err := NewBuilder().Build(context.Background(), model)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	return res
}

func TestBuilder_Build(t *testing.T) {
	res := buildModel(t, builderModel)
	g := res.Graph

	if !g.IsFrozen() {
		t.Fatal("built graph should be frozen")
	}
	// 2 tables + 5 columns + 2 measures + 1 relationship.
	if g.NodeCount() != 10 {
		t.Errorf("NodeCount() = %d, want 10", g.NodeCount())
	}
	if len(res.AnalysisWarnings) != 0 {
		t.Errorf("AnalysisWarnings = %v, want none", res.AnalysisWarnings)
	}
	if len(res.StructuralWarnings) != 0 {
		t.Errorf("StructuralWarnings = %v, want none", res.StructuralWarnings)
	}

	deps, err := g.Dependencies("Payments[Net Pay Pct]")
	if err != nil {
		t.Fatalf("Dependencies() unexpected error: %v", err)
	}
	want := []string{"Payments[Amount]", "Payments[Net Pay]"}
	if len(deps) != len(want) {
		t.Fatalf("Dependencies() = %v, want %v", deps, want)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Errorf("Dependencies()[%d] = %q, want %q", i, deps[i], want[i])
		}
	}

	if got := len(g.GetEdgesByType(EdgeTypeMeasureCall)); got != 1 {
		t.Errorf("measure-call edges = %d, want 1", got)
	}
}

func TestBuilder_RelationshipEdges(t *testing.T) {
	res := buildModel(t, builderModel)
	g := res.Graph

	relEdges := g.GetEdgesByType(EdgeTypeRelationshipTraverse)
	// Column pair in both directions plus relationship node to each column.
	if len(relEdges) != 4 {
		t.Fatalf("relationship-traverse edges = %d, want 4", len(relEdges))
	}
	var forward, reverse int
	for _, e := range relEdges {
		switch e.Direction {
		case DirectionForward:
			forward++
		case DirectionReverse:
			reverse++
		}
	}
	if forward != 1 || reverse != 1 {
		t.Errorf("directional edges = %d forward / %d reverse, want 1/1", forward, reverse)
	}

	// A changed column on one side reaches the other side's column.
	consumers, err := g.Consumers("PersonalInfo[EmployeeID]")
	if err != nil {
		t.Fatalf("Consumers() unexpected error: %v", err)
	}
	found := false
	for _, id := range consumers {
		if id == "Payments[EmployeeID]" {
			found = true
		}
	}
	if !found {
		t.Errorf("Consumers(PersonalInfo[EmployeeID]) = %v, want to include Payments[EmployeeID]", consumers)
	}
}

func TestBuilder_CycleDetection(t *testing.T) {
	src := "table T\n\tcolumn X\n\tmeasure A = [B] + 1\n\tmeasure B = [A] + 1\n\tmeasure C = SUM(T[X])\n"
	res := buildModel(t, src)

	if len(res.StructuralWarnings) != 2 {
		t.Fatalf("StructuralWarnings = %d, want 2", len(res.StructuralWarnings))
	}
	for _, w := range res.StructuralWarnings {
		if len(w.Cycle) != 2 {
			t.Errorf("Cycle = %v, want 2 members", w.Cycle)
		}
		if w.Cycle[0] != "T[A]" || w.Cycle[1] != "T[B]" {
			t.Errorf("Cycle = %v, want [T[A] T[B]]", w.Cycle)
		}
	}

	a, _ := res.Graph.GetNode("T[A]")
	if len(a.StructuralWarnings) != 1 {
		t.Errorf("node T[A] StructuralWarnings = %d, want 1", len(a.StructuralWarnings))
	}
	c, _ := res.Graph.GetNode("T[C]")
	if len(c.StructuralWarnings) != 0 {
		t.Errorf("node T[C] StructuralWarnings = %d, want 0", len(c.StructuralWarnings))
	}
}

func TestBuilder_CalculateWrappedCycleDetection(t *testing.T) {
	// The CALCULATE wrapper turns the inner call into a filter-propagation
	// edge; the mutual definition must still surface as a cycle.
	src := "table T\n\tcolumn X\n\tmeasure A = CALCULATE([B])\n\tmeasure B = [A] + SUM(T[X])\n"
	res := buildModel(t, src)

	if got := len(res.Graph.GetEdgesByType(EdgeTypeMeasureCall)); got != 1 {
		t.Errorf("measure-call edges = %d, want 1", got)
	}
	if got := len(res.Graph.GetEdgesByType(EdgeTypeFilterPropagation)); got != 1 {
		t.Errorf("filter-propagation edges = %d, want 1", got)
	}

	if len(res.StructuralWarnings) != 2 {
		t.Fatalf("StructuralWarnings = %d, want 2", len(res.StructuralWarnings))
	}
	for _, w := range res.StructuralWarnings {
		if len(w.Cycle) != 2 {
			t.Errorf("Cycle = %v, want 2 members", w.Cycle)
		}
	}
	for _, id := range []string{"T[A]", "T[B]"} {
		node, _ := res.Graph.GetNode(id)
		if len(node.StructuralWarnings) != 1 {
			t.Errorf("node %s StructuralWarnings = %d, want 1", id, len(node.StructuralWarnings))
		}
	}
}

func TestBuilder_SelfReferenceCycle(t *testing.T) {
	src := "table T\n\tcolumn X\n\tmeasure A = [A] + 1\n"
	res := buildModel(t, src)

	if len(res.StructuralWarnings) != 1 {
		t.Fatalf("StructuralWarnings = %d, want 1", len(res.StructuralWarnings))
	}
	if res.StructuralWarnings[0].EntityID != "T[A]" {
		t.Errorf("EntityID = %q, want T[A]", res.StructuralWarnings[0].EntityID)
	}
}

func TestBuilder_UnresolvedReference(t *testing.T) {
	// The measure still references a column that no longer exists.
	src := "table T\n\tcolumn Kept\n\tmeasure M = SUM(T[Removed]) + SUM(T[Kept])\n"
	res := buildModel(t, src)

	if len(res.AnalysisWarnings) != 1 {
		t.Fatalf("AnalysisWarnings = %d, want 1", len(res.AnalysisWarnings))
	}
	w := res.AnalysisWarnings[0]
	if w.Kind != dax.UnresolvedReference {
		t.Errorf("warning kind = %q, want unresolved", w.Kind)
	}
	if w.EntityID != "T[M]" {
		t.Errorf("warning entity = %q, want T[M]", w.EntityID)
	}

	node, _ := res.Graph.GetNode("T[M]")
	if len(node.AnalysisWarnings) != 1 {
		t.Errorf("node AnalysisWarnings = %d, want 1", len(node.AnalysisWarnings))
	}
	// The resolvable reference still produced an edge.
	deps, _ := res.Graph.Dependencies("T[M]")
	if len(deps) != 1 || deps[0] != "T[Kept]" {
		t.Errorf("Dependencies() = %v, want [T[Kept]]", deps)
	}
}

func TestBuilder_InvalidInput(t *testing.T) {
	if _, err := NewBuilder().Build(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Build(nil model) error = %v, want ErrInvalidInput", err)
	}
	if _, err := NewBuilder().Build(nil, nil); !errors.Is(err, ErrInvalidInput) { //nolint:staticcheck // exercising the nil guard
		t.Errorf("Build(nil ctx) error = %v, want ErrInvalidInput", err)
	}
}

func TestTarjanSCC(t *testing.T) {
	adj := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"d"},
		"e": {"a"},
	}
	comps := tarjanSCC(adj)
	if len(comps) != 2 {
		t.Fatalf("tarjanSCC() = %d components, want 2", len(comps))
	}
	if len(comps[0]) != 3 || comps[0][0] != "a" {
		t.Errorf("comps[0] = %v, want [a b c]", comps[0])
	}
	if len(comps[1]) != 1 || comps[1][0] != "d" {
		t.Errorf("comps[1] = %v, want [d]", comps[1])
	}
}
