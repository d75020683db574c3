// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dax statically analyzes measure and calculated-column expressions.
//
// The analyzer does not evaluate expressions. It lexes the expression text,
// resolves bracketed and table references against the model's identifier
// namespace, and classifies each reference by how it affects dependency
// semantics. References nested inside filter-context functions (CALCULATE,
// USERELATIONSHIP, ALL, ...) are classified as filter-propagation because
// they change which rows downstream calculations see, which matters for
// impact analysis in a way a plain column read does not.
//
// # Resolution Policy
//
// Qualified references (Table[Name]) resolve exactly. Bare bracket
// references ([Name]) prefer a measure of that name anywhere in the model,
// then a column in the enclosing table, then columns elsewhere. When several
// entities share the short name and the enclosing table does not
// disambiguate, the analyzer emits an AmbiguousReference warning and picks
// the lexicographically first candidate so repeated runs are stable.
//
// # Error Handling
//
// Nothing in an expression is fatal. Unresolvable names produce
// UnresolvedReference warnings and analysis continues; bare identifiers that
// resolve to no table are assumed to be keywords or variables and skipped
// silently.
package dax

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// RefKind classifies how a reference affects dependency semantics.
type RefKind string

const (
	// ColumnRead is a plain value read of a column or table.
	ColumnRead RefKind = "column-read"

	// MeasureCall invokes another measure.
	MeasureCall RefKind = "measure-call"

	// RelationshipTraverse follows a declared relationship. Produced by the
	// graph builder from relationship declarations, never by the analyzer.
	RelationshipTraverse RefKind = "relationship-traverse"

	// FilterPropagation is a reference inside a filter-context function.
	FilterPropagation RefKind = "filter-propagation"
)

// Reference is one directed dependency extracted from an expression.
type Reference struct {
	// SourceID is the analyzed entity.
	SourceID string `json:"source_id"`

	// TargetID is the referenced entity.
	TargetID string `json:"target_id"`

	// Kind classifies the reference.
	Kind RefKind `json:"kind"`
}

// Result holds the references and warnings from one expression analysis.
type Result struct {
	References []Reference `json:"references"`
	Warnings   []Warning   `json:"warnings,omitempty"`
}

// filterFuncs are the functions whose arguments inject or override filter
// context rather than reading values.
var filterFuncs = map[string]struct{}{
	"CALCULATE":       {},
	"CALCULATETABLE":  {},
	"USERELATIONSHIP": {},
	"TREATAS":         {},
	"CROSSFILTER":     {},
	"ALL":             {},
	"ALLEXCEPT":       {},
	"ALLSELECTED":     {},
	"REMOVEFILTERS":   {},
	"KEEPFILTERS":     {},
	"FILTER":          {},
	"RELATED":         {},
	"RELATEDTABLE":    {},
}

// Analyze extracts entity references from one expression.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - expr: The expression text.
//   - enclosing: The measure or column owning the expression.
//   - model: The snapshot whose namespace names resolve against.
//
// # Outputs
//
//   - *Result: References deduplicated per kind and sorted by target then
//     kind, plus any warnings.
//   - error: ErrInvalidInput or a context error. Malformed expressions are
//     not errors; they yield warnings.
func Analyze(ctx context.Context, expr string, enclosing *tmdl.Entity, model *tmdl.Model) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if enclosing == nil || model == nil {
		return nil, fmt.Errorf("%w: nil enclosing entity or model", ErrInvalidInput)
	}

	a := &analysis{
		enclosing: enclosing,
		model:     model,
		seen:      make(map[string]struct{}),
	}
	a.walk(lex(expr))

	sort.Slice(a.result.References, func(i, j int) bool {
		ri, rj := a.result.References[i], a.result.References[j]
		if ri.TargetID != rj.TargetID {
			return ri.TargetID < rj.TargetID
		}
		return ri.Kind < rj.Kind
	})
	return &a.result, nil
}

// analysis carries the walk state for one expression.
type analysis struct {
	enclosing *tmdl.Entity
	model     *tmdl.Model
	result    Result
	seen      map[string]struct{}

	// filterDepth counts enclosing filter-context function frames.
	filterDepth int
}

// frame marks one open parenthesis and whether it opened a filter function.
type frame struct {
	filter bool
}

// walk drives the token scan with a paren-frame stack.
func (a *analysis) walk(toks []token) {
	var stack []frame
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.kind {
		case tokIdent:
			if i+1 < len(toks) && toks[i+1].kind == tokLParen {
				_, filter := filterFuncs[strings.ToUpper(t.text)]
				stack = append(stack, frame{filter: filter})
				if filter {
					a.filterDepth++
				}
				i++ // consume the paren
				continue
			}
			a.addTableRef(t.text)
		case tokQualifiedRef:
			a.addQualifiedRef(t.table, t.text)
		case tokBareRef:
			a.addBareRef(t.text)
		case tokLParen:
			stack = append(stack, frame{})
		case tokRParen:
			if n := len(stack); n > 0 {
				if stack[n-1].filter {
					a.filterDepth--
				}
				stack = stack[:n-1]
			}
		}
	}
}

// kindFor applies the filter-context override to a base reference kind.
func (a *analysis) kindFor(base RefKind) RefKind {
	if a.filterDepth > 0 {
		return FilterPropagation
	}
	return base
}

// add appends a reference, deduplicating per (target, kind).
func (a *analysis) add(targetID string, kind RefKind) {
	key := targetID + "\x00" + string(kind)
	if _, dup := a.seen[key]; dup {
		return
	}
	a.seen[key] = struct{}{}
	a.result.References = append(a.result.References, Reference{
		SourceID: a.enclosing.ID,
		TargetID: targetID,
		Kind:     kind,
	})
}

// warn appends an analysis warning.
func (a *analysis) warn(kind WarningKind, name, format string, args ...any) {
	a.result.Warnings = append(a.result.Warnings, Warning{
		Kind:     kind,
		EntityID: a.enclosing.ID,
		Name:     name,
		Message:  fmt.Sprintf(format, args...),
	})
}

// addTableRef records a bare identifier that names a table. Identifiers that
// resolve to nothing are keywords or variables, not references.
func (a *analysis) addTableRef(name string) {
	if t, ok := a.model.ResolveTable(name); ok {
		a.add(t.ID, a.kindFor(ColumnRead))
	}
}

// addQualifiedRef records a Table[Name] reference.
func (a *analysis) addQualifiedRef(table, name string) {
	if _, ok := a.model.ResolveTable(table); !ok {
		a.warn(UnresolvedReference, table+"["+name+"]", "table %q not found", table)
		return
	}
	e, ok := a.model.ResolveQualified(table, name)
	if !ok {
		a.warn(UnresolvedReference, table+"["+name+"]", "no column or measure %q in table %q", name, table)
		return
	}
	a.add(e.ID, a.kindFor(a.baseKind(e)))
}

// addBareRef records a [Name] reference using the resolution policy above.
func (a *analysis) addBareRef(name string) {
	if measures := a.model.MeasuresNamed(name); len(measures) > 0 {
		a.add(a.pick(measures, name).ID, a.kindFor(MeasureCall))
		return
	}
	columns := a.model.ColumnsNamed(name)
	if len(columns) == 0 {
		a.warn(UnresolvedReference, "["+name+"]", "no measure or column named %q", name)
		return
	}
	a.add(a.pick(columns, name).ID, a.kindFor(ColumnRead))
}

// pick chooses among same-named candidates: the enclosing table's entity if
// present, else the lexicographically first with an ambiguity warning.
func (a *analysis) pick(candidates []*tmdl.Entity, name string) *tmdl.Entity {
	if len(candidates) == 1 {
		return candidates[0]
	}
	for _, c := range candidates {
		if c.Table == a.enclosing.Table {
			return c
		}
	}
	a.warn(AmbiguousReference, "["+name+"]",
		"%q matches %d entities; resolved to %q", name, len(candidates), candidates[0].ID)
	return candidates[0]
}

// baseKind maps an entity to its unfiltered reference kind.
func (a *analysis) baseKind(e *tmdl.Entity) RefKind {
	if e.Kind == tmdl.KindMeasure {
		return MeasureCall
	}
	return ColumnRead
}
