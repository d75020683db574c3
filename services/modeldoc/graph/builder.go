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
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modeldoc/services/modeldoc/dax"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// BuildOptions configures graph construction.
type BuildOptions struct {
	// Parallelism bounds the number of concurrent expression analyses.
	// Default: GOMAXPROCS.
	Parallelism int

	// GraphOptions are passed through to the constructed graph.
	GraphOptions []GraphOption

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// BuildOption is a functional option for configuring a Builder.
type BuildOption func(*BuildOptions)

// WithParallelism bounds the number of concurrent expression analyses.
func WithParallelism(n int) BuildOption {
	return func(o *BuildOptions) {
		o.Parallelism = n
	}
}

// WithGraphOptions passes options through to the constructed graph.
func WithGraphOptions(opts ...GraphOption) BuildOption {
	return func(o *BuildOptions) {
		o.GraphOptions = append(o.GraphOptions, opts...)
	}
}

// WithLogger sets the logger used during builds.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *BuildOptions) {
		o.Logger = logger
	}
}

// Builder assembles a frozen dependency graph from a parsed model.
//
// A Builder is stateless between Build calls and safe for concurrent use;
// each call works on its own graph.
type Builder struct {
	opts BuildOptions
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...BuildOption) *Builder {
	options := BuildOptions{
		Parallelism: runtime.GOMAXPROCS(0),
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Parallelism < 1 {
		options.Parallelism = 1
	}
	return &Builder{opts: options}
}

// BuildResult holds the frozen graph and the non-fatal findings collected
// while building it.
type BuildResult struct {
	// Graph is the frozen dependency graph.
	Graph *Graph

	// AnalysisWarnings aggregates expression-analysis findings across all
	// entities, sorted by entity ID.
	AnalysisWarnings []dax.Warning

	// StructuralWarnings aggregates cycle findings, sorted by entity ID.
	StructuralWarnings []StructuralWarning
}

// Build constructs the dependency graph for a model snapshot.
//
// Description:
//
//	Runs four phases: node collection, parallel expression analysis,
//	edge extraction (analyzer references plus declared relationships),
//	and measure definition cycle detection. Expression analyses for different
//	entities have no data dependency and run concurrently; edge insertion
//	waits for all of them.
//
// Outputs:
//
//	*BuildResult - The frozen graph plus warnings. Warnings are non-fatal;
//	               a result with warnings is still usable.
//	error - ErrInvalidInput, a context error, or a capacity error.
func (b *Builder) Build(ctx context.Context, model *tmdl.Model) (*BuildResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidInput)
	}
	start := time.Now()

	g := NewGraph(model.SnapshotID, b.opts.GraphOptions...)
	if err := b.collectNodes(g, model); err != nil {
		return nil, err
	}

	results, err := b.analyzeExpressions(ctx, model)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{Graph: g}
	if err := b.extractEdges(g, model, results, res); err != nil {
		return nil, err
	}
	b.detectCycles(g, res)

	g.Freeze()
	recordBuild(ctx, time.Since(start), g.NodeCount(), g.EdgeCount())
	b.opts.Logger.DebugContext(ctx, "graph build complete",
		"snapshot", model.SnapshotID,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"analysis_warnings", len(res.AnalysisWarnings),
		"structural_warnings", len(res.StructuralWarnings),
	)
	return res, nil
}

// collectNodes adds every entity of the model as a graph node.
func (b *Builder) collectNodes(g *Graph, model *tmdl.Model) error {
	for _, e := range model.All() {
		if _, err := g.AddNode(e); err != nil {
			return err
		}
	}
	return nil
}

// analyzeExpressions runs the expression analyzer over every calculated
// entity. The analyses are independent and run under a bounded errgroup;
// edge extraction is the join point.
func (b *Builder) analyzeExpressions(ctx context.Context, model *tmdl.Model) ([]*dax.Result, error) {
	var calculated []*tmdl.Entity
	for _, e := range model.All() {
		if e.IsCalculated() {
			calculated = append(calculated, e)
		}
	}

	results := make([]*dax.Result, len(calculated))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Parallelism)
	for i, e := range calculated {
		i, e := i, e
		eg.Go(func() error {
			res, err := dax.Analyze(egCtx, e.Expression, e, model)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// extractEdges merges analyzer references with declaration-derived
// relationship edges and attaches analysis warnings to their nodes.
func (b *Builder) extractEdges(g *Graph, model *tmdl.Model, results []*dax.Result, out *BuildResult) error {
	for _, res := range results {
		for _, ref := range res.References {
			if err := g.AddEdge(ref.SourceID, ref.TargetID, EdgeTypeForKind(ref.Kind), ""); err != nil {
				return err
			}
		}
		for _, w := range res.Warnings {
			if node, ok := g.GetNode(w.EntityID); ok {
				node.AnalysisWarnings = append(node.AnalysisWarnings, w)
			}
			out.AnalysisWarnings = append(out.AnalysisWarnings, w)
		}
	}

	// Declared relationships connect their endpoint columns in both
	// directions so reachability sees filter flow either way, and the
	// relationship node itself depends on both columns so a removed column
	// impacts the relationship.
	for _, e := range model.Entities {
		if e.Kind != tmdl.KindRelationship {
			continue
		}
		fromCol := tmdl.ColumnID(e.Rel.FromTable, e.Rel.FromColumn)
		toCol := tmdl.ColumnID(e.Rel.ToTable, e.Rel.ToColumn)
		edges := []struct {
			from, to  string
			direction Direction
		}{
			{fromCol, toCol, DirectionForward},
			{toCol, fromCol, DirectionReverse},
			{e.ID, fromCol, ""},
			{e.ID, toCol, ""},
		}
		for _, edge := range edges {
			if err := g.AddEdge(edge.from, edge.to, EdgeTypeRelationshipTraverse, edge.direction); err != nil {
				return err
			}
		}
	}

	sort.Slice(out.AnalysisWarnings, func(i, j int) bool {
		wi, wj := out.AnalysisWarnings[i], out.AnalysisWarnings[j]
		if wi.EntityID != wj.EntityID {
			return wi.EntityID < wj.EntityID
		}
		return wi.Name < wj.Name
	})
	return nil
}

// detectCycles runs SCC detection over the measure-to-measure subgraph and
// flags every participant of each cycle.
//
// Every edge between two measures counts, whatever its kind: a CALCULATE
// wrapper reclassifies the inner call as filter-propagation, but the
// definition is no less circular for it.
func (b *Builder) detectCycles(g *Graph, out *BuildResult) {
	measures := make(map[string]struct{})
	adj := make(map[string][]string)
	for _, node := range g.GetNodesByKind(tmdl.KindMeasure) {
		measures[node.ID] = struct{}{}
		adj[node.ID] = nil
	}
	for id := range measures {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		seen := make(map[string]struct{})
		for _, e := range node.Outgoing {
			if _, isMeasure := measures[e.ToID]; !isMeasure {
				continue
			}
			if _, dup := seen[e.ToID]; dup {
				continue
			}
			seen[e.ToID] = struct{}{}
			adj[id] = append(adj[id], e.ToID)
		}
	}
	for id := range adj {
		sort.Strings(adj[id])
	}

	for _, comp := range tarjanSCC(adj) {
		msg := fmt.Sprintf("circular measure definition: %s", strings.Join(comp, " -> "))
		for _, id := range comp {
			w := StructuralWarning{
				EntityID: id,
				Cycle:    comp,
				Message:  msg,
			}
			if node, ok := g.GetNode(id); ok {
				node.StructuralWarnings = append(node.StructuralWarnings, w)
			}
			out.StructuralWarnings = append(out.StructuralWarnings, w)
		}
	}

	sort.Slice(out.StructuralWarnings, func(i, j int) bool {
		return out.StructuralWarnings[i].EntityID < out.StructuralWarnings[j].EntityID
	})
}
