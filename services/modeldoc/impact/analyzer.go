// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impact computes which entities and reports a change reaches.
//
// Impact is backward reachability: the consumers of a changed entity are the
// nodes whose edges point at it, transitively, found by breadth-first
// traversal over incoming edges. The traversal carries a hard depth cap so
// malformed cyclic input cannot loop; the default cap is the graph order,
// which is unbounded in practice.
//
// A Removed entity is analyzed against the old graph, because its own edges
// have already vanished from the new one. Added and Modified entities use
// the new graph.
package impact

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// Sentinel errors for impact analysis.
var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Analyze computes the impact of every record in a change set.
//
// Records have no data dependency on each other and are analyzed
// concurrently under a bounded errgroup; both graphs are frozen and the
// consumer index must be safe for concurrent reads.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - cs: The change set to assess.
//   - oldGraph: Graph of the old snapshot; Removed records traverse it.
//   - newGraph: Graph of the new snapshot; Added and Modified records
//     traverse it.
//   - index: Consumer index collaborator. May be nil, in which case no
//     report identifiers are attached.
//
// # Outputs
//
//   - *Report: One entry per change record, including empty ones.
//   - error: ErrInvalidInput or a context error.
func Analyze(ctx context.Context, cs *diff.ChangeSet, oldGraph, newGraph *graph.Graph, index ConsumerIndex, opts ...AnalyzeOption) (*Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cs == nil || oldGraph == nil || newGraph == nil {
		return nil, fmt.Errorf("%w: nil change set or graph", ErrInvalidInput)
	}
	start := time.Now()

	var options AnalyzeOptions
	for _, opt := range opts {
		opt(&options)
	}
	parallelism := options.Parallelism
	if parallelism < 1 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	report := &Report{
		OldSnapshotID: cs.OldSnapshotID,
		NewSnapshotID: cs.NewSnapshotID,
		MaxDepth:      options.MaxDepth,
		Entries:       make(map[string]Entry, len(cs.Records)),
	}

	entries := make([]Entry, len(cs.Records))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)
	for i, rec := range cs.Records {
		i, rec := i, rec
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			g := newGraph
			if rec.Type == diff.Removed {
				g = oldGraph
			}
			depth := options.MaxDepth
			if depth <= 0 {
				depth = g.NodeCount()
			}
			entries[i] = analyzeEntity(g, rec.EntityID, depth, index)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for i, rec := range cs.Records {
		report.Entries[rec.EntityID] = entries[i]
	}

	recordAnalysis(ctx, time.Since(start), len(cs.Records))
	return report, nil
}

// analyzeEntity computes one entry: affected consumers by backward BFS, and
// report identifiers over the changed entity, its consumers, and its
// dependencies.
func analyzeEntity(g *graph.Graph, entityID string, maxDepth int, index ConsumerIndex) Entry {
	if _, ok := g.GetNode(entityID); !ok {
		// A record can reference an entity absent from the traversal graph
		// only when callers mix snapshots; treat as isolated.
		return Entry{Affected: []string{}, Reports: reportsFor(index, map[string]struct{}{entityID: {}})}
	}

	affected, truncated := traverse(g, entityID, maxDepth, incoming)
	dependencies, _ := traverse(g, entityID, maxDepth, outgoing)

	// Reports are collected over the changed entity, everything it reaches
	// in either direction, and the tables those entities live in. Consumer
	// inventories key on tables as often as on individual columns.
	scope := make(map[string]struct{}, len(affected)+len(dependencies)+1)
	scope[entityID] = struct{}{}
	for id := range affected {
		scope[id] = struct{}{}
	}
	for id := range dependencies {
		scope[id] = struct{}{}
	}
	for id := range scope {
		if table, name := tmdl.SplitQualified(id); name != "" {
			scope[table] = struct{}{}
		}
	}

	return Entry{
		Affected:  sortedIDs(affected),
		Reports:   reportsFor(index, scope),
		Truncated: truncated,
	}
}

// edgePick selects which endpoint of a node's edge set a traversal follows.
type edgePick func(n *graph.Node) []string

func incoming(n *graph.Node) []string {
	out := make([]string, 0, len(n.Incoming))
	for _, e := range n.Incoming {
		out = append(out, e.FromID)
	}
	return out
}

func outgoing(n *graph.Node) []string {
	out := make([]string, 0, len(n.Outgoing))
	for _, e := range n.Outgoing {
		out = append(out, e.ToID)
	}
	return out
}

// traverse runs a depth-capped BFS from start, excluding start itself from
// the result. Returns the visited set and whether the cap cut off unvisited
// nodes; a traversal whose fixpoint coincides with the cap is complete, not
// truncated.
func traverse(g *graph.Graph, start string, maxDepth int, pick edgePick) (map[string]struct{}, bool) {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			node, ok := g.GetNode(id)
			if !ok {
				continue
			}
			for _, neighbor := range pick(node) {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	// Peek at the final frontier's neighbors without enqueueing them.
	truncated := false
frontierScan:
	for _, id := range frontier {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		for _, neighbor := range pick(node) {
			if _, seen := visited[neighbor]; !seen {
				truncated = true
				break frontierScan
			}
		}
	}

	delete(visited, start)
	return visited, truncated
}

// sortedIDs flattens a set into a sorted slice. Never nil, so JSON output
// renders an empty array rather than null.
func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// reportsFor unions the consumer index over a scope of entity identifiers.
func reportsFor(index ConsumerIndex, scope map[string]struct{}) []string {
	if index == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for id := range scope {
		for _, report := range index.ReportsFor(id) {
			seen[report] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	return sortedIDs(seen)
}
