// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph assembles the dependency graph over model entities.
//
// Nodes are model entities (tables, columns, measures, relationships) keyed
// by their stable identifiers; edges are the references extracted by
// expression analysis plus the traversal edges derived from declared
// relationships.
//
// # Ownership Model
//
// The graph stores pointers to entities but does NOT own them:
//   - Entities MUST NOT be mutated after being added via AddNode()
//   - The graph does NOT copy entities
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddNode, AddEdge calls)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the graph can be safely read from multiple goroutines.
//
// # Lifecycle
//
// A typical graph lifecycle:
//  1. Create with NewGraph(snapshotID)
//  2. Build with AddNode() and AddEdge() calls (usually via Builder)
//  3. Call Freeze() to finalize
//  4. Query with GetNode(), Consumers(), Dependencies(), etc.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	// Once Freeze() is called, the graph becomes read-only and no further
	// nodes or edges can be added.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a non-existent node.
	// Both source and target nodes must exist before an edge can be created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrInvalidNode is returned when attempting to add a nil entity.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidInput is returned when build input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFrozen is returned when a query that requires a finalized graph
	// runs against a graph still in the building state.
	ErrNotFrozen = errors.New("graph is not frozen")
)
