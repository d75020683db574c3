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
	"fmt"
	"sort"
)

// Consumers returns the IDs of nodes that directly depend on the given node,
// sorted for deterministic output.
//
// Description:
//
//	Follows incoming edges one hop. For transitive consumers use the
//	impact analyzer, which applies depth caps and cycle guards.
func (g *Graph) Consumers(id string) ([]string, error) {
	if !g.IsFrozen() {
		return nil, ErrNotFrozen
	}
	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return neighborIDs(node.Incoming, func(e *Edge) string { return e.FromID }), nil
}

// Dependencies returns the IDs of nodes the given node directly depends on,
// sorted for deterministic output.
func (g *Graph) Dependencies(id string) ([]string, error) {
	if !g.IsFrozen() {
		return nil, ErrNotFrozen
	}
	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return neighborIDs(node.Outgoing, func(e *Edge) string { return e.ToID }), nil
}

// neighborIDs collects unique endpoint IDs from edges, sorted.
func neighborIDs(edges []*Edge, pick func(*Edge) string) []string {
	seen := make(map[string]struct{}, len(edges))
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		id := pick(e)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
