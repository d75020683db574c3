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

import "sort"

// tarjanSCC computes the strongly connected components of the subgraph
// induced by the given adjacency map, using an iterative Tarjan traversal so
// deep dependency chains cannot blow the call stack.
//
// Only components that contain a real cycle are returned: components of size
// greater than one, or single nodes with a self-edge. Each component's
// members are sorted and the component list is sorted by first member, so
// output is deterministic regardless of map iteration order.
func tarjanSCC(adj map[string][]string) [][]string {
	index := make(map[string]int, len(adj))
	lowlink := make(map[string]int, len(adj))
	onStack := make(map[string]bool, len(adj))
	var stack []string
	next := 0

	var components [][]string

	// Sorted roots keep the traversal order stable.
	roots := make([]string, 0, len(adj))
	for id := range adj {
		roots = append(roots, id)
	}
	sort.Strings(roots)

	type stackFrame struct {
		id   string
		edge int
	}

	for _, root := range roots {
		if _, visited := index[root]; visited {
			continue
		}
		frames := []stackFrame{{id: root}}
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.edge < len(adj[f.id]) {
				target := adj[f.id][f.edge]
				f.edge++
				if _, visited := index[target]; !visited {
					index[target] = next
					lowlink[target] = next
					next++
					stack = append(stack, target)
					onStack[target] = true
					frames = append(frames, stackFrame{id: target})
				} else if onStack[target] {
					if index[target] < lowlink[f.id] {
						lowlink[f.id] = index[target]
					}
				}
				continue
			}

			// Frame exhausted; pop a component if this is a root.
			if lowlink[f.id] == index[f.id] {
				var comp []string
				for {
					n := len(stack) - 1
					member := stack[n]
					stack = stack[:n]
					onStack[member] = false
					comp = append(comp, member)
					if member == f.id {
						break
					}
				}
				if isCycle(comp, adj) {
					sort.Strings(comp)
					components = append(components, comp)
				}
			}
			done := f.id
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if lowlink[done] < lowlink[parent.id] {
					lowlink[parent.id] = lowlink[done]
				}
			}
		}
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}

// isCycle reports whether a strongly connected component contains a cycle:
// more than one member, or a single member with a self-edge.
func isCycle(comp []string, adj map[string][]string) bool {
	if len(comp) > 1 {
		return true
	}
	id := comp[0]
	for _, target := range adj[id] {
		if target == id {
			return true
		}
	}
	return false
}
