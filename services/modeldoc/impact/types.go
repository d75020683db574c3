// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

// ConsumerIndex maps entity identifiers to the external report identifiers
// known to consume them.
//
// Report inventories live outside the model file, so the index is a
// collaborator interface supplied by the caller and refreshed independently
// of model changes. Implementations must be safe for concurrent reads.
type ConsumerIndex interface {
	// ReportsFor returns the report identifiers consuming the given entity.
	// Unknown entities return nil.
	ReportsFor(entityID string) []string
}

// MapConsumerIndex is a ConsumerIndex backed by a plain map. The map must
// not be mutated after being handed to the analyzer.
type MapConsumerIndex map[string][]string

// ReportsFor implements ConsumerIndex.
func (m MapConsumerIndex) ReportsFor(entityID string) []string {
	return m[entityID]
}

// Entry is the computed impact of one changed entity.
type Entry struct {
	// Affected lists the entity identifiers transitively depending on the
	// changed entity, sorted. The changed entity itself is excluded.
	Affected []string `json:"affected"`

	// Reports lists the external report identifiers consuming the changed
	// entity, anything affected by it, or anything it depends on. Sorted.
	Reports []string `json:"reports,omitempty"`

	// Truncated is true when the traversal hit the depth cap before
	// exhausting reachable nodes.
	Truncated bool `json:"truncated,omitempty"`
}

// Report maps every changed entity's identifier to its impact entry.
//
// The mapping is total over the change set: entities whose impact is empty
// still have an entry.
type Report struct {
	// OldSnapshotID identifies the old snapshot of the underlying diff.
	OldSnapshotID string `json:"old_snapshot_id"`

	// NewSnapshotID identifies the new snapshot of the underlying diff.
	NewSnapshotID string `json:"new_snapshot_id"`

	// MaxDepth is the traversal depth cap that was applied.
	MaxDepth int `json:"max_depth"`

	// Entries maps changed entity ID to its impact.
	Entries map[string]Entry `json:"entries"`
}

// TotalAffected returns the union size of all affected entity sets.
func (r *Report) TotalAffected() int {
	seen := make(map[string]struct{})
	for _, e := range r.Entries {
		for _, id := range e.Affected {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// AnalyzeOptions configures impact analysis.
type AnalyzeOptions struct {
	// MaxDepth caps the backward traversal. Zero means the graph order of
	// whichever graph a record is analyzed against, which is unbounded in
	// practice but still terminates on cyclic input.
	MaxDepth int

	// Parallelism bounds concurrent per-record analyses. Default: GOMAXPROCS.
	Parallelism int
}

// AnalyzeOption is a functional option for configuring analysis.
type AnalyzeOption func(*AnalyzeOptions)

// WithMaxDepth caps the traversal depth.
func WithMaxDepth(depth int) AnalyzeOption {
	return func(o *AnalyzeOptions) {
		o.MaxDepth = depth
	}
}

// WithParallelism bounds the number of concurrent per-record analyses.
func WithParallelism(n int) AnalyzeOption {
	return func(o *AnalyzeOptions) {
		o.Parallelism = n
	}
}
