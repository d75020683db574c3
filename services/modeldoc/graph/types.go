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
	"time"

	"github.com/AleutianAI/modeldoc/services/modeldoc/dax"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
	DefaultMaxNodes = 100_000

	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	DefaultMaxEdges = 1_000_000
)

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// EdgeType defines the kind of dependency between entities.
type EdgeType int

const (
	// EdgeTypeUnknown indicates an unrecognized dependency kind.
	EdgeTypeUnknown EdgeType = iota

	// EdgeTypeColumnRead indicates an expression reads a column or table.
	EdgeTypeColumnRead

	// EdgeTypeMeasureCall indicates a measure invokes another measure.
	EdgeTypeMeasureCall

	// EdgeTypeRelationshipTraverse indicates a declared relationship connects
	// two columns. Emitted in both directions, tagged with Direction.
	EdgeTypeRelationshipTraverse

	// EdgeTypeFilterPropagation indicates a reference inside a filter-context
	// function.
	EdgeTypeFilterPropagation

	// NumEdgeTypes is the total number of edge types (for array sizing).
	NumEdgeTypes
)

// edgeTypeNames maps EdgeType values to their string representations.
var edgeTypeNames = map[EdgeType]string{
	EdgeTypeUnknown:              "unknown",
	EdgeTypeColumnRead:           "column-read",
	EdgeTypeMeasureCall:          "measure-call",
	EdgeTypeRelationshipTraverse: "relationship-traverse",
	EdgeTypeFilterPropagation:    "filter-propagation",
}

// String returns the string representation of the EdgeType.
func (t EdgeType) String() string {
	if name, ok := edgeTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// EdgeTypeForKind maps an analyzer reference kind to an edge type.
func EdgeTypeForKind(kind dax.RefKind) EdgeType {
	switch kind {
	case dax.ColumnRead:
		return EdgeTypeColumnRead
	case dax.MeasureCall:
		return EdgeTypeMeasureCall
	case dax.RelationshipTraverse:
		return EdgeTypeRelationshipTraverse
	case dax.FilterPropagation:
		return EdgeTypeFilterPropagation
	default:
		return EdgeTypeUnknown
	}
}

// Direction tags a relationship-traverse edge with its declared orientation.
type Direction string

const (
	// DirectionForward follows the relationship from its from-column to its
	// to-column.
	DirectionForward Direction = "forward"

	// DirectionReverse follows the relationship against its declaration.
	DirectionReverse Direction = "reverse"
)

// Edge represents a directed dependency between two entities. The source
// depends on the target.
//
// Multiple edges between the same nodes are allowed when their types differ;
// within a type they are deduplicated by the builder.
type Edge struct {
	// FromID is the ID of the depending node.
	FromID string

	// ToID is the ID of the depended-upon node.
	ToID string

	// Type is the dependency kind.
	Type EdgeType

	// Direction is set on relationship-traverse edges only.
	Direction Direction
}

// StructuralWarning flags an entity participating in a circular measure
// definition.
//
// Mutually deferred measures resolve at evaluation time in tabular engines,
// so a cycle is flagged on every participant but never rejected.
type StructuralWarning struct {
	// EntityID is the measure participating in the cycle.
	EntityID string `json:"entity_id"`

	// Cycle lists the member identifiers of the strongly connected
	// component, sorted.
	Cycle []string `json:"cycle"`

	// Message is a human-readable explanation.
	Message string `json:"message"`
}

// Node represents an entity in the dependency graph.
//
// The Entity pointer is NOT owned by the Node. The referenced Entity
// MUST NOT be mutated after the Node is added to a Graph.
type Node struct {
	// ID is the unique identifier, same as Entity.ID.
	ID string

	// Entity is the underlying parsed entity.
	Entity *tmdl.Entity

	// Outgoing contains edges where this node is the source, i.e. the
	// entities this node depends on.
	Outgoing []*Edge

	// Incoming contains edges where this node is the target, i.e. the
	// entities depending on this node.
	Incoming []*Edge

	// AnalysisWarnings holds the expression-analysis findings for this
	// node's expression, if any.
	AnalysisWarnings []dax.Warning

	// StructuralWarnings holds cycle findings involving this node, if any.
	StructuralWarnings []StructuralWarning
}

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 100,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 1,000,000
	MaxEdges int
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// Graph represents the dependency graph for one model snapshot.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use during building. It is designed
//	for single-writer access during build, then read-only after Freeze().
type Graph struct {
	// SnapshotID identifies the model snapshot this graph was built from.
	SnapshotID string

	// nodes maps node ID to Node. Unexported to prevent direct access.
	nodes map[string]*Node

	// edges contains all edges in the graph.
	edges []*Edge

	// nodesByKind maps entity kind to nodes of that kind.
	// Thread safety: Writes during build only, reads after Freeze().
	nodesByKind map[tmdl.EntityKind][]*Node

	// edgesByType stores edges grouped by their type.
	// Array indexed by EdgeType for cache-friendly access.
	// Thread safety: Writes during build only, reads after Freeze().
	edgesByType [NumEdgeTypes][]*Edge

	// state is the current lifecycle state.
	state GraphState

	// options contains configuration.
	options GraphOptions

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze() was
	// called. Zero if the graph has not been frozen.
	BuiltAtMilli int64
}

// NewGraph creates a new empty graph for the given model snapshot.
//
// Description:
//
//	Creates a graph in the Building state, ready to accept AddNode and
//	AddEdge calls. The graph must be frozen with Freeze() before querying.
//
// Inputs:
//
//	snapshotID - Identifier of the model snapshot being indexed.
//	opts - Optional configuration options.
func NewGraph(snapshotID string, opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		SnapshotID:  snapshotID,
		nodes:       make(map[string]*Node),
		edges:       make([]*Edge, 0),
		nodesByKind: make(map[tmdl.EntityKind][]*Node),
		state:       GraphStateBuilding,
		options:     options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode.
//
// Description:
//
//	After calling Freeze(), AddNode and AddEdge will return ErrGraphFrozen.
//	This operation is irreversible.
//
// Thread Safety:
//
//	After Freeze() returns, the graph can be safely read from multiple
//	goroutines concurrently.
func (g *Graph) Freeze() {
	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AddNode adds an entity as a node in the graph.
//
// Description:
//
//	Creates a new node from the given entity and adds it to the graph.
//	The entity's ID becomes the node's ID.
//
// Outputs:
//
//	*Node - The created node.
//	error - Non-nil if the graph is frozen, at capacity, or the entity is
//	        nil or a duplicate.
//
// Ownership:
//
//	The graph stores a pointer to the entity but does NOT own it.
//	The entity MUST NOT be mutated after this call.
func (g *Graph) AddNode(entity *tmdl.Entity) (*Node, error) {
	if g.state == GraphStateReadOnly {
		return nil, ErrGraphFrozen
	}

	if entity == nil {
		return nil, fmt.Errorf("%w: entity is nil", ErrInvalidNode)
	}

	if len(g.nodes) >= g.options.MaxNodes {
		return nil, ErrMaxNodesExceeded
	}

	if _, exists := g.nodes[entity.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, entity.ID)
	}

	node := &Node{
		ID:       entity.ID,
		Entity:   entity,
		Outgoing: make([]*Edge, 0),
		Incoming: make([]*Edge, 0),
	}

	g.nodes[entity.ID] = node
	g.nodesByKind[entity.Kind] = append(g.nodesByKind[entity.Kind], node)

	return node, nil
}

// GetNode retrieves a node by its ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// AddEdge creates a directed dependency edge between two nodes.
//
// Description:
//
//	Creates an edge from the depending node to the depended-upon node.
//	Both nodes must already exist in the graph. Self-loops are allowed;
//	a measure whose expression names itself is a structural problem the
//	cycle detector reports, not an insertion error.
//
// Outputs:
//
//	error - Non-nil if the graph is frozen, at capacity, or a node is
//	        missing.
func (g *Graph) AddEdge(fromID, toID string, edgeType EdgeType, direction Direction) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}

	if len(g.edges) >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}

	fromNode, fromOK := g.nodes[fromID]
	if !fromOK {
		return fmt.Errorf("%w: source %s", ErrNodeNotFound, fromID)
	}

	toNode, toOK := g.nodes[toID]
	if !toOK {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, toID)
	}

	edge := &Edge{
		FromID:    fromID,
		ToID:      toID,
		Type:      edgeType,
		Direction: direction,
	}

	g.edges = append(g.edges, edge)
	fromNode.Outgoing = append(fromNode.Outgoing, edge)
	toNode.Incoming = append(toNode.Incoming, edge)

	if edgeType >= 0 && edgeType < NumEdgeTypes {
		g.edgesByType[edgeType] = append(g.edgesByType[edgeType], edge)
	}

	return nil
}

// Nodes returns an iterator function over all nodes in the graph.
//
// Example:
//
//	for id, node := range g.Nodes() {
//	    fmt.Printf("node: %s\n", id)
//	}
func (g *Graph) Nodes() func(yield func(string, *Node) bool) {
	return func(yield func(string, *Node) bool) {
		for id, node := range g.nodes {
			if !yield(id, node) {
				return
			}
		}
	}
}

// Edges returns a slice of all edges in the graph.
//
// Description:
//
//	Returns the internal edge slice. Callers should NOT modify the
//	returned slice.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// GetNodesByKind returns all nodes of the given entity kind.
//
// Description:
//
//	Uses the secondary index for O(1) lookup. Returns a defensive copy to
//	prevent external mutation.
func (g *Graph) GetNodesByKind(kind tmdl.EntityKind) []*Node {
	nodes := g.nodesByKind[kind]
	if len(nodes) == 0 {
		return []*Node{}
	}
	result := make([]*Node, len(nodes))
	copy(result, nodes)
	return result
}

// GetEdgesByType returns all edges of the given type.
//
// Description:
//
//	Uses the secondary index for O(1) lookup. Returns a defensive copy to
//	prevent external mutation.
func (g *Graph) GetEdgesByType(edgeType EdgeType) []*Edge {
	if edgeType < 0 || edgeType >= NumEdgeTypes {
		return []*Edge{}
	}
	edges := g.edgesByType[edgeType]
	if len(edges) == 0 {
		return []*Edge{}
	}
	result := make([]*Edge, len(edges))
	copy(result, edges)
	return result
}

// GraphStats contains statistics about the graph.
type GraphStats struct {
	// NodeCount is the total number of nodes.
	NodeCount int

	// EdgeCount is the total number of edges.
	EdgeCount int

	// EdgesByType maps each EdgeType to the count of edges of that type.
	EdgesByType map[EdgeType]int

	// NodesByKind maps each entity kind to the count of nodes of that kind.
	NodesByKind map[tmdl.EntityKind]int

	// State is the current graph state.
	State GraphState

	// BuiltAtMilli is when Freeze() was called (0 if not frozen).
	BuiltAtMilli int64
}

// Stats returns statistics about the graph.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs. Not safe during building.
func (g *Graph) Stats() GraphStats {
	edgesByType := make(map[EdgeType]int)
	for i := 0; i < int(NumEdgeTypes); i++ {
		if count := len(g.edgesByType[i]); count > 0 {
			edgesByType[EdgeType(i)] = count
		}
	}

	nodesByKind := make(map[tmdl.EntityKind]int)
	for kind, nodes := range g.nodesByKind {
		if len(nodes) > 0 {
			nodesByKind[kind] = len(nodes)
		}
	}

	return GraphStats{
		NodeCount:    len(g.nodes),
		EdgeCount:    len(g.edges),
		EdgesByType:  edgesByType,
		NodesByKind:  nodesByKind,
		State:        g.state,
		BuiltAtMilli: g.BuiltAtMilli,
	}
}
