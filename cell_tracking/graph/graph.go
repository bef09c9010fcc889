// Package graph provides the base flow graph data structures for cell tracking.
package graph

import (
	"fmt"
	"math"
)

// ErrEmptyCostVector is returned when an arc or node is created without costs.
var ErrEmptyCostVector = fmt.Errorf("graph: empty cost vector")

// NodeID identifies a node in a GraphStore. IDs are dense and stable.
type NodeID int

// ArcID identifies an arc in a GraphStore. IDs are dense and stable.
type ArcID int

// InvalidNode marks the absence of a node.
const InvalidNode NodeID = -1

// InvalidArc marks the absence of an arc.
const InvalidArc ArcID = -1

type arc struct {
	source NodeID
	target NodeID
	costs  []float64 // marginal cost of the n-th unit of flow
	flow   int
}

// GraphStore is a directed multigraph with per-arc cost vectors and integer
// flow, and a per-node timestep label. The length of an arc's cost vector is
// its capacity.
type GraphStore struct {
	arcs      []arc
	timesteps []int
	inArcs    [][]ArcID
	outArcs   [][]ArcID
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// AddNode adds a node with the given timestep label and returns its ID.
func (g *GraphStore) AddNode(timestep int) NodeID {
	id := NodeID(len(g.timesteps))
	g.timesteps = append(g.timesteps, timestep)
	g.inArcs = append(g.inArcs, nil)
	g.outArcs = append(g.outArcs, nil)
	return id
}

// AddArc adds a directed arc with the given marginal cost vector. The arc's
// capacity is len(costs).
func (g *GraphStore) AddArc(source, target NodeID, costs []float64) (ArcID, error) {
	if len(costs) == 0 {
		return InvalidArc, ErrEmptyCostVector
	}
	id := ArcID(len(g.arcs))
	c := make([]float64, len(costs))
	copy(c, costs)
	g.arcs = append(g.arcs, arc{source: source, target: target, costs: c})
	g.outArcs[source] = append(g.outArcs[source], id)
	g.inArcs[target] = append(g.inArcs[target], id)
	return id, nil
}

// NumNodes returns the number of nodes.
func (g *GraphStore) NumNodes() int { return len(g.timesteps) }

// NumArcs returns the number of arcs.
func (g *GraphStore) NumArcs() int { return len(g.arcs) }

// Source returns the source node of an arc.
func (g *GraphStore) Source(a ArcID) NodeID { return g.arcs[a].source }

// Target returns the target node of an arc.
func (g *GraphStore) Target(a ArcID) NodeID { return g.arcs[a].target }

// Costs returns the marginal cost vector of an arc.
func (g *GraphStore) Costs(a ArcID) []float64 { return g.arcs[a].costs }

// Capacity returns the capacity of an arc, the length of its cost vector.
func (g *GraphStore) Capacity(a ArcID) int { return len(g.arcs[a].costs) }

// Flow returns the current flow on an arc.
func (g *GraphStore) Flow(a ArcID) int { return g.arcs[a].flow }

// SetFlow overwrites the flow on an arc.
func (g *GraphStore) SetFlow(a ArcID, flow int) { g.arcs[a].flow = flow }

// AddFlow changes the flow on an arc by delta.
func (g *GraphStore) AddFlow(a ArcID, delta int) { g.arcs[a].flow += delta }

// Timestep returns the timestep label of a node.
func (g *GraphStore) Timestep(n NodeID) int { return g.timesteps[n] }

// SetTimestep overwrites the timestep label of a node.
func (g *GraphStore) SetTimestep(n NodeID, timestep int) { g.timesteps[n] = timestep }

// InArcs returns the in-arcs of a node in insertion order.
func (g *GraphStore) InArcs(n NodeID) []ArcID { return g.inArcs[n] }

// OutArcs returns the out-arcs of a node in insertion order.
func (g *GraphStore) OutArcs(n NodeID) []ArcID { return g.outArcs[n] }

// ArcCost returns the marginal cost of the n-th unit of flow on arc a:
// costs[n] within capacity, +Inf at or above capacity, -Inf below zero.
// Residual updates only ever query n = flow and n = flow-1.
func (g *GraphStore) ArcCost(a ArcID, n int) float64 {
	costs := g.arcs[a].costs
	if n < 0 {
		return math.Inf(-1)
	}
	if n >= len(costs) {
		return math.Inf(1)
	}
	return costs[n]
}

// SumInFlow returns the total flow entering a node.
func (g *GraphStore) SumInFlow(n NodeID) int {
	sum := 0
	for _, a := range g.inArcs[n] {
		sum += g.arcs[a].flow
	}
	return sum
}

// SumOutFlow returns the total flow leaving a node.
func (g *GraphStore) SumOutFlow(n NodeID) int {
	sum := 0
	for _, a := range g.outArcs[n] {
		sum += g.arcs[a].flow
	}
	return sum
}

// ResetFlows sets the flow on every arc back to zero.
func (g *GraphStore) ResetFlows() {
	for i := range g.arcs {
		g.arcs[i].flow = 0
	}
}
