// Package algorithm implements the constrained min-cost flow solvers used for
// cell tracking: the residual graph with token side constraints, the
// Bellman-Ford path search, the successive-shortest-paths tracking loop, and
// the reference max-flow-then-min-cost solver.
package algorithm

import (
	"math"
	"sort"

	"tracking/cell_tracking/graph"
)

// Direction selects the forward or backward residual copy of a base arc.
type Direction int

const (
	// Forward is the residual arc running with the base arc.
	Forward Direction = iota
	// Backward is the residual arc running against the base arc.
	Backward
)

// residualArc is one directed copy of a base arc in the residual graph.
// Tokens express conditional exclusions between arcs on a single path: an arc
// may not be taken if any of its forbidden tokens was provided earlier on the
// path.
type residualArc struct {
	cost      float64
	capacity  int
	enabled   bool
	provided  []int
	forbidden []int
}

// ResidualGraph mirrors a GraphStore with a forward and a backward residual
// arc per base arc. It owns the search state of the shortest path finder so
// that consecutive searches can reuse labels after partial updates.
type ResidualGraph struct {
	store  *graph.GraphStore
	source graph.NodeID

	fwd []residualArc
	bwd []residualArc

	useBackArcs bool
	nodeOrder   []graph.NodeID // relaxation order; by timestep when ordered BF is on

	// Bellman-Ford state, kept across searches for partial updates
	dist     []float64
	predArc  []graph.ArcID
	predDir  []Direction
	tokens   [][]int
	hasState bool
	dirty    map[graph.ArcID]struct{}
}

// NewResidualGraph builds the residual mirror of store. All residual arcs
// start disabled with zero capacity; the caller refreshes them from the base
// flow and enables them before the first search.
func NewResidualGraph(store *graph.GraphStore, source graph.NodeID, useBackArcs, useOrderedNodeList bool) *ResidualGraph {
	rg := &ResidualGraph{
		store:       store,
		source:      source,
		fwd:         make([]residualArc, store.NumArcs()),
		bwd:         make([]residualArc, store.NumArcs()),
		useBackArcs: useBackArcs,
		dirty:       make(map[graph.ArcID]struct{}),
	}

	rg.nodeOrder = make([]graph.NodeID, store.NumNodes())
	for i := range rg.nodeOrder {
		rg.nodeOrder[i] = graph.NodeID(i)
	}
	if useOrderedNodeList {
		sort.SliceStable(rg.nodeOrder, func(i, j int) bool {
			return store.Timestep(rg.nodeOrder[i]) < store.Timestep(rg.nodeOrder[j])
		})
	}

	return rg
}

func (rg *ResidualGraph) arc(a graph.ArcID, dir Direction) *residualArc {
	if dir == Forward {
		return &rg.fwd[a]
	}
	return &rg.bwd[a]
}

// UpdateArc overwrites the residual cost and capacity of one residual arc.
func (rg *ResidualGraph) UpdateArc(a graph.ArcID, dir Direction, cost float64, capacity int) {
	ra := rg.arc(a, dir)
	ra.cost = cost
	ra.capacity = capacity
	rg.dirty[a] = struct{}{}
}

// EnableArc flips the enabled bit of one residual arc.
func (rg *ResidualGraph) EnableArc(a graph.ArcID, dir Direction, enabled bool) {
	ra := rg.arc(a, dir)
	if ra.enabled != enabled {
		ra.enabled = enabled
		rg.dirty[a] = struct{}{}
	}
}

// EnableBaseArc flips both residual copies of a base arc.
func (rg *ResidualGraph) EnableBaseArc(a graph.ArcID, enabled bool) {
	rg.EnableArc(a, Forward, enabled)
	rg.EnableArc(a, Backward, enabled)
}

// Enabled reports the enabled bit of one residual arc.
func (rg *ResidualGraph) Enabled(a graph.ArcID, dir Direction) bool {
	return rg.arc(a, dir).enabled
}

// AddProvidedToken marks a residual arc as providing a token when taken.
func (rg *ResidualGraph) AddProvidedToken(a graph.ArcID, dir Direction, token int) {
	ra := rg.arc(a, dir)
	ra.provided = append(ra.provided, token)
}

// AddForbiddenToken excludes a residual arc from any path that has provided
// the token earlier.
func (rg *ResidualGraph) AddForbiddenToken(a graph.ArcID, dir Direction, token int) {
	ra := rg.arc(a, dir)
	ra.forbidden = append(ra.forbidden, token)
}

func hasToken(set []int, token int) bool {
	for _, t := range set {
		if t == token {
			return true
		}
	}
	return false
}

func anyForbidden(forbidden, have []int) bool {
	for _, t := range forbidden {
		if hasToken(have, t) {
			return true
		}
	}
	return false
}

func unionTokens(have, provided []int) []int {
	if len(provided) == 0 {
		return have
	}
	merged := make([]int, len(have), len(have)+len(provided))
	copy(merged, have)
	for _, t := range provided {
		if !hasToken(merged, t) {
			merged = append(merged, t)
		}
	}
	return merged
}

// tail returns the node a residual arc leaves from.
func (rg *ResidualGraph) tail(a graph.ArcID, dir Direction) graph.NodeID {
	if dir == Forward {
		return rg.store.Source(a)
	}
	return rg.store.Target(a)
}

// head returns the node a residual arc points at.
func (rg *ResidualGraph) head(a graph.ArcID, dir Direction) graph.NodeID {
	if dir == Forward {
		return rg.store.Target(a)
	}
	return rg.store.Source(a)
}

func (rg *ResidualGraph) ensureState() {
	n := rg.store.NumNodes()
	if len(rg.dist) == n {
		return
	}
	rg.dist = make([]float64, n)
	rg.predArc = make([]graph.ArcID, n)
	rg.predDir = make([]Direction, n)
	rg.tokens = make([][]int, n)
	rg.hasState = false
}

func (rg *ResidualGraph) resetState() {
	for i := range rg.dist {
		rg.dist[i] = math.Inf(1)
		rg.predArc[i] = graph.InvalidArc
		rg.tokens[i] = nil
	}
	rg.dist[rg.source] = 0
}
