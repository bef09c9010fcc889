package algorithm

import (
	"math"

	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/graph"
)

// Step is one residual arc on an augmenting path or cycle: the base arc plus
// the flow delta (+1 forward, -1 backward).
type Step struct {
	Arc   graph.ArcID
	Delta int
}

// Path is a sequence of augmentation steps, ordered from source to target for
// paths and in traversal order for cycles.
type Path []Step

// ShortestPathResult is the outcome of one search: the lowest-cost valid path
// from the source to a target, or the lowest-cost negative cycle found, plus
// its total residual cost. An empty path with distance +Inf means no target
// is reachable.
type ShortestPathResult struct {
	Path     Path
	Distance float64
}

// FindShortestPath runs the token-constrained Bellman-Ford over the enabled
// residual arcs. When partial is true, the labels of the previous search are
// reused: labels whose predecessor chain runs through a changed residual arc
// are reset, and the first round re-relaxes from every node that still holds
// a label.
func (rg *ResidualGraph) FindShortestPath(targets []graph.NodeID, partial bool) ShortestPathResult {
	rg.ensureState()

	n := rg.store.NumNodes()
	pending := make([]bool, n)

	if partial && rg.hasState {
		rg.invalidateStale()
		for i := range rg.dist {
			if !math.IsInf(rg.dist[i], 1) {
				pending[i] = true
			}
		}
	} else {
		rg.resetState()
		pending[rg.source] = true
	}
	rg.hasState = true
	rg.dirty = make(map[graph.ArcID]struct{})

	// Bellman-Ford rounds; with the ordered node list an acyclic forward
	// structure converges in a single round.
	anyChange := true
	for round := 0; round < n && anyChange; round++ {
		anyChange = false
		for _, u := range rg.nodeOrder {
			if !pending[u] {
				continue
			}
			pending[u] = false
			if math.IsInf(rg.dist[u], 1) {
				continue
			}
			if rg.relaxFrom(u, pending) {
				anyChange = true
			}
		}
	}

	if anyChange {
		// a node can still relax after |V|-1 rounds: negative cycle
		return rg.extractNegativeCycle(pending)
	}

	return rg.extractPath(targets)
}

// relaxFrom relaxes every enabled residual arc leaving u. Relaxation is
// strict, so equal-cost labels keep the earlier predecessor and results stay
// deterministic in arc insertion order.
func (rg *ResidualGraph) relaxFrom(u graph.NodeID, pending []bool) bool {
	changed := false
	for _, a := range rg.store.OutArcs(u) {
		if rg.relaxArc(u, a, Forward, pending) {
			changed = true
		}
	}
	if rg.useBackArcs {
		for _, a := range rg.store.InArcs(u) {
			if rg.relaxArc(u, a, Backward, pending) {
				changed = true
			}
		}
	}
	return changed
}

func (rg *ResidualGraph) relaxArc(u graph.NodeID, a graph.ArcID, dir Direction, pending []bool) bool {
	ra := rg.arc(a, dir)
	if !ra.enabled || ra.capacity <= 0 {
		return false
	}
	if anyForbidden(ra.forbidden, rg.tokens[u]) {
		return false
	}
	v := rg.head(a, dir)
	candidate := rg.dist[u] + ra.cost
	if candidate >= rg.dist[v] {
		return false
	}
	rg.dist[v] = candidate
	rg.predArc[v] = a
	rg.predDir[v] = dir
	rg.tokens[v] = unionTokens(rg.tokens[u], ra.provided)
	pending[v] = true
	return true
}

// invalidateStale drops every label whose shortest-path tree runs through an
// arc whose residual state changed since the last search. The remaining
// labels stay valid seeds for the next rounds.
func (rg *ResidualGraph) invalidateStale() {
	for changed := true; changed; {
		changed = false
		for i := range rg.dist {
			v := graph.NodeID(i)
			a := rg.predArc[v]
			if a == graph.InvalidArc {
				continue
			}
			_, arcDirty := rg.dirty[a]
			if !arcDirty && !math.IsInf(rg.dist[rg.tail(a, rg.predDir[v])], 1) {
				continue
			}
			rg.dist[v] = math.Inf(1)
			rg.predArc[v] = graph.InvalidArc
			rg.tokens[v] = nil
			changed = true
		}
	}
	rg.dist[rg.source] = 0
}

// extractPath walks the predecessor labels back from the best-labelled
// target.
func (rg *ResidualGraph) extractPath(targets []graph.NodeID) ShortestPathResult {
	best := graph.InvalidNode
	bestDist := math.Inf(1)
	for _, t := range targets {
		if rg.dist[t] < bestDist {
			bestDist = rg.dist[t]
			best = t
		}
	}
	if best == graph.InvalidNode {
		return ShortestPathResult{Distance: math.Inf(1)}
	}

	var reversed Path
	for v := best; v != rg.source; {
		a := rg.predArc[v]
		if a == graph.InvalidArc {
			log.Warnf("predecessor chain broken at node %d while extracting path", v)
			return ShortestPathResult{Distance: math.Inf(1)}
		}
		dir := rg.predDir[v]
		reversed = append(reversed, Step{Arc: a, Delta: deltaFor(dir)})
		v = rg.tail(a, dir)
	}

	path := make(Path, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return ShortestPathResult{Path: path, Distance: bestDist}
}

// extractNegativeCycle reconstructs a strictly negative cycle by walking the
// predecessor chain from a node that could still relax until a node repeats.
func (rg *ResidualGraph) extractNegativeCycle(pending []bool) ShortestPathResult {
	n := rg.store.NumNodes()

	v := graph.InvalidNode
	for _, start := range rg.nodeOrder {
		if !pending[start] || rg.predArc[start] == graph.InvalidArc {
			continue
		}
		// walk n steps; a chain that does not end at the source is inside
		// a cycle afterwards
		candidate := start
		for i := 0; i < n && candidate != graph.InvalidNode; i++ {
			if rg.predArc[candidate] == graph.InvalidArc {
				candidate = graph.InvalidNode
				break
			}
			candidate = rg.tail(rg.predArc[candidate], rg.predDir[candidate])
		}
		if candidate != graph.InvalidNode && rg.predArc[candidate] != graph.InvalidArc {
			v = candidate
			break
		}
	}
	if v == graph.InvalidNode {
		return ShortestPathResult{Distance: math.Inf(1)}
	}

	var reversed Path
	cost := 0.0
	seen := v
	for u := v; ; {
		a := rg.predArc[u]
		dir := rg.predDir[u]
		reversed = append(reversed, Step{Arc: a, Delta: deltaFor(dir)})
		cost += rg.arc(a, dir).cost
		u = rg.tail(a, dir)
		if u == seen {
			break
		}
	}

	cycle := make(Path, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		cycle = append(cycle, reversed[i])
	}
	log.Debugf("found negative cycle of length %d with cost %f", len(cycle), cost)
	return ShortestPathResult{Path: cycle, Distance: cost}
}

func deltaFor(dir Direction) int {
	if dir == Forward {
		return 1
	}
	return -1
}
