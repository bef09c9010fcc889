package algorithm

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/graph"
)

// ErrInfeasible is returned when the reference solver cannot route the
// max-flow supply at finite cost.
var ErrInfeasible = fmt.Errorf("algorithm: could not find the optimal min cost flow solution")

// ErrNonUnitCostVector is returned when the reference solver meets an arc
// whose cost vector is longer than one entry.
var ErrNonUnitCostVector = fmt.Errorf("algorithm: reference solver requires unit-length cost vectors")

// MaxFlowMinCost is the reference solver: it first finds the maximum flow
// value from the source to the first target, then solves a min-cost flow for
// exactly that supply. It requires every cost vector to have length one,
// writes the resulting flow into the graph store, and returns the total cost.
func MaxFlowMinCost(fg *graph.FlowGraph) (float64, error) {
	store := fg.Store()
	numArcs := store.NumArcs()

	for a := 0; a < numArcs; a++ {
		if store.Capacity(graph.ArcID(a)) != 1 {
			return 0, fmt.Errorf("%w: arc %d has capacity %d", ErrNonUnitCostVector, a, store.Capacity(graph.ArcID(a)))
		}
	}

	source := fg.Source()
	sink := fg.Targets()[0]

	log.Infof("Running min cost max flow on a graph with %d nodes and %d arcs", store.NumNodes(), numArcs)

	supply := maxFlowValue(store, source, sink)
	log.Infof("Found max flow value: %d", supply)

	flow := make([]int, numArcs)
	totalCost := 0.0
	for pushed := 0; pushed < supply; {
		path, ok := cheapestAugmentingPath(store, flow, source, sink)
		if !ok {
			return 0, fmt.Errorf("%w: routed %d of %d units", ErrInfeasible, pushed, supply)
		}
		for _, step := range path {
			flow[step.Arc] += step.Delta
			if step.Delta > 0 {
				totalCost += store.ArcCost(step.Arc, 0)
			} else {
				totalCost -= store.ArcCost(step.Arc, 0)
			}
		}
		pushed++
	}

	for a := 0; a < numArcs; a++ {
		store.SetFlow(graph.ArcID(a), flow[a])
	}
	return totalCost, nil
}

// maxFlowValue computes the maximum flow value with breadth-first augmenting
// paths over unit-capacity arcs.
func maxFlowValue(store *graph.GraphStore, source, sink graph.NodeID) int {
	numArcs := store.NumArcs()
	flow := make([]int, numArcs)
	value := 0

	for {
		predArc := make([]graph.ArcID, store.NumNodes())
		predDir := make([]Direction, store.NumNodes())
		for i := range predArc {
			predArc[i] = graph.InvalidArc
		}

		frontier := []graph.NodeID{source}
		visited := make([]bool, store.NumNodes())
		visited[source] = true
		for len(frontier) > 0 && !visited[sink] {
			u := frontier[0]
			frontier = frontier[1:]
			for _, a := range store.OutArcs(u) {
				v := store.Target(a)
				if !visited[v] && store.Capacity(a)-flow[a] > 0 {
					visited[v] = true
					predArc[v] = a
					predDir[v] = Forward
					frontier = append(frontier, v)
				}
			}
			for _, a := range store.InArcs(u) {
				v := store.Source(a)
				if !visited[v] && flow[a] > 0 {
					visited[v] = true
					predArc[v] = a
					predDir[v] = Backward
					frontier = append(frontier, v)
				}
			}
		}
		if !visited[sink] {
			break
		}

		for v := sink; v != source; {
			a := predArc[v]
			if predDir[v] == Forward {
				flow[a]++
				v = store.Source(a)
			} else {
				flow[a]--
				v = store.Target(a)
			}
		}
		value++
	}

	return value
}

// cheapestAugmentingPath finds the cost-minimal residual path with a plain
// Bellman-Ford over the arc list.
func cheapestAugmentingPath(store *graph.GraphStore, flow []int, source, sink graph.NodeID) (Path, bool) {
	n := store.NumNodes()
	dist := make([]float64, n)
	predArc := make([]graph.ArcID, n)
	predDir := make([]Direction, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		predArc[i] = graph.InvalidArc
	}
	dist[source] = 0

	for round := 0; round < n-1; round++ {
		changed := false
		for a := 0; a < store.NumArcs(); a++ {
			arcID := graph.ArcID(a)
			u, v := store.Source(arcID), store.Target(arcID)
			cost := store.ArcCost(arcID, 0)
			if store.Capacity(arcID)-flow[a] > 0 && dist[u]+cost < dist[v] {
				dist[v] = dist[u] + cost
				predArc[v] = arcID
				predDir[v] = Forward
				changed = true
			}
			if flow[a] > 0 && dist[v]-cost < dist[u] {
				dist[u] = dist[v] - cost
				predArc[u] = arcID
				predDir[u] = Backward
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if math.IsInf(dist[sink], 1) {
		return nil, false
	}

	var reversed Path
	for v := sink; v != source; {
		a := predArc[v]
		if a == graph.InvalidArc {
			return nil, false
		}
		if predDir[v] == Forward {
			reversed = append(reversed, Step{Arc: a, Delta: 1})
			v = store.Source(a)
		} else {
			reversed = append(reversed, Step{Arc: a, Delta: -1})
			v = store.Target(a)
		}
	}

	path := make(Path, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path, true
}
