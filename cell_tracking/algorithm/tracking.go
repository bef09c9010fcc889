package algorithm

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/graph"
)

// ErrNegativeFlow reports an arc whose flow dropped below zero during a
// residual refresh. The solve aborts and the graph state is undefined.
var ErrNegativeFlow = fmt.Errorf("algorithm: arc with negative flow")

// ErrFlowExceedsCapacity reports an arc whose flow exceeds its capacity
// during a residual refresh. The solve aborts and the graph state is
// undefined.
var ErrFlowExceedsCapacity = fmt.Errorf("algorithm: arc with more flow than capacity")

// costTolerance bounds how negative a path must be to count as an
// improvement.
const costTolerance = 1e-8

// TrackingOptions selects the search variant of the tracking loop.
type TrackingOptions struct {
	// UseBackArcs lets backward residual arcs participate in the search, so
	// earlier assignments can be undone.
	UseBackArcs bool
	// MaxNumPaths caps the number of augmentation iterations; values below 1
	// mean unlimited.
	MaxNumPaths int
	// UseOrderedNodeListInBF relaxes nodes in timestep order each round.
	UseOrderedNodeListInBF bool
	// PartialBFUpdates reuses distance labels across iterations: labels whose
	// predecessor chain runs through a changed residual arc are reset, the
	// others are kept as seeds. The following search still re-relaxes from
	// every node that holds a label, not only around the changed arcs.
	PartialBFUpdates bool
}

// TrackingSummary is the outcome of one tracking run.
type TrackingSummary struct {
	// Energy is the final system energy.
	Energy float64
	// Iterations counts the augmentation iterations performed.
	Iterations int
	// BoundExhausted is set when MaxNumPaths was reached while negative-cost
	// paths still existed. This is a soft condition, not an error.
	BoundExhausted bool
}

// Tracker runs the successive-shortest-paths tracking loop over a flow graph.
// A Tracker owns its graph exclusively from the start of a solve to its
// return.
type Tracker struct {
	fg       *graph.FlowGraph
	store    *graph.GraphStore
	residual *ResidualGraph
	opts     TrackingOptions
}

// NewTracker creates a tracker for the given flow graph.
func NewTracker(fg *graph.FlowGraph, opts TrackingOptions) *Tracker {
	return &Tracker{fg: fg, store: fg.Store(), opts: opts}
}

// MaxFlowMinCostTracking iteratively augments unit flow along the most
// negative valid residual path until no improvement remains or the iteration
// bound is hit, and returns a summary with the final energy, the iteration
// count and the bound-exhausted flag.
func (t *Tracker) MaxFlowMinCostTracking(initialStateEnergy float64) (TrackingSummary, error) {
	if t.residual == nil {
		if err := t.initializeResidualGraph(); err != nil {
			return TrackingSummary{}, err
		}
	}

	log.Infof("Beginning tracking on a graph with %d nodes and %d arcs", t.store.NumNodes(), t.store.NumArcs())

	summary := TrackingSummary{Energy: initialStateEnergy}
	for {
		if log.IsLevelEnabled(log.DebugLevel) {
			t.fg.LogFlows()
		}
		result := t.residual.FindShortestPath(t.fg.Targets(), t.opts.PartialBFUpdates)
		log.Debugf("\tfound path or cycle of length %d with distance %f", len(result.Path), result.Distance)

		if result.Distance > -costTolerance {
			break
		}
		if len(result.Path) == 0 {
			break
		}

		if err := t.augmentUnitFlow(result.Path); err != nil {
			return summary, err
		}
		t.updateEnabledArcs(result.Path)
		summary.Energy += result.Distance
		summary.Iterations++
		log.Debugf("\titeration %d done, system energy %f", summary.Iterations, summary.Energy)

		if t.opts.MaxNumPaths >= 1 && summary.Iterations >= t.opts.MaxNumPaths {
			next := t.residual.FindShortestPath(t.fg.Targets(), t.opts.PartialBFUpdates)
			summary.BoundExhausted = len(next.Path) > 0 && next.Distance < -costTolerance
			break
		}
	}

	log.Infof("Tracking finished after %d iterations with final energy %f", summary.Iterations, summary.Energy)
	return summary, nil
}

// initializeResidualGraph mirrors the base graph, refreshes every residual
// arc from the current flow, places the division tokens, and applies the
// enabling rules once to every arc.
func (t *Tracker) initializeResidualGraph() error {
	log.Infof("Initializing residual graph ...")
	t.residual = NewResidualGraph(t.store, t.fg.Source(), t.opts.UseBackArcs, t.opts.UseOrderedNodeListInBF)

	for i := 0; i < t.store.NumArcs(); i++ {
		a := graph.ArcID(i)
		if err := t.updateArc(a); err != nil {
			return err
		}
		t.residual.EnableBaseArc(a, true)

		// committing to divide a parent is announced by a token on the
		// division arc; the token forbids undoing the mother's flow
		if parent, ok := t.fg.DuplicateToParent(t.store.Target(a)); ok {
			t.residual.AddProvidedToken(a, Forward, int(parent))
		}
		if _, ok := t.fg.ParentToDuplicate(t.store.Source(a)); ok {
			t.residual.AddForbiddenToken(a, Backward, int(t.store.Source(a)))
		}
	}

	// enable all arcs depending on their flow
	for i := 0; i < t.store.NumArcs(); i++ {
		t.updateEnabledArc(graph.ArcID(i))
	}
	return nil
}

// updateArc refreshes both residual copies of a base arc from its flow.
func (t *Tracker) updateArc(a graph.ArcID) error {
	flow := t.store.Flow(a)
	capacity := t.store.Capacity(a)
	if flow < 0 {
		return fmt.Errorf("%w: arc %d from %d to %d carries %d",
			ErrNegativeFlow, a, t.store.Source(a), t.store.Target(a), flow)
	}
	if flow > capacity {
		return fmt.Errorf("%w: arc %d from %d to %d carries %d of %d",
			ErrFlowExceedsCapacity, a, t.store.Source(a), t.store.Target(a), flow, capacity)
	}

	t.residual.UpdateArc(a, Forward, t.store.ArcCost(a, flow), capacity-flow)
	t.residual.UpdateArc(a, Backward, -t.store.ArcCost(a, flow-1), flow)
	return nil
}

// augmentUnitFlow pushes one unit of flow along a path or cycle, adding on
// forward steps and subtracting on backward steps. Flow on a parent arc and
// on its division duplicate's arc to the same child stays coupled, with the
// duplicate side capped at one unit.
func (t *Tracker) augmentUnitFlow(p Path) error {
	for _, step := range p {
		t.store.AddFlow(step.Arc, step.Delta)
		if err := t.updateArc(step.Arc); err != nil {
			return err
		}

		src := t.store.Source(step.Arc)

		if parent, ok := t.fg.DuplicateToParent(src); ok {
			// flow through the duplicate moves the parent's matching arc too
			for _, oa := range t.store.OutArcs(parent) {
				if t.store.Target(oa) != t.store.Target(step.Arc) {
					continue
				}
				t.store.AddFlow(oa, step.Delta)
				if err := t.updateArc(oa); err != nil {
					return err
				}
				break
			}
			continue
		}

		if duplicate, ok := t.fg.ParentToDuplicate(src); ok {
			for _, oa := range t.store.OutArcs(duplicate) {
				if t.store.Target(oa) != t.store.Target(step.Arc) {
					continue
				}
				// shadow the parent's flow, but never beyond the
				// duplicate's unit capacity
				flow := t.store.Flow(step.Arc)
				if flow > 1 {
					flow = 1
				}
				t.store.SetFlow(oa, flow)
				if err := t.updateArc(oa); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// updateEnabledArcs applies the side-constraint rules to every arc on the
// augmented path.
func (t *Tracker) updateEnabledArcs(p Path) {
	for _, step := range p {
		t.updateEnabledArc(step.Arc)
	}
}

// updateEnabledArc re-evaluates the enabling rules around one arc: division
// availability, the lock on a divided mother, and the exclusivity of
// appearance and disappearance arcs.
func (t *Tracker) updateEnabledArc(a graph.ArcID) {
	source := t.store.Source(a)
	target := t.store.Target(a)

	if duplicate, ok := t.fg.ParentToDuplicate(source); ok && !t.fg.IsTarget(target) {
		// a division needs exactly one unit of flow through the mother
		if t.store.SumInFlow(source) == 1 {
			log.Debugf("enabling division of %d", source)
			t.toggleDivision(duplicate, true)
		} else {
			log.Debugf("disabling division of %d", source)
			t.toggleDivision(duplicate, false)
		}
	} else if parent, ok := t.fg.DuplicateToParent(target); ok {
		if t.store.Flow(a) == 1 {
			// flow through the division: the mother cannot be undone
			t.toggleOutArcs(parent, false)
		} else {
			// division flow removed: the mother opens up again, except
			// for disappearance
			t.toggleOutArcsButTarget(parent, true)
		}
	} else if source == t.fg.Source() {
		// appearance arc usage excludes every other in-arc of the target
		t.toggleInArcsBut(target, t.fg.Source(), t.store.Flow(a) == 0)
	} else if t.fg.IsTarget(target) {
		// disappearance arc usage excludes every other out-arc of the source
		t.toggleOutArcsBut(source, target, t.store.Flow(a) == 0)
	}

	if source != t.fg.Source() && !t.fg.IsTarget(target) && !t.fg.IsIntermediateArc(a) {
		// a transition arc: appearance and disappearance around it are only
		// available while the nodes carry no other flow
		t.toggleDisappearanceArc(source, t.store.SumOutFlow(source) == 0)
		t.toggleAppearanceArc(target, t.store.SumInFlow(target) == 0)
	}
}

func (t *Tracker) toggleDivision(duplicate graph.NodeID, enabled bool) {
	for _, oa := range t.store.OutArcs(duplicate) {
		t.residual.EnableBaseArc(oa, enabled)
	}
}

func (t *Tracker) toggleOutArcs(n graph.NodeID, enabled bool) {
	for _, oa := range t.store.OutArcs(n) {
		t.residual.EnableBaseArc(oa, enabled)
	}
}

func (t *Tracker) toggleOutArcsButTarget(n graph.NodeID, enabled bool) {
	for _, oa := range t.store.OutArcs(n) {
		if t.fg.IsTarget(t.store.Target(oa)) {
			continue
		}
		t.residual.EnableBaseArc(oa, enabled)
	}
}

func (t *Tracker) toggleInArcsBut(n, except graph.NodeID, enabled bool) {
	for _, ia := range t.store.InArcs(n) {
		if t.store.Source(ia) == except {
			continue
		}
		t.residual.EnableBaseArc(ia, enabled)
	}
}

func (t *Tracker) toggleOutArcsBut(n, except graph.NodeID, enabled bool) {
	for _, oa := range t.store.OutArcs(n) {
		if t.store.Target(oa) == except {
			continue
		}
		t.residual.EnableBaseArc(oa, enabled)
	}
}

func (t *Tracker) toggleAppearanceArc(n graph.NodeID, enabled bool) {
	for _, ia := range t.store.InArcs(n) {
		if t.store.Source(ia) == t.fg.Source() {
			t.residual.EnableBaseArc(ia, enabled)
		}
	}
}

func (t *Tracker) toggleDisappearanceArc(n graph.NodeID, enabled bool) {
	for _, oa := range t.store.OutArcs(n) {
		if t.fg.IsTarget(t.store.Target(oa)) {
			t.residual.EnableBaseArc(oa, enabled)
		}
	}
}
