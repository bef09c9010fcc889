package graph

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ErrNoParentOutArcs is returned when AllowMitosis is called before any
// non-terminal out-arc of the parent exists.
var ErrNoParentOutArcs = fmt.Errorf("graph: mitosis requested before parent has outgoing transition arcs")

// FullNode is one cell detection: an entry node U, an exit node V, and the
// internal arc A between them carrying the detection cost vector.
type FullNode struct {
	U NodeID
	V NodeID
	A ArcID
}

// FlowGraph is the time-expanded tracking graph: a GraphStore plus the
// source, the target set, the set of internal detection arcs, and the
// parent/duplicate mapping used for cell divisions.
//
// Construction order contract: add all detections and transition arcs
// (including appearance and disappearance arcs) before calling AllowMitosis
// for a parent, because the duplicate only mirrors the out-arcs that exist at
// that point.
type FlowGraph struct {
	store   *GraphStore
	source  NodeID
	targets []NodeID

	intermediateArcs  map[ArcID]struct{}
	parentToDuplicate map[NodeID]NodeID
	duplicateToParent map[NodeID]NodeID
}

// NewFlowGraph creates a flow graph holding only the source (timestep 0) and
// one target (timestep 1). Target timesteps grow as detections are added.
func NewFlowGraph() *FlowGraph {
	fg := &FlowGraph{
		store:             NewGraphStore(),
		intermediateArcs:  make(map[ArcID]struct{}),
		parentToDuplicate: make(map[NodeID]NodeID),
		duplicateToParent: make(map[NodeID]NodeID),
	}
	fg.source = fg.store.AddNode(0)
	fg.targets = append(fg.targets, fg.store.AddNode(1))
	return fg
}

// Store exposes the underlying graph store.
func (fg *FlowGraph) Store() *GraphStore { return fg.store }

// Source returns the source node.
func (fg *FlowGraph) Source() NodeID { return fg.source }

// Targets returns the target nodes.
func (fg *FlowGraph) Targets() []NodeID { return fg.targets }

// IsTarget reports whether n is a terminal node.
func (fg *FlowGraph) IsTarget(n NodeID) bool {
	for _, t := range fg.targets {
		if t == n {
			return true
		}
	}
	return false
}

// IsIntermediateArc reports whether a is an internal detection arc.
func (fg *FlowGraph) IsIntermediateArc(a ArcID) bool {
	_, ok := fg.intermediateArcs[a]
	return ok
}

// ParentToDuplicate returns the division duplicate of a parent exit node.
func (fg *FlowGraph) ParentToDuplicate(v NodeID) (NodeID, bool) {
	d, ok := fg.parentToDuplicate[v]
	return d, ok
}

// DuplicateToParent returns the parent exit node of a division duplicate.
func (fg *FlowGraph) DuplicateToParent(d NodeID) (NodeID, bool) {
	v, ok := fg.duplicateToParent[d]
	return v, ok
}

// AddNode adds one detection at the given timestep. The entry node gets
// timestep 2t+1, the exit node 2t+2, and the internal arc carries the
// detection cost vector. Targets are re-labelled so they stay strictly later
// than every detection.
func (fg *FlowGraph) AddNode(costs []float64, timestep int) (FullNode, error) {
	if len(costs) == 0 {
		return FullNode{}, ErrEmptyCostVector
	}

	var f FullNode
	f.U = fg.store.AddNode(timestep*2 + 1)
	f.V = fg.store.AddNode(timestep*2 + 2)
	a, err := fg.store.AddArc(f.U, f.V, costs)
	if err != nil {
		return FullNode{}, err
	}
	f.A = a
	fg.intermediateArcs[a] = struct{}{}

	// keep target timesteps higher than any node timestep
	if timestep*2+2 >= fg.store.Timestep(fg.targets[0]) {
		for _, t := range fg.targets {
			fg.store.SetTimestep(t, timestep*2+3)
		}
	}

	return f, nil
}

// AddArc adds a transition arc between two detections.
func (fg *FlowGraph) AddArc(from, to FullNode, costs []float64) (ArcID, error) {
	return fg.store.AddArc(from.V, to.U, costs)
}

// AddArcFromSource adds an appearance arc source -> detection entry.
func (fg *FlowGraph) AddArcFromSource(to FullNode, costs []float64) (ArcID, error) {
	return fg.store.AddArc(fg.source, to.U, costs)
}

// AddArcToTarget adds a disappearance arc detection exit -> target.
func (fg *FlowGraph) AddArcToTarget(from FullNode, costs []float64) (ArcID, error) {
	return fg.store.AddArc(from.V, fg.targets[0], costs)
}

// AllowMitosis sets up the division duplicate for a parent detection: a new
// node at the parent exit's timestep, a unit-capacity division arc from the
// source, and a unit-capacity copy of every non-terminal out-arc of the
// parent, each priced at the first marginal cost of the original. Returns the
// division arc.
func (fg *FlowGraph) AllowMitosis(parent FullNode, divisionCost float64) (ArcID, error) {
	hasTransition := false
	for _, oa := range fg.store.OutArcs(parent.V) {
		if !fg.IsTarget(fg.store.Target(oa)) {
			hasTransition = true
			break
		}
	}
	if !hasTransition {
		return InvalidArc, ErrNoParentOutArcs
	}

	duplicate := fg.store.AddNode(fg.store.Timestep(parent.V))
	divisionArc, err := fg.store.AddArc(fg.source, duplicate, []float64{divisionCost})
	if err != nil {
		return InvalidArc, err
	}

	// copy all out arcs at capacity 1, skipping disappearance
	outArcs := append([]ArcID(nil), fg.store.OutArcs(parent.V)...)
	for _, oa := range outArcs {
		tgt := fg.store.Target(oa)
		if fg.IsTarget(tgt) {
			continue
		}
		if _, err := fg.store.AddArc(duplicate, tgt, []float64{fg.store.ArcCost(oa, 0)}); err != nil {
			return InvalidArc, err
		}
	}

	fg.parentToDuplicate[parent.V] = duplicate
	fg.duplicateToParent[duplicate] = parent.V

	return divisionArc, nil
}

// SynchronizeDivisionDuplicateArcFlows reconciles the flow on every
// parent/duplicate arc pair after a solver that ignores the division coupling
// has run: the pair carries the maximum of the two flows, capped at 1 on the
// duplicate side.
func (fg *FlowGraph) SynchronizeDivisionDuplicateArcFlows() {
	for parent, duplicate := range fg.parentToDuplicate {
		for _, oa := range fg.store.OutArcs(parent) {
			for _, da := range fg.store.OutArcs(duplicate) {
				if fg.store.Target(oa) != fg.store.Target(da) {
					continue
				}
				flow := fg.store.Flow(oa)
				if fg.store.Flow(da) > flow {
					flow = fg.store.Flow(da)
				}
				duplicateFlow := flow
				if duplicateFlow > 1 {
					duplicateFlow = 1
				}
				fg.store.SetFlow(da, duplicateFlow)
				fg.store.SetFlow(oa, flow)
				break
			}
		}
	}
}

// ResetFlows clears all flow, so the graph can be solved again from scratch.
func (fg *FlowGraph) ResetFlows() {
	fg.store.ResetFlows()
}

// LogFlows writes every nonzero arc flow at debug level.
func (fg *FlowGraph) LogFlows() {
	for a := 0; a < fg.store.NumArcs(); a++ {
		if f := fg.store.Flow(ArcID(a)); f != 0 {
			log.Debugf("\t(%d, %d): %d", fg.store.Source(ArcID(a)), fg.store.Target(ArcID(a)), f)
		}
	}
}
