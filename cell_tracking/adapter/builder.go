// Package adapter converts between the JSON problem model and the flow graph,
// and registers the tracking solvers.
package adapter

import (
	"fmt"

	"tracking/cell_tracking/common"
	"tracking/cell_tracking/graph"
)

// builtGraph is a flow graph together with the mapping back to detection ids.
type builtGraph struct {
	fg        *graph.FlowGraph
	fullNodes map[int]graph.FullNode
	// externalID maps base nodes to detection ids; duplicates map to their
	// parent's id
	externalID map[graph.NodeID]int
	duplicates map[graph.NodeID]struct{}
}

// buildFlowGraph expands a problem into the time-expanded flow graph. The
// construction order honours the mitosis contract: detections, then links,
// then appearance and disappearance arcs, then divisions.
func buildFlowGraph(problem *common.Problem) (*builtGraph, error) {
	bg := &builtGraph{
		fg:         graph.NewFlowGraph(),
		fullNodes:  make(map[int]graph.FullNode),
		externalID: make(map[graph.NodeID]int),
		duplicates: make(map[graph.NodeID]struct{}),
	}
	bg.externalID[bg.fg.Source()] = common.SourceID
	for _, t := range bg.fg.Targets() {
		bg.externalID[t] = common.TargetID
	}

	for _, det := range problem.Detections {
		if _, exists := bg.fullNodes[det.ID]; exists {
			return nil, fmt.Errorf("duplicate detection id %d", det.ID)
		}
		fn, err := bg.fg.AddNode(det.Costs, det.Timestep)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", det.ID, err)
		}
		bg.fullNodes[det.ID] = fn
		bg.externalID[fn.U] = det.ID
		bg.externalID[fn.V] = det.ID
	}

	for _, link := range problem.Links {
		from, ok := bg.fullNodes[link.Source]
		if !ok {
			return nil, fmt.Errorf("link references unknown detection %d", link.Source)
		}
		to, ok := bg.fullNodes[link.Target]
		if !ok {
			return nil, fmt.Errorf("link references unknown detection %d", link.Target)
		}
		if _, err := bg.fg.AddArc(from, to, link.Costs); err != nil {
			return nil, fmt.Errorf("link %d -> %d: %w", link.Source, link.Target, err)
		}
	}

	for _, det := range problem.Detections {
		fn := bg.fullNodes[det.ID]
		if len(det.AppearanceCosts) > 0 {
			if _, err := bg.fg.AddArcFromSource(fn, det.AppearanceCosts); err != nil {
				return nil, fmt.Errorf("appearance of detection %d: %w", det.ID, err)
			}
		}
		if len(det.DisappearanceCosts) > 0 {
			if _, err := bg.fg.AddArcToTarget(fn, det.DisappearanceCosts); err != nil {
				return nil, fmt.Errorf("disappearance of detection %d: %w", det.ID, err)
			}
		}
	}

	// divisions last, so the duplicates mirror the full out-arc set
	for _, det := range problem.Detections {
		if det.DivisionCost == nil {
			continue
		}
		fn := bg.fullNodes[det.ID]
		if _, err := bg.fg.AllowMitosis(fn, *det.DivisionCost); err != nil {
			return nil, fmt.Errorf("division of detection %d: %w", det.ID, err)
		}
		duplicate, _ := bg.fg.ParentToDuplicate(fn.V)
		bg.externalID[duplicate] = det.ID
		bg.duplicates[duplicate] = struct{}{}
	}

	return bg, nil
}

// extractFlows collects every arc carrying nonzero flow, keyed by detection
// ids.
func (bg *builtGraph) extractFlows() []common.ArcFlow {
	store := bg.fg.Store()
	var flows []common.ArcFlow
	for a := 0; a < store.NumArcs(); a++ {
		arcID := graph.ArcID(a)
		flow := store.Flow(arcID)
		if flow == 0 {
			continue
		}
		src, tgt := store.Source(arcID), store.Target(arcID)
		_, srcDup := bg.duplicates[src]
		_, tgtDup := bg.duplicates[tgt]
		flows = append(flows, common.ArcFlow{
			Source:   bg.externalID[src],
			Target:   bg.externalID[tgt],
			Flow:     flow,
			Division: srcDup || tgtDup,
		})
	}
	return flows
}
