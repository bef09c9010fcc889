package algorithm

import (
	"errors"
	"testing"

	"tracking/cell_tracking/graph"
)

// buildParallelChains builds two independent one-detection tracks with unit
// cost vectors everywhere.
func buildParallelChains(t *testing.T) *graph.FlowGraph {
	t.Helper()
	fg := graph.NewFlowGraph()
	a, _ := fg.AddNode([]float64{-5}, 0)
	b, _ := fg.AddNode([]float64{-4}, 0)
	fg.AddArcFromSource(a, []float64{1})
	fg.AddArcToTarget(a, []float64{1})
	fg.AddArcFromSource(b, []float64{1})
	fg.AddArcToTarget(b, []float64{1})
	return fg
}

func TestMaxFlowMinCostSimple(t *testing.T) {
	fg := graph.NewFlowGraph()
	a, _ := fg.AddNode([]float64{-5}, 0)
	app, _ := fg.AddArcFromSource(a, []float64{1})
	disapp, _ := fg.AddArcToTarget(a, []float64{1})

	cost, err := MaxFlowMinCost(fg)
	if err != nil {
		t.Fatalf("MaxFlowMinCost failed: %v", err)
	}
	if cost != -3 {
		t.Fatalf("total cost = %f, want -3", cost)
	}
	g := fg.Store()
	for _, arc := range []graph.ArcID{app, a.A, disapp} {
		if g.Flow(arc) != 1 {
			t.Fatalf("arc %d flow = %d, want 1", arc, g.Flow(arc))
		}
	}
}

func TestMaxFlowMatchesTracking(t *testing.T) {
	reference := buildParallelChains(t)
	cost, err := MaxFlowMinCost(reference)
	if err != nil {
		t.Fatalf("MaxFlowMinCost failed: %v", err)
	}

	tracked := buildParallelChains(t)
	tracker := NewTracker(tracked, defaultOptions())
	summary, err := tracker.MaxFlowMinCostTracking(0)
	if err != nil {
		t.Fatalf("tracking failed: %v", err)
	}

	if cost != summary.Energy {
		t.Fatalf("reference cost %f differs from tracking energy %f", cost, summary.Energy)
	}

	// both solvers must agree on the per-arc flow as well
	gr, gt := reference.Store(), tracked.Store()
	for a := 0; a < gr.NumArcs(); a++ {
		if gr.Flow(graph.ArcID(a)) != gt.Flow(graph.ArcID(a)) {
			t.Fatalf("arc %d: reference flow %d, tracking flow %d", a, gr.Flow(graph.ArcID(a)), gt.Flow(graph.ArcID(a)))
		}
	}
}

func TestMaxFlowRejectsLongCostVectors(t *testing.T) {
	fg := graph.NewFlowGraph()
	a, _ := fg.AddNode([]float64{-1, -1}, 0)
	fg.AddArcFromSource(a, []float64{1})
	fg.AddArcToTarget(a, []float64{1})

	if _, err := MaxFlowMinCost(fg); !errors.Is(err, ErrNonUnitCostVector) {
		t.Fatalf("expected ErrNonUnitCostVector, got %v", err)
	}
}
