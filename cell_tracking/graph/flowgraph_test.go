package graph

import (
	"errors"
	"testing"
)

func TestAddNodeTimesteps(t *testing.T) {
	fg := NewFlowGraph()
	g := fg.Store()

	if g.Timestep(fg.Source()) != 0 {
		t.Fatalf("source timestep = %d", g.Timestep(fg.Source()))
	}

	a, err := fg.AddNode([]float64{-1}, 0)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if g.Timestep(a.U) != 1 || g.Timestep(a.V) != 2 {
		t.Fatalf("detection timesteps = %d, %d", g.Timestep(a.U), g.Timestep(a.V))
	}
	if !fg.IsIntermediateArc(a.A) {
		t.Fatalf("detection arc not marked intermediate")
	}
	if g.Timestep(fg.Targets()[0]) != 3 {
		t.Fatalf("target timestep after t=0 detection = %d", g.Timestep(fg.Targets()[0]))
	}

	// a later detection pushes the targets further out
	b, err := fg.AddNode([]float64{-1}, 3)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if g.Timestep(b.U) != 7 || g.Timestep(b.V) != 8 {
		t.Fatalf("detection timesteps = %d, %d", g.Timestep(b.U), g.Timestep(b.V))
	}
	if g.Timestep(fg.Targets()[0]) != 9 {
		t.Fatalf("target timestep after t=3 detection = %d", g.Timestep(fg.Targets()[0]))
	}
}

func TestAddNodeEmptyCosts(t *testing.T) {
	fg := NewFlowGraph()
	if _, err := fg.AddNode(nil, 0); !errors.Is(err, ErrEmptyCostVector) {
		t.Fatalf("expected ErrEmptyCostVector, got %v", err)
	}
}

func TestAllowMitosisMirrorsOutArcs(t *testing.T) {
	fg := NewFlowGraph()
	g := fg.Store()

	parent, _ := fg.AddNode([]float64{-2}, 0)
	childB, _ := fg.AddNode([]float64{-3}, 1)
	childC, _ := fg.AddNode([]float64{-3}, 1)

	if _, err := fg.AddArc(parent, childB, []float64{0.5, 1.5}); err != nil {
		t.Fatalf("AddArc failed: %v", err)
	}
	if _, err := fg.AddArc(parent, childC, []float64{0.25}); err != nil {
		t.Fatalf("AddArc failed: %v", err)
	}
	if _, err := fg.AddArcToTarget(parent, []float64{1}); err != nil {
		t.Fatalf("AddArcToTarget failed: %v", err)
	}

	divisionArc, err := fg.AllowMitosis(parent, -4)
	if err != nil {
		t.Fatalf("AllowMitosis failed: %v", err)
	}

	duplicate, ok := fg.ParentToDuplicate(parent.V)
	if !ok {
		t.Fatalf("parent has no duplicate")
	}
	if back, ok := fg.DuplicateToParent(duplicate); !ok || back != parent.V {
		t.Fatalf("duplicate does not map back to parent")
	}
	if g.Timestep(duplicate) != g.Timestep(parent.V) {
		t.Fatalf("duplicate timestep %d, parent exit %d", g.Timestep(duplicate), g.Timestep(parent.V))
	}

	if g.Source(divisionArc) != fg.Source() || g.Target(divisionArc) != duplicate {
		t.Fatalf("division arc endpoints wrong")
	}
	if g.Capacity(divisionArc) != 1 || g.ArcCost(divisionArc, 0) != -4 {
		t.Fatalf("division arc cost vector wrong")
	}

	// the disappearance arc is not mirrored, the transitions are, at unit
	// capacity and first marginal cost
	mirrors := g.OutArcs(duplicate)
	if len(mirrors) != 2 {
		t.Fatalf("expected 2 mirrored arcs, got %d", len(mirrors))
	}
	if g.Target(mirrors[0]) != childB.U || g.ArcCost(mirrors[0], 0) != 0.5 || g.Capacity(mirrors[0]) != 1 {
		t.Fatalf("first mirror arc wrong")
	}
	if g.Target(mirrors[1]) != childC.U || g.ArcCost(mirrors[1], 0) != 0.25 || g.Capacity(mirrors[1]) != 1 {
		t.Fatalf("second mirror arc wrong")
	}
}

func TestAllowMitosisRequiresTransitions(t *testing.T) {
	fg := NewFlowGraph()
	parent, _ := fg.AddNode([]float64{-2}, 0)
	if _, err := fg.AddArcToTarget(parent, []float64{1}); err != nil {
		t.Fatalf("AddArcToTarget failed: %v", err)
	}

	if _, err := fg.AllowMitosis(parent, -4); !errors.Is(err, ErrNoParentOutArcs) {
		t.Fatalf("expected ErrNoParentOutArcs, got %v", err)
	}
}

func TestSynchronizeDivisionDuplicateArcFlows(t *testing.T) {
	fg := NewFlowGraph()
	g := fg.Store()

	parent, _ := fg.AddNode([]float64{-2}, 0)
	child, _ := fg.AddNode([]float64{-3}, 1)
	link, _ := fg.AddArc(parent, child, []float64{0, 0})
	if _, err := fg.AllowMitosis(parent, -1); err != nil {
		t.Fatalf("AllowMitosis failed: %v", err)
	}
	duplicate, _ := fg.ParentToDuplicate(parent.V)
	mirror := g.OutArcs(duplicate)[0]

	g.SetFlow(link, 2)
	fg.SynchronizeDivisionDuplicateArcFlows()
	if g.Flow(mirror) != 1 || g.Flow(link) != 2 {
		t.Fatalf("after sync: mirror=%d link=%d", g.Flow(mirror), g.Flow(link))
	}

	g.SetFlow(link, 0)
	g.SetFlow(mirror, 1)
	fg.SynchronizeDivisionDuplicateArcFlows()
	if g.Flow(mirror) != 1 || g.Flow(link) != 1 {
		t.Fatalf("after sync from duplicate side: mirror=%d link=%d", g.Flow(mirror), g.Flow(link))
	}
}

func TestCheckFlowDetectsViolations(t *testing.T) {
	build := func() (*FlowGraph, FullNode, FullNode, ArcID, ArcID, ArcID) {
		fg := NewFlowGraph()
		a, _ := fg.AddNode([]float64{-1}, 0)
		b, _ := fg.AddNode([]float64{-1}, 1)
		app, _ := fg.AddArcFromSource(a, []float64{1})
		link, _ := fg.AddArc(a, b, []float64{0})
		disapp, _ := fg.AddArcToTarget(b, []float64{1})
		return fg, a, b, app, link, disapp
	}

	t.Run("ValidFlow", func(t *testing.T) {
		fg, a, b, app, link, disapp := build()
		g := fg.Store()
		g.SetFlow(app, 1)
		g.SetFlow(a.A, 1)
		g.SetFlow(link, 1)
		g.SetFlow(b.A, 1)
		g.SetFlow(disapp, 1)
		if err := CheckFlow(fg); err != nil {
			t.Fatalf("valid flow rejected: %v", err)
		}
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		fg, a, _, _, _, _ := build()
		fg.Store().SetFlow(a.A, 2)
		if err := CheckFlow(fg); err == nil {
			t.Fatalf("capacity violation not detected")
		}
	})

	t.Run("ConservationViolated", func(t *testing.T) {
		fg, a, _, app, _, _ := build()
		g := fg.Store()
		g.SetFlow(app, 1)
		g.SetFlow(a.A, 1)
		// flow vanishes at a.V
		if err := CheckFlow(fg); err == nil {
			t.Fatalf("conservation violation not detected")
		}
	})

	t.Run("MixedAppearance", func(t *testing.T) {
		fg := NewFlowGraph()
		a, _ := fg.AddNode([]float64{-1}, 0)
		b, _ := fg.AddNode([]float64{-1, -1}, 1)
		appA, _ := fg.AddArcFromSource(a, []float64{1})
		link, _ := fg.AddArc(a, b, []float64{0})
		appB, _ := fg.AddArcFromSource(b, []float64{1})
		disapp, _ := fg.AddArcToTarget(b, []float64{1, 1})

		g := fg.Store()
		g.SetFlow(appA, 1)
		g.SetFlow(a.A, 1)
		g.SetFlow(link, 1)
		g.SetFlow(appB, 1)
		g.SetFlow(b.A, 2)
		g.SetFlow(disapp, 2)
		// every node conserves flow, but b mixes appearance with a transition
		if err := CheckFlow(fg); err == nil {
			t.Fatalf("mixed appearance not detected")
		}
	})
}
