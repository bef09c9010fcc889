package adapter

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/algorithm"
	"tracking/cell_tracking/common"
	"tracking/cell_tracking/graph"
)

// SSPAdapter implements common.TrackingSolver with the
// successive-shortest-paths tracking loop.
type SSPAdapter struct{}

// NewSSPAdapter creates the successive-shortest-paths adapter.
func NewSSPAdapter() *SSPAdapter {
	return &SSPAdapter{}
}

// Solve implements common.TrackingSolver.Solve.
func (s *SSPAdapter) Solve(problem *common.Problem, params common.SolverParams) (*common.TrackingResult, error) {
	built, err := buildFlowGraph(problem)
	if err != nil {
		return nil, err
	}

	tracker := algorithm.NewTracker(built.fg, algorithm.TrackingOptions{
		UseBackArcs:            params.UseBackArcs,
		MaxNumPaths:            params.MaxNumPaths,
		UseOrderedNodeListInBF: params.UseOrderedBF,
		PartialBFUpdates:       params.PartialBFUpdates,
	})

	summary, err := tracker.MaxFlowMinCostTracking(problem.InitialEnergy)
	if err != nil {
		return nil, err
	}

	if err := graph.CheckFlow(built.fg); err != nil {
		return nil, fmt.Errorf("flow invariant violated after tracking: %w", err)
	}

	log.Infof("SSPAdapter.Solve: finished after %d iterations with energy %f",
		summary.Iterations, summary.Energy)

	return &common.TrackingResult{
		Energy:         summary.Energy,
		Iterations:     summary.Iterations,
		BoundExhausted: summary.BoundExhausted,
		Flows:          built.extractFlows(),
	}, nil
}
