package adapter

import (
	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/algorithm"
	"tracking/cell_tracking/common"
)

// MaxFlowAdapter implements common.TrackingSolver with the reference
// max-flow-then-min-cost solver. It ignores division and
// appearance/disappearance side constraints, so it serves as a baseline for
// unconstrained models only.
type MaxFlowAdapter struct{}

// NewMaxFlowAdapter creates the reference solver adapter.
func NewMaxFlowAdapter() *MaxFlowAdapter {
	return &MaxFlowAdapter{}
}

// Solve implements common.TrackingSolver.Solve.
func (m *MaxFlowAdapter) Solve(problem *common.Problem, params common.SolverParams) (*common.TrackingResult, error) {
	built, err := buildFlowGraph(problem)
	if err != nil {
		return nil, err
	}

	cost, err := algorithm.MaxFlowMinCost(built.fg)
	if err != nil {
		return nil, err
	}

	// the reference solver routes flow without the division coupling; bring
	// the duplicate arcs back in sync
	built.fg.SynchronizeDivisionDuplicateArcFlows()

	log.Infof("MaxFlowAdapter.Solve: finished with total cost %f", cost)

	return &common.TrackingResult{
		Energy: problem.InitialEnergy + cost,
		Flows:  built.extractFlows(),
	}, nil
}
