package adapter

import (
	log "github.com/sirupsen/logrus"

	"tracking/cell_tracking/common"
)

// Solver names known to the registry.
const (
	AlgorithmSSP     = "successive_shortest_paths"
	AlgorithmMaxFlow = "max_flow_min_cost"
)

// init automatically registers the available solver adapters.
func init() {
	if err := common.RegisterGlobal(AlgorithmSSP, NewSSPAdapter()); err != nil {
		log.Warnf("Failed to register %s adapter: %v", AlgorithmSSP, err)
	}
	if err := common.RegisterGlobal(AlgorithmMaxFlow, NewMaxFlowAdapter()); err != nil {
		log.Warnf("Failed to register %s adapter: %v", AlgorithmMaxFlow, err)
	}

	log.Debugf("Available tracking solvers: %v", common.ListGlobal())
}
