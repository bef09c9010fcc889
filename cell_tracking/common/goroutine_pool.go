package common

import (
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// PoolConfig sizes the worker pool used for batch solving.
type PoolConfig struct {
	MaxWorkers int
}

// NewPool creates an ants goroutine pool for solving several tracking
// problems concurrently. Each individual solve stays single-threaded.
func NewPool(config PoolConfig) (*ants.Pool, error) {
	pool, err := ants.NewPool(config.MaxWorkers)
	if err != nil {
		log.Errorf("Failed to create ants goroutine pool: %v", err)
		return nil, err
	}

	return pool, nil
}
