package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 5 * time.Minute

// Sweeper periodically reclaims expired sessions and their artifacts.
type Sweeper struct {
	store    *Store
	logger   *zap.Logger
	interval time.Duration
}

func NewSweeper(store *Store, interval time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
	}, nil
}

// Start sweeps on a fixed interval until context cancellation. An initial
// sweep runs immediately so sessions left over from a previous run do not
// wait for the first ticker edge.
func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if removed := s.store.Sweep(); removed > 0 {
		s.logger.Debug("sweep pass completed", zap.Int("removed", removed))
	}
}
