package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/counsel/internal/logging"
)

// Sweeper evicts elapsed windows. It implements jobs.Task.
type Sweeper struct {
	store  Store
	logger logging.Logger
	now    func() time.Time
}

func NewSweeper(store Store, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Sweeper{store: store, logger: logger, now: time.Now}
}

// RunOnce runs one sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		return fmt.Errorf("sweep rate limit entries: %w", err)
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("swept expired rate limit windows")
	}
	return nil
}
