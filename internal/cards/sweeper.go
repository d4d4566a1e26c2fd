package cards

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval  = time.Hour
	defaultSweepBatchSize = 500
	maxSweepBatchesPerRun = 200
)

// ExpirySweeper periodically expires activated cards past their validity.
type ExpirySweeper struct {
	manager   *Manager
	interval  time.Duration
	batchSize int
	enabled   func() bool
}

// NewExpirySweeper creates a sweeper running every interval.
func NewExpirySweeper(manager *Manager, interval time.Duration) *ExpirySweeper {
	if manager == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ExpirySweeper{manager: manager, interval: interval, batchSize: defaultSweepBatchSize}
}

// WithEnabled gates each run on enabled. A nil func leaves the sweeper always on.
func (s *ExpirySweeper) WithEnabled(enabled func() bool) *ExpirySweeper {
	if s != nil {
		s.enabled = enabled
	}
	return s
}

// Start launches the sweep loop in a background goroutine.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("card expiry sweeper started (interval=%s)", s.interval)
}

func (s *ExpirySweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.SweepOnce(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// SweepOnce expires every due card in bounded batches and returns the total.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	if s == nil || s.manager == nil {
		return 0
	}
	if s.enabled != nil && !s.enabled() {
		log.Debug("card expiry sweep paused by settings")
		return 0
	}
	total := 0
	for i := 0; i < maxSweepBatchesPerRun; i++ {
		if ctx.Err() != nil {
			break
		}
		n, err := s.manager.ExpireDue(ctx, s.batchSize)
		if err != nil {
			log.WithError(err).Warn("card expiry sweep failed")
			break
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		log.Infof("card expiry sweep: expired %d cards", total)
	}
	return total
}
