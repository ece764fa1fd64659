// Package service holds background jobs that run alongside the delivery queue.
package service

import (
	"context"
	"sync"
	"time"

	"msgrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// DeadLetterPurger deletes dead letters that failed before a cutoff.
type DeadLetterPurger interface {
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler enforces dead-letter retention: it purges on start and then every interval.
type Scheduler struct {
	purger        DeadLetterPurger
	intervalHours int
	logger        *logrus.Logger
	now           func() time.Time

	mu            sync.Mutex
	retentionDays int

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewScheduler(purger DeadLetterPurger, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.CleanupSchedulerIntervalHours
	}
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	return &Scheduler{
		purger:        purger,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.WithField("interval_hours", s.intervalHours).Info("Starting dead letter retention scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// SetRetentionDays changes the retention used by the next run. Non-positive values are ignored.
func (s *Scheduler) SetRetentionDays(days int) {
	if days <= 0 {
		return
	}
	s.mu.Lock()
	s.retentionDays = days
	s.mu.Unlock()
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	s.mu.Lock()
	days := s.retentionDays
	s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -days).UTC()
	s.logger.WithFields(logrus.Fields{
		"retention_days": days,
		"cutoff":         cutoff.Format(time.RFC3339),
	}).Info("Running dead letter cleanup")

	purged, err := s.purger.PurgeDeadLetters(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge dead letters")
		return
	}
	s.logger.WithField("purged", purged).Info("Dead letter cleanup completed")
}
