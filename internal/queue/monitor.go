package queue

import (
	"context"
	"sync"
	"time"

	"msgrelay/internal/metrics"

	"github.com/sirupsen/logrus"
)

// StaleMessageCounter reports queue backlog for monitoring
type StaleMessageCounter interface {
	StaleMessageCount(threshold time.Duration) int
	Stats() Stats
}

// Monitor periodically publishes queue depth and warns about messages that have waited
// longer than the stale threshold.
type Monitor struct {
	queue          StaleMessageCounter
	checkInterval  time.Duration
	staleThreshold time.Duration
	metrics        *metrics.Metrics
	logger         *logrus.Logger
	stopCh         chan struct{}
	stopOnce       sync.Once
}

func NewMonitor(queue StaleMessageCounter, checkInterval, staleThreshold time.Duration, m *metrics.Metrics, logger *logrus.Logger) *Monitor {
	return &Monitor{
		queue:          queue,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		metrics:        m,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting queue monitor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) check() {
	stats := m.queue.Stats()
	stale := m.queue.StaleMessageCount(m.staleThreshold)

	m.metrics.SetQueueDepth(stats.Pending)
	m.metrics.SetStaleMessages(stale)

	if stale > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count":     stale,
			LogFieldQueueSize: stats.Pending,
			LogFieldOnline:    stats.Online,
			"threshold":       m.staleThreshold,
		}).Warn("Messages waiting in queue longer than threshold")
	}
}
