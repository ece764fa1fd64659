package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"msgrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// Probe decides connectivity by requesting a health URL of the chat backend. Any
// response below 500 counts as connected; transport errors and 5xx count as offline.
type Probe struct {
	url      string
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger

	mu        sync.Mutex
	connected bool
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}

	subs listeners
}

// NewProbe creates a probe for url. Zero durations fall back to defaults.
func NewProbe(url string, interval, timeout time.Duration, logger *logrus.Logger) *Probe {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultProbeIntervalSec) * time.Second
	}
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultProbeTimeoutMs) * time.Millisecond
	}
	return &Probe{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Fetch runs one probe and records the result.
func (p *Probe) Fetch(ctx context.Context) (bool, error) {
	connected, err := p.check(ctx)
	if err != nil {
		return false, err
	}
	p.update(connected)
	return connected, nil
}

func (p *Probe) Subscribe(fn func(connected bool)) func() {
	return p.subs.add(fn)
}

// Start begins probing on the configured interval
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("Connectivity probe is already running")
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"url":      p.url,
		"interval": p.interval,
	}).Info("Starting connectivity probe")

	go p.loop(ctx, stopCh, doneCh)
}

// Stop halts probing and waits for the loop to exit
func (p *Probe) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	doneCh := p.doneCh
	p.running = false
	p.mu.Unlock()

	<-doneCh
	p.logger.Info("Connectivity probe stopped")
}

func (p *Probe) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := p.Fetch(ctx); err != nil {
				p.logger.WithError(err).Error("Connectivity probe failed")
			}
		}
	}
}

func (p *Probe) check(ctx context.Context) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).Debug("Connectivity probe request failed")
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))

	return resp.StatusCode < http.StatusInternalServerError, nil
}

func (p *Probe) update(connected bool) {
	p.mu.Lock()
	changed := p.connected != connected
	p.connected = connected
	p.mu.Unlock()

	if !changed {
		return
	}

	p.logger.WithField("connected", connected).Info("Connectivity changed")
	p.subs.notify(connected)
}
