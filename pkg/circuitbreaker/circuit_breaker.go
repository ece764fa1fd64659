// Package circuitbreaker stops calling a failing dependency for a cooldown period.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Breaker. Zero values fall back to defaults.
type Options struct {
	// MaxFailures is the number of consecutive counted failures that opens the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a trial call is let through.
	Cooldown time.Duration
	// Counts decides whether an error counts against the dependency. Nil counts every error.
	Counts func(error) bool
}

// Breaker guards calls to one dependency. While open, calls fail fast with *OpenError.
// After the cooldown a single trial call runs; its result closes or reopens the circuit.
type Breaker struct {
	name   string
	opts   Options
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
	stats    Stats
}

func New(name string, opts Options, logger *logrus.Logger) *Breaker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Counts == nil {
		opts.Counts = func(error) bool { return true }
	}
	return &Breaker{
		name:   name,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	b.release(err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Requests++
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			b.stats.Rejected++
			return &OpenError{Name: b.name, State: b.state}
		}
		b.transition(StateHalfOpen)
		b.trial = true
		return nil
	case StateHalfOpen:
		if b.trial {
			b.stats.Rejected++
			return &OpenError{Name: b.name, State: b.state}
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && b.opts.Counts(err)
	if b.state == StateHalfOpen {
		b.trial = false
		if failed {
			b.stats.Failures++
			b.open()
			return
		}
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.stats.Failures++
	b.failures++
	if b.failures >= b.opts.MaxFailures {
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.stats.LastFailure = b.openedAt
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	entry := b.logger.WithFields(logrus.Fields{
		"circuit_breaker": b.name,
		"from":            from.String(),
		"to":              to.String(),
	})
	if to == StateOpen {
		entry.WithField("failures", b.failures).Warn("Circuit breaker opened")
		return
	}
	entry.Info("Circuit breaker state changed")
}

// State reports the current state without triggering a transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Name = b.name
	s.State = b.state
	return s
}

type Stats struct {
	Name        string
	State       State
	Requests    uint64
	Failures    uint64
	Rejected    uint64
	LastFailure time.Time
}

// OpenError is returned without calling the dependency while the circuit is open.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}
