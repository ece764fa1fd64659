package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"
	"msgrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ProcessQueue runs one delivery pass over a snapshot of the queue. Sends are sequential in
// enqueue order; the queue is persisted once afterwards and, if anything is left, a single
// retry is scheduled from the smallest retry count still queued. Every failed send counts
// one retry. Without a send callback the pass does nothing: no retries are spent and no
// timer is scheduled.
func (s *NetworkService) ProcessQueue(ctx context.Context) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	if !s.online || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	send := s.send
	if send == nil {
		size := len(s.queue)
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			LogFieldComponent: component,
			LogFieldQueueSize: size,
		}).Warn("Skipping queue drain: send callback not configured")
		return
	}
	snapshot := slices.Clone(s.queue)
	s.passes++
	s.mu.Unlock()

	s.metrics.RecordDrainPass()
	ctx, span := tracing.StartSpan(ctx, "queue.drain", attribute.Int("queue.size", len(snapshot)))
	defer span.End()

	start := time.Now()
	var (
		delivered int
		failed    int
		dead      []models.DeadLetter
	)

	for _, msg := range snapshot {
		if ctx.Err() != nil {
			break
		}

		err := s.attempt(ctx, send, msg)
		if err == nil {
			s.mu.Lock()
			s.removeLocked(msg.ID)
			s.mu.Unlock()
			delivered++
			s.logger.WithFields(messageFields(msg)).Debug("Message delivered")
			continue
		}

		if ctx.Err() != nil {
			// Shutdown interrupted the send; it is not the message's failure.
			break
		}

		failed++
		if dl, dropped := s.recordFailure(msg.ID, err); dropped {
			dead = append(dead, dl)
		}
	}

	s.persist(ctx)

	s.mu.Lock()
	depth := len(s.queue)
	s.mu.Unlock()
	s.metrics.SetQueueDepth(depth)

	delay, scheduled := s.scheduleRetry()

	s.logger.WithFields(logrus.Fields{
		LogFieldComponent: component,
		"delivered":       delivered,
		"failed":          failed,
		"dead_lettered":   len(dead),
		LogFieldQueueSize: depth,
		LogFieldDuration:  time.Since(start).Milliseconds(),
	}).Info("Queue drain completed")
	if scheduled {
		s.logger.WithFields(logrus.Fields{
			LogFieldComponent: component,
			LogFieldDelay:     delay.String(),
		}).Debug("Scheduled queue retry")
	}

	for _, dl := range dead {
		s.emitDeadLetter(ctx, dl)
	}
}

// attempt runs send under the per-message timeout. A send that ignores its context is
// abandoned once the timeout fires.
func (s *NetworkService) attempt(ctx context.Context, send SendFunc, msg models.QueuedMessage) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	sendCtx, span := tracing.StartSpan(sendCtx, "queue.send",
		attribute.String("message.type", string(msg.Type)),
		attribute.Int("message.retry_count", msg.RetryCount),
	)
	defer span.End()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("send callback panicked: %v", r)
			}
		}()
		done <- send(sendCtx, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}

	if err != nil && ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded) {
		err = errors.WrapRetryable(err, errors.ErrCodeTimeout, "send timed out").
			WithContext("timeout", s.cfg.SendTimeout.String())
	}

	s.metrics.RecordSend(time.Since(start), err, string(errors.GetCode(err)))
	if err != nil {
		tracing.RecordError(sendCtx, err)
	}
	return err
}

// recordFailure applies a failed automatic send to the live queue entry. It returns the dead
// letter when the message leaves the queue.
func (s *NetworkService) recordFailure(id string, sendErr error) (models.DeadLetter, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		// Removed while the send was in flight.
		s.mu.Unlock()
		return models.DeadLetter{}, false
	}

	if s.deadLetterRejections && errors.IsPermanent(sendErr) {
		msg := s.queue[i]
		s.removeLocked(id)
		s.mu.Unlock()

		errors.LogError(s.logger, sendErr, "Message rejected by backend, dropping", messageFields(msg))
		return s.deadLetter(msg, models.DeadLetterRejected, sendErr), true
	}

	s.queue[i].RetryCount++
	msg := s.queue[i]
	if msg.Exhausted() {
		s.removeLocked(id)
		s.mu.Unlock()

		errors.LogError(s.logger, sendErr, "Message retries exhausted, dropping", messageFields(msg))
		return s.deadLetter(msg, models.DeadLetterRetriesExhausted, sendErr), true
	}
	s.mu.Unlock()

	errors.LogWarn(s.logger, sendErr, "Message send failed, will retry", messageFields(msg))
	return models.DeadLetter{}, false
}

func (s *NetworkService) deadLetter(msg models.QueuedMessage, reason models.DeadLetterReason, err error) models.DeadLetter {
	return models.DeadLetter{
		Message:   msg,
		Reason:    reason,
		LastError: err.Error(),
		FailedAt:  s.now().UTC(),
	}
}

func (s *NetworkService) emitDeadLetter(ctx context.Context, dl models.DeadLetter) {
	s.metrics.RecordDeadLetter(string(dl.Reason))

	if s.deadLetterStore != nil {
		if err := s.deadLetterStore.SaveDeadLetter(context.WithoutCancel(ctx), dl); err != nil {
			errors.LogError(s.logger, errors.NewStorageError("save dead letter", err), "Failed to store dead letter",
				logrus.Fields{LogFieldReason: dl.Reason})
		}
	}

	s.deadLetterSubs.emit(dl)
}

// scheduleRetry replaces any pending retry timer. With an empty queue the pending timer is
// only cancelled.
func (s *NetworkService) scheduleRetry() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.nextDelay = 0
	}
	if s.closed || len(s.queue) == 0 {
		return 0, false
	}

	minRetries := s.queue[0].RetryCount
	for _, m := range s.queue[1:] {
		minRetries = min(minRetries, m.RetryCount)
	}

	delay := s.cfg.RetryDelays.DelayFor(minRetries)
	s.timerGen++
	gen := s.timerGen
	s.timer = s.afterFunc(delay, func() {
		s.mu.Lock()
		if s.timerGen == gen {
			s.timer = nil
			s.nextDelay = 0
		}
		s.mu.Unlock()
		s.requestDrain()
	})
	s.nextDelay = delay
	return delay, true
}
