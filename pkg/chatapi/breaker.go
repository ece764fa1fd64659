package chatapi

import (
	"context"
	stderrors "errors"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"
	"msgrelay/pkg/circuitbreaker"
)

// Guarded fails sends fast while the backend keeps failing. Rejections and caller
// cancellations say nothing about backend health and never open the circuit.
type Guarded struct {
	next    Sender
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next Sender, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// BackendFailure reports whether err counts against the backend's health.
func BackendFailure(err error) bool {
	if err == nil || errors.IsPermanent(err) || stderrors.Is(err, context.Canceled) {
		return false
	}
	return errors.GetCode(err) != errors.ErrCodeRateLimit
}

func (g *Guarded) Send(ctx context.Context, msg models.QueuedMessage) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.Send(ctx, msg)
	})

	var open *circuitbreaker.OpenError
	if stderrors.As(err, &open) {
		return errors.WrapRetryable(err, errors.ErrCodeTransport, "chat backend circuit open").
			WithContext("message_id", msg.ID)
	}
	return err
}
