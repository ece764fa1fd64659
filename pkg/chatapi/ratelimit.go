package chatapi

import (
	"context"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"

	"golang.org/x/time/rate"
)

// RateLimited spaces sends to the backend with a token bucket.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimited(next Sender, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimited) Send(ctx context.Context, msg models.QueuedMessage) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.WrapRetryable(err, errors.ErrCodeRateLimit, "send rate limit wait aborted").
			WithContext("message_id", msg.ID)
	}
	return r.next.Send(ctx, msg)
}
