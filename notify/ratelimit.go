package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimited throttles outbound messages per recipient so a single chat
// cannot be flooded by progress updates. Send calls block until the
// recipient's limiter admits them or ctx is done.
type RateLimited struct {
	next  Notifier
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimited wraps next with a limiter of perSecond messages and the
// given burst for each recipient.
func NewRateLimited(next Notifier, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:     next,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimited) limiter(to string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[to]; ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters[to] = l
	return l
}

// SendText waits for the recipient's limiter then delivers text.
func (r *RateLimited) SendText(ctx context.Context, to, text string) error {
	if err := r.limiter(to).Wait(ctx); err != nil {
		return err
	}
	return r.next.SendText(ctx, to, text)
}

// SendMedia waits for the recipient's limiter then delivers media.
func (r *RateLimited) SendMedia(ctx context.Context, to string, media Media) error {
	if err := r.limiter(to).Wait(ctx); err != nil {
		return err
	}
	return r.next.SendMedia(ctx, to, media)
}
