package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps concurrent outbound requests against one upstream host.
// The slot is always released, including when fn panics.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter with the given capacity (minimum 1).
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(capacity))}
}

// Do runs fn while holding one slot.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn(ctx)
}
