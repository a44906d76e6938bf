package source

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrBusy is returned when every query slot stays occupied for the whole
// wait period. Clients should retry shortly.
var ErrBusy = errors.New("too many concurrent queries, please try again later")

// Limiter bounds the number of record queries running against the database
// at once. It is a counting semaphore with a bounded wait.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows max concurrent queries and waits at most maxWait for a
// slot. Non-positive values fall back to 8 and 5s.
func NewLimiter(max int, maxWait time.Duration) *Limiter {
	if max <= 0 {
		max = 8
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &Limiter{slots: make(chan struct{}, max), maxWait: maxWait}
}

// Acquire takes a slot. Callers must Release it exactly once.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBusy
	}
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active is the number of queries holding a slot.
func (l *Limiter) Active() int {
	return int(l.active.Load())
}

// Drain blocks until no query holds a slot or ctx ends. Used on shutdown.
func (l *Limiter) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
