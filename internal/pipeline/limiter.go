package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"archgen/internal/pipeerr"
)

var ErrOverCapacity = errors.New("inference capacity exhausted")

// Limiter bounds how many runs may hold an outstanding inference call.
// Runs beyond the capacity queue; with a queue timeout they are rejected
// once it elapses.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	wait     time.Duration

	inFlight atomic.Int64
	waiting  atomic.Int64
}

func NewLimiter(capacity int, queueTimeout time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		wait:     queueTimeout,
	}
}

// Acquire blocks until a slot is free. The returned release func is
// idempotent.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	const op = "pipeline.admit"
	wctx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	l.waiting.Add(1)
	err := l.sem.Acquire(wctx, 1)
	l.waiting.Add(-1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pipeerr.Canceled(op, ctx.Err())
		}
		return nil, pipeerr.ModelUnavailable(op, ErrOverCapacity,
			"all %d inference slots stayed busy for %s; try again later", l.capacity, l.wait)
	}

	l.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

func (l *Limiter) Capacity() int { return l.capacity }
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }
func (l *Limiter) Waiting() int  { return int(l.waiting.Load()) }
