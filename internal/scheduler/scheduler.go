// Package scheduler triggers a job on a fixed interval inside a long-running process.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInvalidInterval is returned by Start for a non-positive interval
var ErrInvalidInterval = errors.New("scheduler interval must be positive")

// Ticker runs a job every interval until stopped
type Ticker struct {
	interval time.Duration
	runFirst bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTicker builds a scheduler. When runFirst is set the job also runs right after Start.
func NewTicker(interval time.Duration, runFirst bool) *Ticker {
	return &Ticker{interval: interval, runFirst: runFirst}
}

// Start begins ticking in the background. Calling Start twice is a no-op.
func (t *Ticker) Start(ctx context.Context, job func(context.Context, time.Time)) error {
	if job == nil {
		return nil
	}
	if t.interval <= 0 {
		return ErrInvalidInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		if t.runFirst {
			job(ctx, time.Now())
		}
		for {
			select {
			case now := <-ticker.C:
				job(ctx, now)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker and waits for a running job to return or ctx to expire
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
