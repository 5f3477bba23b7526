package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerRunsJob(t *testing.T) {
	t.Parallel()

	var runs int32
	fired := make(chan struct{}, 10)
	ticker := NewTicker(10*time.Millisecond, false)

	err := ticker.Start(context.Background(), func(context.Context, time.Time) {
		atomic.AddInt32(&runs, 1)
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("job did not run (runs=%d)", atomic.LoadInt32(&runs))
		}
	}

	if err := ticker.Stop(context.Background()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	after := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != after {
		t.Fatalf("job ran after Stop: %d -> %d", after, got)
	}
}

func TestTickerRunFirst(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 1)
	ticker := NewTicker(time.Hour, true)
	defer ticker.Stop(context.Background())

	if err := ticker.Start(context.Background(), func(context.Context, time.Time) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate run")
	}
}

func TestTickerStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ticker := NewTicker(time.Hour, false)
	if err := ticker.Start(ctx, func(context.Context, time.Time) {}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := ticker.Stop(stopCtx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func TestTickerRejectsInvalidInterval(t *testing.T) {
	t.Parallel()

	err := NewTicker(0, false).Start(context.Background(), func(context.Context, time.Time) {})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}
