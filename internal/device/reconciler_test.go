package device

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingRefresher counts calls and can block inside Refresh.
type countingRefresher struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	hold    chan struct{}
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	if c.running.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.running.Add(-1)
	c.calls.Add(1)
	if c.hold != nil {
		select {
		case <-c.hold:
		case <-ctx.Done():
		}
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReconciler_InitialAndTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref := &countingRefresher{}
	rec := NewReconciler(ref, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return ref.calls.Load() >= 3 })
	cancel()
	<-done
}

func TestReconciler_TriggersCoalesce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref := &countingRefresher{hold: make(chan struct{})}
	rec := NewReconciler(ref, time.Hour)

	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	// First refresh is the startup one, held open.
	waitFor(t, func() bool { return ref.calls.Load() == 1 })

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Trigger()
		}()
	}
	wg.Wait()

	close(ref.hold)
	waitFor(t, func() bool { return ref.calls.Load() == 2 })
	time.Sleep(50 * time.Millisecond)

	if got := ref.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (burst coalesced into one)", got)
	}
	if ref.overlap.Load() {
		t.Error("refreshes overlapped")
	}

	cancel()
	<-done
}

func TestNewReconciler_DefaultInterval(t *testing.T) {
	if rec := NewReconciler(&countingRefresher{}, 0); rec.interval != DefaultReconcileInterval {
		t.Errorf("interval = %v, want %v", rec.interval, DefaultReconcileInterval)
	}
}
