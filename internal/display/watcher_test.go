package display

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedSource returns queued answers, repeating the last one.
type scriptedSource struct {
	mu      sync.Mutex
	answers []answer
	calls   int
}

type answer struct {
	external bool
	err      error
}

func (s *scriptedSource) HasExternalDisplay(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[min(s.calls, len(s.answers)-1)]
	s.calls++
	return a.external, a.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestWatcher_EmitsOnlyFlips(t *testing.T) {
	src := &scriptedSource{answers: []answer{
		{external: false},                 // baseline
		{external: false},                 // no change
		{err: errors.New("probe failed")}, // ignored
		{external: true},                  // flip
		{external: true},                  // no change
		{external: false},                 // flip
	}}
	w := NewWatcher(src, time.Hour)

	var hooked []Event
	w.OnChange(func(ev Event) { hooked = append(hooked, ev) })

	ctx := context.Background()
	for range len(src.answers) {
		w.probe(ctx)
	}

	close(w.events)
	var got []bool
	for ev := range w.events {
		got = append(got, ev.External)
	}

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("events = %v, want [true false]", got)
	}
	if len(hooked) != 2 {
		t.Errorf("OnChange called %d times, want 2", len(hooked))
	}
	if external, known := w.State(); external || !known {
		t.Errorf("State() = %v, %v", external, known)
	}
}

func TestWatcher_BaselineDoesNotEmit(t *testing.T) {
	src := &scriptedSource{answers: []answer{{external: true}}}
	w := NewWatcher(src, time.Hour)

	if _, known := w.State(); known {
		t.Error("State() known before first probe")
	}
	w.probe(context.Background())
	if len(w.events) != 0 {
		t.Error("baseline produced an event")
	}
	if external, known := w.State(); !external || !known {
		t.Errorf("State() = %v, %v, want true, true", external, known)
	}
}

func TestWatcher_RunWithManualSource(t *testing.T) {
	src := NewManualSource()
	w := NewWatcher(src, time.Hour)
	src.OnSet(w.Trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	src.Set(false)
	waitKnown(t, w)
	src.Set(true)

	select {
	case ev := <-w.Events():
		if !ev.External {
			t.Errorf("event = %+v, want external", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after flip")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel not closed after Run")
	}
}

func waitKnown(t *testing.T, w *Watcher) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, known := w.State(); known {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never learned the state")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcher_PollsOnInterval(t *testing.T) {
	src := &scriptedSource{answers: []answer{{external: false}}}
	w := NewWatcher(src, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for src.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not poll")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManualSource(t *testing.T) {
	src := NewManualSource()
	if _, err := src.HasExternalDisplay(context.Background()); !errors.Is(err, ErrNoState) {
		t.Errorf("HasExternalDisplay() error = %v, want ErrNoState", err)
	}

	calls := 0
	src.OnSet(func() { calls++ })
	src.Set(true)

	got, err := src.HasExternalDisplay(context.Background())
	if err != nil || !got {
		t.Errorf("HasExternalDisplay() = %v, %v", got, err)
	}
	if calls != 1 {
		t.Errorf("OnSet callback calls = %d, want 1", calls)
	}
}
