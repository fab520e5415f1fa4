package display

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// Watcher probes a Source and emits an Event whenever the answer flips.
type Watcher struct {
	source   Source
	interval time.Duration
	trigger  chan struct{}
	events   chan Event
	logger   Logger
	now      func() time.Time

	mu       sync.RWMutex
	external bool
	known    bool
	onChange func(Event)
}

// NewWatcher creates a watcher. A non-positive interval falls back to
// DefaultPollInterval.
func NewWatcher(source Source, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		source:   source,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		events:   make(chan Event, 8),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger Logger) {
	w.logger = logger
}

// OnChange registers fn to run for every emitted Event, before it is sent
// on the channel.
func (w *Watcher) OnChange(fn func(Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Events returns the channel of state flips. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Trigger requests a probe as soon as possible. It never blocks.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// State returns the last observed state. known is false until the first
// successful probe.
func (w *Watcher) State() (external, known bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.external, w.known
}

// Run probes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.probe(ctx)
		case <-w.trigger:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	external, err := w.source.HasExternalDisplay(ctx)
	if err != nil {
		w.logger.Debug("display probe failed", "error", err)
		return
	}

	w.mu.Lock()
	first := !w.known
	changed := w.known && w.external != external
	w.external = external
	w.known = true
	onChange := w.onChange
	w.mu.Unlock()

	if first {
		w.logger.Info("initial display state", "external", external)
		return
	}
	if !changed {
		return
	}

	ev := Event{External: external, At: w.now()}
	w.logger.Info("display changed", "external", external)
	if onChange != nil {
		onChange(ev)
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
