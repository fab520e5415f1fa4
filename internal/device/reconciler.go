package device

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
)

// DefaultReconcileInterval is used when no interval is configured.
const DefaultReconcileInterval = 5 * time.Second

// Refresher is the part of the Registry the Reconciler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reconciler refreshes the registry on a fixed interval and whenever
// Trigger is called.
//
// Triggers coalesce: any number of calls while a refresh is pending or
// running result in at most one more refresh. Refreshes never overlap
// because a single goroutine performs them.
type Reconciler struct {
	refresher Refresher
	interval  time.Duration
	trigger   chan struct{}
	logger    Logger
}

// NewReconciler creates a reconciler. A non-positive interval falls back to
// DefaultReconcileInterval.
func NewReconciler(refresher Refresher, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		refresher: refresher,
		interval:  interval,
		trigger:   make(chan struct{}, 1),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// Trigger requests a refresh as soon as possible. It never blocks.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes once immediately and then on every tick or trigger until
// ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		case <-r.trigger:
			r.refresh(ctx)
		}
	}
}

func (r *Reconciler) refresh(ctx context.Context) {
	err := r.refresher.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, bluetooth.ErrUnavailable), ctx.Err() != nil:
		r.logger.Debug("refresh skipped", "error", err)
	default:
		r.logger.Warn("refresh failed", "error", err)
	}
}
