package history

import (
	"context"
	"time"

	"github.com/nerrad567/autopair-core/internal/pairing"
)

const (
	// writeTimeout bounds a single insert.
	writeTimeout = 5 * time.Second

	// pruneInterval is how often entries past retention are deleted.
	pruneInterval = time.Hour
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder implements pairing.Recorder by queueing results for a
// background writer. RecordResult never blocks; results are dropped with a
// warning when the queue is full.
type Recorder struct {
	repo      Repository
	queue     chan Entry
	retention time.Duration
	logger    Logger
}

// NewRecorder creates a recorder with room for buffer pending results.
// Entries older than retention are pruned while Run is active; zero keeps
// everything.
func NewRecorder(repo Repository, buffer int, retention time.Duration) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	return &Recorder{
		repo:      repo,
		queue:     make(chan Entry, buffer),
		retention: retention,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// RecordResult implements pairing.Recorder.
func (r *Recorder) RecordResult(res pairing.Result) {
	e := Entry{
		DeviceID:  res.DeviceID,
		Operation: string(res.Operation),
		Success:   res.Success,
		Attempts:  res.Attempts,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Output:    res.Output,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("history queue full, dropping result",
			"device_id", res.DeviceID,
			"operation", res.Operation,
		)
	}
}

// Run writes queued results until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case e := <-r.queue:
			r.write(ctx, e)
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.write(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Error("recording pairing history failed", "device_id", e.DeviceID, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	n, err := r.repo.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Warn("pruning pairing history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned pairing history", "removed", n)
	}
}
