package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the authoritative set of known devices.
//
// All public methods are thread-safe. Callers always receive copies.
type Registry struct {
	mu      sync.RWMutex // Protects devices
	devices map[string]Device

	enum   bluetooth.Enumerator
	store  Store
	logger Logger
	now    func() time.Time

	// refreshMu serializes enumerate+merge so an older enumeration can
	// never land after a newer one.
	refreshMu sync.Mutex

	// persistMu orders snapshot+write pairs so the newest snapshot is
	// always the last one written.
	persistMu sync.Mutex
	held      bool // writes suspended until a Load succeeds

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewRegistry creates an empty registry. Call Load to restore persisted
// state before the first Refresh.
func NewRegistry(enum bluetooth.Enumerator, store Store) *Registry {
	return &Registry{
		devices: make(map[string]Device),
		enum:    enum,
		store:   store,
		logger:  noopLogger{},
		now:     time.Now,
		subs:    make(map[int]chan Event),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// CorruptSuffix is appended to a key when its undecodable value is copied
// aside by Load.
const CorruptSuffix = ".corrupt"

// Load restores records from the store. A missing key means a first run.
// When saved_device_ids is present it decides IsSaved for every record.
//
// An undecodable value is copied to its key plus CorruptSuffix before Load
// fails. If the store cannot be read or the copy fails, nothing is
// persisted until a later Load succeeds.
func (r *Registry) Load(ctx context.Context) error {
	held, err := r.load(ctx)

	r.persistMu.Lock()
	r.held = held
	r.persistMu.Unlock()

	if held {
		r.logger.Warn("device persistence suspended", "error", err)
	}
	return err
}

func (r *Registry) load(ctx context.Context) (bool, error) {
	var records []record
	data, err := r.store.Get(ctx, KeyAllDevices)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return true, fmt.Errorf("loading %s: %w", KeyAllDevices, err)
	default:
		if held, err := r.decode(ctx, KeyAllDevices, data, &records); err != nil {
			return held, err
		}
	}

	var savedIDs map[string]bool
	data, err = r.store.Get(ctx, KeySavedDeviceIDs)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return true, fmt.Errorf("loading %s: %w", KeySavedDeviceIDs, err)
	default:
		var ids []string
		if held, err := r.decode(ctx, KeySavedDeviceIDs, data, &ids); err != nil {
			return held, err
		}
		savedIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			savedIDs[id] = true
		}
	}

	devices := make(map[string]Device, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		d := rec.device()
		if savedIDs != nil {
			d.IsSaved = savedIDs[d.ID]
		}
		devices[d.ID] = d
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	r.logger.Info("device registry loaded", "count", len(devices))
	return false, nil
}

// decode unmarshals the value of key into v. On failure the raw value is
// copied aside; the bool reports whether that copy failed too.
func (r *Registry) decode(ctx context.Context, key string, data []byte, v any) (bool, error) {
	err := json.Unmarshal(data, v)
	if err == nil {
		return false, nil
	}
	err = fmt.Errorf("decoding %s: %w", key, err)

	backup := key + CorruptSuffix
	if setErr := r.store.Set(ctx, backup, data); setErr != nil {
		return true, errors.Join(err, fmt.Errorf("copying to %s: %w", backup, setErr))
	}
	r.logger.Warn("undecodable value copied aside", "key", key, "backup", backup)
	return false, err
}

// Refresh enumerates paired devices and merges them into the registry.
// Concurrent calls run one at a time.
//
// If the enumerator is unavailable nothing changes and the wrapped
// enumeration error is returned. Persistence failures are logged only.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	observed, err := r.enum.ListPaired(ctx)
	if err != nil {
		r.logger.Debug("enumeration unavailable, skipping refresh", "error", err)
		return fmt.Errorf("refreshing devices: %w", err)
	}

	now := r.now()

	r.mu.Lock()
	existing := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		existing = append(existing, d)
	}
	merged := Merge(existing, observed, now)
	added := len(merged) - len(existing)
	r.devices = make(map[string]Device, len(merged))
	for _, d := range merged {
		r.devices[d.ID] = d
	}
	r.mu.Unlock()

	if added > 0 {
		r.logger.Info("new devices discovered", "added", added, "total", len(merged))
	}

	r.persist(ctx)
	r.publish(Event{Type: EventDevicesRefreshed, Devices: merged, Timestamp: now})
	return nil
}

// ToggleSaved flips IsSaved for id and persists the change.
// Returns ErrDeviceNotFound for an unknown id.
func (r *Registry) ToggleSaved(ctx context.Context, id string) (Device, error) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return Device{}, ErrDeviceNotFound
	}
	d.IsSaved = !d.IsSaved
	r.devices[id] = d
	r.mu.Unlock()

	r.logger.Info("device saved flag toggled", "device_id", id, "saved", d.IsSaved)
	r.persist(ctx)
	r.publish(Event{Type: EventSavedToggled, DeviceID: id, Device: &d, Timestamp: r.now()})
	return d, nil
}

// RemoveDevice deletes the record for id.
//
// The enumerator is consulted first. If it reports id as paired, or cannot
// be queried, ErrDevicePaired is returned and the record stays.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	paired, err := r.enum.ListPaired(ctx)
	if err != nil {
		r.logger.Warn("cannot verify pairing state, refusing removal", "device_id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrDevicePaired, err)
	}
	for _, p := range paired {
		if p.Address == id {
			r.logger.Debug("device still paired, not removing", "device_id", id)
			return ErrDevicePaired
		}
	}

	r.mu.Lock()
	_, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !ok {
		return ErrDeviceNotFound
	}

	r.logger.Info("device removed", "device_id", id)
	r.persist(ctx)
	r.publish(Event{Type: EventDeviceRemoved, DeviceID: id, Timestamp: r.now()})
	return nil
}

// SetOperationStatus records the workflow state of id.
//
// Setting the current status again is a no-op. Unknown ids return
// ErrDeviceNotFound and disallowed edges ErrInvalidTransition; neither
// changes anything.
func (r *Registry) SetOperationStatus(id string, status OperationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	from := d.OperationStatus
	if from == "" {
		from = StatusIdle
	}
	if from == status {
		r.mu.Unlock()
		return nil
	}
	if !from.CanTransitionTo(status) {
		r.mu.Unlock()
		r.logger.Warn("rejected status transition", "device_id", id, "from", from, "to", status)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	d.OperationStatus = status
	r.devices[id] = d
	r.mu.Unlock()

	r.logger.Debug("operation status changed", "device_id", id, "from", from, "to", status)
	r.publish(Event{Type: EventStatusChanged, DeviceID: id, Device: &d, Timestamp: r.now()})
	return nil
}

// Device returns a copy of the record for id.
func (r *Registry) Device(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

// Devices returns every record, connected first then most recently seen.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	SortDevices(devices)
	return devices
}

// SavedDevices returns the saved records in presentation order.
func (r *Registry) SavedDevices() []Device {
	all := r.Devices()
	saved := all[:0]
	for _, d := range all {
		if d.IsSaved {
			saved = append(saved, d)
		}
	}
	return saved
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Subscribe returns a channel receiving registry events and a function to
// stop the subscription. Events are dropped for a subscriber whose buffer
// is full.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("subscriber buffer full, dropping event", "type", ev.Type)
		}
	}
}

// persist writes saved_device_ids and all_devices from one snapshot.
func (r *Registry) persist(ctx context.Context) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if r.held {
		r.logger.Debug("persistence suspended, skipping write")
		return
	}

	devices := r.Devices()
	records := make([]record, 0, len(devices))
	savedIDs := make([]string, 0, len(devices))
	for _, d := range devices {
		records = append(records, d.record())
		if d.IsSaved {
			savedIDs = append(savedIDs, d.ID)
		}
	}

	all, err := json.Marshal(records)
	if err != nil {
		r.logger.Error("encoding devices failed", "error", err)
		return
	}
	saved, err := json.Marshal(savedIDs)
	if err != nil {
		r.logger.Error("encoding saved ids failed", "error", err)
		return
	}

	if batch, ok := r.store.(BatchStore); ok {
		err = batch.SetAll(ctx, map[string][]byte{KeyAllDevices: all, KeySavedDeviceIDs: saved})
	} else {
		err = r.store.Set(ctx, KeyAllDevices, all)
		if err == nil {
			err = r.store.Set(ctx, KeySavedDeviceIDs, saved)
		}
	}
	if err != nil {
		r.logger.Error("persisting devices failed", "error", err)
	}
}
