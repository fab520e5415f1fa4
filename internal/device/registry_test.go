package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
)

// fakeEnumerator returns a configurable device list or error.
type fakeEnumerator struct {
	mu      sync.Mutex
	devices []bluetooth.PairedDevice
	err     error
	calls   int
}

func (f *fakeEnumerator) ListPaired(context.Context) ([]bluetooth.PairedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]bluetooth.PairedDevice(nil), f.devices...), nil
}

func (f *fakeEnumerator) set(devices []bluetooth.PairedDevice, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
	f.err = err
}

// failingStore fails every write and has no batch support.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrKeyNotFound }
func (failingStore) Set(context.Context, string, []byte) error   { return errors.New("disk full") }

func newTestRegistry(enum *fakeEnumerator, store Store) *Registry {
	r := NewRegistry(enum, store)
	r.now = func() time.Time { return t1 }
	return r
}

func storedRecords(t *testing.T, s Store) []record {
	t.Helper()
	data, err := s.Get(context.Background(), KeyAllDevices)
	if err != nil {
		t.Fatalf("Get(all_devices) error = %v", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decoding all_devices: %v", err)
	}
	return records
}

func storedSavedIDs(t *testing.T, s Store) []string {
	t.Helper()
	data, err := s.Get(context.Background(), KeySavedDeviceIDs)
	if err != nil {
		t.Fatalf("Get(saved_device_ids) error = %v", err)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decoding saved_device_ids: %v", err)
	}
	return out
}

func TestRegistry_RefreshPersists(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{
		{Address: "AA:BB", Name: "Mouse", Connected: true},
		{Address: "CC:DD", Name: "Keyboard"},
	}}
	store := NewMemoryStore()
	r := newTestRegistry(enum, store)

	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	devices := r.Devices()
	if len(devices) != 2 || devices[0].ID != "AA:BB" {
		t.Fatalf("Devices() = %v, want AA:BB first", ids(devices))
	}
	if len(storedRecords(t, store)) != 2 {
		t.Error("all_devices not persisted")
	}
	if saved := storedSavedIDs(t, store); len(saved) != 2 {
		t.Errorf("saved_device_ids = %v, want both", saved)
	}
}

func TestRegistry_RefreshUnavailableIsNoOp(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	store := NewMemoryStore()
	r := newTestRegistry(enum, store)
	_ = r.Refresh(ctx)

	enum.set(nil, bluetooth.ErrUnavailable)
	_ = store.Set(ctx, KeyAllDevices, []byte(`"sentinel"`))

	err := r.Refresh(ctx)
	if !errors.Is(err, bluetooth.ErrUnavailable) {
		t.Fatalf("Refresh() error = %v, want ErrUnavailable", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if data, _ := store.Get(ctx, KeyAllDevices); string(data) != `"sentinel"` {
		t.Error("store written during unavailable refresh")
	}
}

func TestRegistry_LoadThenRefresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, KeyAllDevices, []byte(`[
		{"id":"AA:BB","name":"Mouse","isSaved":true,"lastSeen":"2026-03-01T09:00:00Z"},
		{"id":"CC:DD","name":"Keyboard","isSaved":true,"lastSeen":"2026-03-01T09:00:00Z"}
	]`))
	_ = store.Set(ctx, KeySavedDeviceIDs, []byte(`["AA:BB"]`))

	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "CC:DD", Name: "Keyboard"}}}
	r := newTestRegistry(enum, store)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if d, _ := r.Device("CC:DD"); d.IsSaved {
		t.Error("saved_device_ids should decide IsSaved on load")
	}
	if d, _ := r.Device("AA:BB"); d.OperationStatus != StatusIdle || d.IsConnected {
		t.Errorf("loaded device transient fields = %+v", d)
	}

	_ = r.Refresh(ctx)
	if d, _ := r.Device("CC:DD"); d.IsSaved {
		t.Error("refresh re-saved an unsaved device")
	}
	if d, err := r.Device("AA:BB"); err != nil || !d.LastSeen.Equal(t0) {
		t.Errorf("unseen device changed or lost: %+v, %v", d, err)
	}
}

func TestRegistry_LoadEmptyStore(t *testing.T) {
	r := newTestRegistry(&fakeEnumerator{}, NewMemoryStore())
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

// flakyStore wraps a MemoryStore with switchable read and write failures.
type flakyStore struct {
	*MemoryStore
	mu     sync.Mutex
	getErr error
	setErr error
}

func (f *flakyStore) fail(getErr, setErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr, f.setErr = getErr, setErr
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	return f.SetAll(ctx, map[string][]byte{key: value})
}

func (f *flakyStore) SetAll(ctx context.Context, values map[string][]byte) error {
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.SetAll(ctx, values)
}

func TestRegistry_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, KeyAllDevices, []byte(`{not json`))
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, store)
	if err := r.Load(ctx); err == nil {
		t.Fatal("Load() = nil error for corrupt data")
	}

	backup, err := store.Get(ctx, KeyAllDevices+CorruptSuffix)
	if err != nil || string(backup) != `{not json` {
		t.Fatalf("backup = %q, %v, want the undecodable value", backup, err)
	}

	// With the rows copied aside, writes carry on.
	_ = r.Refresh(ctx)
	if got := storedRecords(t, store); len(got) != 1 || got[0].ID != "AA:BB" {
		t.Errorf("stored records after refresh = %+v", got)
	}
}

func TestRegistry_LoadFailureSuspendsPersistence(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	_ = mem.Set(ctx, KeyAllDevices, []byte(`[{"id":"CC:DD","name":"Keyboard","isSaved":true,"lastSeen":"2026-03-01T09:00:00Z"}]`))
	_ = mem.Set(ctx, KeySavedDeviceIDs, []byte(`["CC:DD"]`))
	store := &flakyStore{MemoryStore: mem}
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, store)

	tests := []struct {
		name           string
		getErr, setErr error
		seed           []byte
	}{
		{name: "store unreadable", getErr: errors.New("database is locked")},
		{name: "corrupt and copy fails", setErr: errors.New("disk full"), seed: []byte(`{not json`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, _ := mem.Get(ctx, KeyAllDevices)
			if tt.seed != nil {
				_ = mem.Set(ctx, KeyAllDevices, tt.seed)
				want = tt.seed
			}
			store.fail(tt.getErr, tt.setErr)
			if err := r.Load(ctx); err == nil {
				t.Fatal("Load() = nil error")
			}
			store.fail(nil, nil)

			_ = r.Refresh(ctx)
			_, _ = r.ToggleSaved(ctx, "AA:BB")

			if got, _ := mem.Get(ctx, KeyAllDevices); string(got) != string(want) {
				t.Errorf("all_devices overwritten while suspended: %s", got)
			}
		})
	}

	_ = mem.Set(ctx, KeyAllDevices, []byte(`[{"id":"CC:DD","name":"Keyboard","isSaved":true,"lastSeen":"2026-03-01T09:00:00Z"}]`))
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_ = r.Refresh(ctx)
	if got := storedRecords(t, mem); len(got) != 2 {
		t.Errorf("stored %d records after a good load, want 2", len(got))
	}
}

// gatedEnumerator blocks its first call until release is closed and then
// reports the device disconnected. Later calls report it connected.
type gatedEnumerator struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEnumerator) ListPaired(ctx context.Context) ([]bluetooth.PairedDevice, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if n == 1 {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse", Connected: false}}, nil
	}
	return []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse", Connected: true}}, nil
}

func (g *gatedEnumerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestRegistry_RefreshSerialized(t *testing.T) {
	ctx := context.Background()
	enum := &gatedEnumerator{entered: make(chan struct{}), release: make(chan struct{})}
	store := NewMemoryStore()
	r := NewRegistry(enum, store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.Refresh(ctx)
	}()
	<-enum.entered

	go func() {
		defer wg.Done()
		_ = r.Refresh(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	if got := enum.callCount(); got != 1 {
		t.Fatalf("enumerations = %d while the first refresh was in flight, want 1", got)
	}
	close(enum.release)
	wg.Wait()

	d, err := r.Device("AA:BB")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if !d.IsConnected {
		t.Error("stale enumeration overwrote the newer one")
	}
	if got := storedRecords(t, store); len(got) != 1 {
		t.Fatalf("stored records = %+v", got)
	}
}

func TestRegistry_ToggleSaved(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	store := NewMemoryStore()
	r := newTestRegistry(enum, store)
	_ = r.Refresh(ctx)

	d, err := r.ToggleSaved(ctx, "AA:BB")
	if err != nil {
		t.Fatalf("ToggleSaved() error = %v", err)
	}
	if d.IsSaved {
		t.Error("ToggleSaved() did not flip")
	}
	if saved := storedSavedIDs(t, store); len(saved) != 0 {
		t.Errorf("saved_device_ids = %v, want empty", saved)
	}
	if len(r.SavedDevices()) != 0 {
		t.Error("SavedDevices() includes unsaved device")
	}

	if _, err := r.ToggleSaved(ctx, "nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ToggleSaved(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_RemovalGuard(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, NewMemoryStore())
	_ = r.Refresh(ctx)

	if err := r.RemoveDevice(ctx, "AA:BB"); !errors.Is(err, ErrDevicePaired) {
		t.Fatalf("RemoveDevice(paired) error = %v, want ErrDevicePaired", err)
	}
	if r.Count() != 1 {
		t.Fatal("paired device was removed")
	}

	enum.set(nil, bluetooth.ErrUnavailable)
	if err := r.RemoveDevice(ctx, "AA:BB"); !errors.Is(err, ErrDevicePaired) {
		t.Fatalf("RemoveDevice(enumeration down) error = %v, want ErrDevicePaired", err)
	}
	if r.Count() != 1 {
		t.Fatal("device removed while pairing state unknown")
	}

	enum.set(nil, nil)
	if err := r.RemoveDevice(ctx, "AA:BB"); err != nil {
		t.Fatalf("RemoveDevice(unpaired) error = %v", err)
	}
	if r.Count() != 0 {
		t.Error("unpaired device not removed")
	}
	if err := r.RemoveDevice(ctx, "AA:BB"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("RemoveDevice(again) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_SetOperationStatus(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, NewMemoryStore())
	_ = r.Refresh(ctx)

	events, cancel := r.Subscribe(8)
	defer cancel()

	steps := []struct {
		status  OperationStatus
		wantErr error
		want    OperationStatus
	}{
		{StatusPairing, nil, StatusPairing},
		{StatusPairing, nil, StatusPairing},
		{StatusUnpairing, ErrInvalidTransition, StatusPairing},
		{StatusConnecting, ErrInvalidTransition, StatusPairing},
		{StatusIdle, nil, StatusIdle},
		{StatusConnecting, nil, StatusConnecting},
		{StatusIdle, nil, StatusIdle},
		{OperationStatus("bogus"), ErrInvalidStatus, StatusIdle},
	}
	for _, s := range steps {
		err := r.SetOperationStatus("AA:BB", s.status)
		if !errors.Is(err, s.wantErr) {
			t.Fatalf("SetOperationStatus(%q) error = %v, want %v", s.status, err, s.wantErr)
		}
		if d, _ := r.Device("AA:BB"); d.OperationStatus != s.want {
			t.Fatalf("after %q status = %q, want %q", s.status, d.OperationStatus, s.want)
		}
	}

	// pairing, idle, connecting, idle: repeats and rejections publish nothing.
	if got := len(events); got != 4 {
		t.Errorf("published %d events, want 4", got)
	}

	if err := r.SetOperationStatus("nope", StatusPairing); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetOperationStatus(unknown) error = %v", err)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, NewMemoryStore())
	_ = r.Refresh(ctx)

	devices := r.Devices()
	devices[0].Name = "Hacked"
	if d, _ := r.Device("AA:BB"); d.Name != "Mouse" {
		t.Error("Devices() exposed internal state")
	}
}

func TestRegistry_PersistFailureIsLogged(t *testing.T) {
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, failingStore{})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v, want nil despite store failure", err)
	}
	if r.Count() != 1 {
		t.Error("registry not updated when store fails")
	}
}

func TestRegistry_SubscribeCancel(t *testing.T) {
	enum := &fakeEnumerator{devices: []bluetooth.PairedDevice{{Address: "AA:BB", Name: "Mouse"}}}
	r := newTestRegistry(enum, NewMemoryStore())

	events, cancel := r.Subscribe(1)
	_ = r.Refresh(context.Background())
	_ = r.Refresh(context.Background()) // dropped, buffer full

	ev := <-events
	if ev.Type != EventDevicesRefreshed || len(ev.Devices) != 1 {
		t.Errorf("event = %+v", ev)
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
	_ = r.Refresh(context.Background())
}
