package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/autopair-core/internal/infrastructure/database"
	_ "github.com/nerrad567/autopair-core/migrations"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db)
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) BatchStore{
		"sqlite": func(t *testing.T) BatchStore { return newSQLiteStore(t) },
		"memory": func(*testing.T) BatchStore { return NewMemoryStore() },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
			}

			if err := s.Set(ctx, KeyAllDevices, []byte(`[]`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, KeyAllDevices, []byte(`[{"id":"AA:BB"}]`)); err != nil {
				t.Fatalf("Set(overwrite) error = %v", err)
			}
			got, err := s.Get(ctx, KeyAllDevices)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != `[{"id":"AA:BB"}]` {
				t.Errorf("Get() = %s, want overwritten value", got)
			}

			err = s.SetAll(ctx, map[string][]byte{
				KeyAllDevices:     []byte(`[]`),
				KeySavedDeviceIDs: []byte(`["AA:BB"]`),
			})
			if err != nil {
				t.Fatalf("SetAll() error = %v", err)
			}
			got, _ = s.Get(ctx, KeySavedDeviceIDs)
			if string(got) != `["AA:BB"]` {
				t.Errorf("Get(saved) = %s", got)
			}
			got, _ = s.Get(ctx, KeyAllDevices)
			if string(got) != `[]` {
				t.Errorf("Get(all) = %s", got)
			}
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	value := []byte("abc")
	_ = s.Set(ctx, "k", value)
	value[0] = 'x'

	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller slice: %s", got)
	}
	got[0] = 'y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("returned value aliased store: %s", again)
	}
}
