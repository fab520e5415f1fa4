package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/autopair-core/internal/infrastructure/database"
)

// Keys under which the registry persists its state.
const (
	KeySavedDeviceIDs = "saved_device_ids"
	KeyAllDevices     = "all_devices"
)

// Store is a minimal key-value store for registry state.
//
// Get returns ErrKeyNotFound for keys that were never set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// BatchStore is implemented by stores that can write several keys
// atomically. The registry uses it when available so both keys always come
// from the same snapshot.
type BatchStore interface {
	Store
	SetAll(ctx context.Context, values map[string][]byte) error
}

// SQLiteStore keeps values in the kv table.
type SQLiteStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLiteStore returns a store backed by db. The kv table must exist
// (see migrations).
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetAll(ctx, map[string][]byte{key: value})
}

// SetAll writes every key in one transaction.
func (s *SQLiteStore) SetAll(ctx context.Context, values map[string][]byte) error {
	updatedAt := s.now().UTC().Format(time.RFC3339)

	// Sorted so writes happen in the same order every time.
	keys := slices.Sorted(maps.Keys(values))

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, values[key], updatedAt,
			)
			if err != nil {
				return fmt.Errorf("writing key %q: %w", key, err)
			}
		}
		return nil
	})
}

// MemoryStore is an in-process Store. It is used in tests and when no
// database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// SetAll stores every key under one lock.
func (m *MemoryStore) SetAll(_ context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = append([]byte(nil), v...)
	}
	return nil
}
