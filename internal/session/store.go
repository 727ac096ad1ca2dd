package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("session: not found")
	ErrInvalidKey = errors.New("session: empty host key")
)

// Record is what survives a restart for one node.
type Record struct {
	SessionID string
	UpdatedAt time.Time
}

// Store persists resumable session ids per node. The key is the node's
// host:port so an id is never offered to a different server.
type Store interface {
	GetSession(ctx context.Context, host string) (Record, error)
	SetSession(ctx context.Context, host string, rec Record) error
	DeleteSession(ctx context.Context, host string) error
	Close() error
}

func normalizeKey(host string) (string, error) {
	key := strings.TrimSpace(host)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}

// MemoryStore keeps sessions for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Record),
	}
}

func (m *MemoryStore) GetSession(_ context.Context, host string) (Record, error) {
	key, err := normalizeKey(host)
	if err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.items[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) SetSession(_ context.Context, host string, rec Record) error {
	key, err := normalizeKey(host)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = rec
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, host string) error {
	key, err := normalizeKey(host)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
