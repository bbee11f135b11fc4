// Package settings persists the opaque UI settings blob under a storage key.
package settings

import (
	"context"
	"encoding/json"
	"sync"
)

// DefaultKey is the storage key the UI settings live under.
const DefaultKey = "presentator_storage"

// Store loads and saves the settings blob. Load returns nil, nil when nothing
// has been saved yet.
type Store interface {
	Load(ctx context.Context) (json.RawMessage, error)
	Save(ctx context.Context, blob json.RawMessage) error
}

// Options selects a backend. Redis wins over File; with neither the blob only
// lives in memory.
type Options struct {
	Key       string
	File      string
	RedisAddr string
}

// Open returns the store described by o.
func Open(o Options) (Store, error) {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	switch {
	case o.RedisAddr != "":
		rs, err := NewRedisStore(o.RedisAddr, o.Key)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case o.File != "":
		return NewFileStore(o.File, o.Key), nil
	default:
		return NewMemoryStore(), nil
	}
}

// MemoryStore keeps the blob in process.
type MemoryStore struct {
	mu   sync.RWMutex
	blob json.RawMessage
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.blob == nil {
		return nil, nil
	}
	return append(json.RawMessage(nil), m.blob...), nil
}

func (m *MemoryStore) Save(_ context.Context, blob json.RawMessage) error {
	if !json.Valid(blob) {
		return ErrInvalidBlob
	}
	m.mu.Lock()
	m.blob = append(json.RawMessage(nil), blob...)
	m.mu.Unlock()
	return nil
}
