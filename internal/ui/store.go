package ui

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gaspardpetit/figbridge/internal/logx"
)

// Store is the UI's copy of the persisted settings, a JSON object keyed by
// name. Every Set writes the whole object back to the host.
type Store struct {
	save func(context.Context, json.RawMessage) error

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func newStore(save func(context.Context, json.RawMessage) error) *Store {
	return &Store{save: save, values: map[string]json.RawMessage{}}
}

// load replaces the values with blob. A blob that is not an object starts empty.
func (s *Store) load(blob json.RawMessage) {
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(blob, &values); err != nil || values == nil {
		logx.Log.Warn().Err(err).Msg("settings blob is not an object; starting empty")
		values = map[string]json.RawMessage{}
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
}

// Get decodes key into v and reports whether it was present.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Set stores v under key and sends the updated blob to the host. The previous
// value is restored when the host could not be reached.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.update(ctx, key, raw)
}

// Delete removes key and sends the updated blob to the host. The key is
// restored when the host could not be reached.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.update(ctx, key, nil)
}

// update sets key to raw, or removes it when raw is nil, then saves.
func (s *Store) update(ctx context.Context, key string, raw json.RawMessage) error {
	s.mu.Lock()
	prev, had := s.values[key]
	if raw == nil {
		delete(s.values, key)
	} else {
		s.values[key] = raw
	}
	blob, _ := json.Marshal(s.values)
	s.mu.Unlock()

	if err := s.save(ctx, blob); err != nil {
		s.mu.Lock()
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot encodes the current values.
func (s *Store) Snapshot() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(s.values)
	return b
}
