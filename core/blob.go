package core

import (
	"bytes"
	"encoding/json"
	"sync"

	"pkt.systems/swissblade/internal/persist"
)

// envelope mirrors the {"state": ..., "version": n} wrapper the web stores write.
type envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// blob persists one namespaced value and remembers the last bytes it saw.
type blob struct {
	backend  persist.Backend
	key      string
	wrapped  bool
	mu       sync.Mutex
	lastSeen []byte
}

func newBlob(backend persist.Backend, key string, wrapped bool) *blob {
	return &blob{backend: backend, key: key, wrapped: wrapped}
}

// load decodes the stored value into v. It reports false when nothing is stored.
func (b *blob) load(v any) (bool, error) {
	if b == nil || b.backend == nil {
		return false, nil
	}
	data, ok, err := b.backend.Load(b.key)
	if err != nil || !ok {
		return false, err
	}
	if err := b.decode(data, v); err != nil {
		return false, err
	}
	b.remember(data)
	return true, nil
}

// reload decodes the stored value only when it differs from the last bytes seen.
func (b *blob) reload(v any) (bool, error) {
	if b == nil || b.backend == nil {
		return false, nil
	}
	data, ok, err := b.backend.Load(b.key)
	if err != nil || !ok {
		return false, err
	}
	b.mu.Lock()
	same := bytes.Equal(data, b.lastSeen)
	b.mu.Unlock()
	if same {
		return false, nil
	}
	if err := b.decode(data, v); err != nil {
		return false, err
	}
	b.remember(data)
	return true, nil
}

func (b *blob) save(v any) error {
	if b == nil || b.backend == nil {
		return nil
	}
	data, err := b.encode(v)
	if err != nil {
		return err
	}
	if err := b.backend.Save(b.key, data); err != nil {
		return err
	}
	b.remember(data)
	return nil
}

func (b *blob) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !b.wrapped {
		return raw, nil
	}
	return json.Marshal(envelope{State: raw})
}

func (b *blob) decode(data []byte, v any) error {
	if !b.wrapped {
		return json.Unmarshal(data, v)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.State) == 0 || bytes.Equal(env.State, []byte("null")) {
		return nil
	}
	return json.Unmarshal(env.State, v)
}

func (b *blob) remember(data []byte) {
	b.mu.Lock()
	b.lastSeen = append(b.lastSeen[:0], data...)
	b.mu.Unlock()
}
