package storage

import (
	"context"
	"sync"
)

// Memory keeps blobs in a process-local map.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailSave, when set, is returned by every Save.
	FailSave error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Memory) Save(_ context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return wrap("save", key, m.FailSave)
	}
	m.data[key] = append([]byte(nil), blob...)
	return nil
}

// Set seeds a raw value, bypassing FailSave.
func (m *Memory) Set(key string, blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), blob...)
}
