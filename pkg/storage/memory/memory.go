// Package memory keeps objects in process memory, for local runs and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type Storage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func New() *Storage {
	return &Storage{objects: make(map[string][]byte)}
}

func (m *Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return key, nil
}

func (m *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("failed to get file: object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Keys lists stored object keys.
func (m *Storage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
