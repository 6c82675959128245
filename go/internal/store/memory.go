package store

import (
	"bytes"
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. Several engines may
// share one backend, each acting as an independent client.
type MemoryBackend struct {
	mu       sync.Mutex
	docs     map[string]Document
	watchers map[int]func(string)
	nextID   int
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs:     make(map[string]Document),
		watchers: make(map[int]func(string)),
	}
}

func (m *MemoryBackend) Load(ctx context.Context, root string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.docs[root]
	return Document{Data: bytes.Clone(doc.Data), Version: doc.Version}, nil
}

func (m *MemoryBackend) Swap(ctx context.Context, root string, expected int64, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	doc := m.docs[root]
	if doc.Version != expected {
		m.mu.Unlock()
		return 0, ErrConflict
	}
	// Deleted roots keep their version so a stale swap cannot resurrect them.
	next := Document{Data: bytes.Clone(data), Version: doc.Version + 1}
	m.docs[root] = next
	watchers := make([]func(string), 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, notify := range watchers {
		notify(root)
	}
	return next.Version, nil
}

func (m *MemoryBackend) Watch(ctx context.Context, notify func(root string)) (<-chan error, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = notify
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer close(done)
		<-ctx.Done()

		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
		done <- nil
	}()
	return done, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
