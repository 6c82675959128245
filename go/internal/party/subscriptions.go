package party

import (
	"slices"
	"sync"

	"github.com/mcdev12/spotmix/go/internal/store"
)

// subscriptionManager owns the single store subscription behind a set of
// listeners. The first add opens it and the last remove closes it.
// Listener values must be comparable (pointer receivers).
type subscriptionManager[L comparable] struct {
	mu        sync.Mutex
	listeners []L
	handle    store.Subscription
	gen       uint64
	open      func(gen uint64) (store.Subscription, error)
}

// add registers l and opens the subscription if there is none, including
// after the store cancelled it. Adding a registered listener only reopens.
func (m *subscriptionManager[L]) add(l L) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		m.gen++
		h, err := m.open(m.gen)
		if err != nil {
			return err
		}
		m.handle = h
	}
	if !slices.Contains(m.listeners, l) {
		m.listeners = append(m.listeners, l)
	}
	return nil
}

// remove unregisters l. Removing an unknown listener is a no-op.
func (m *subscriptionManager[L]) remove(l L) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.Index(m.listeners, l)
	if i < 0 {
		return
	}
	m.listeners = slices.Delete(m.listeners, i, i+1)
	if len(m.listeners) == 0 {
		m.closeHandle()
	}
}

// cancelled forgets a subscription the store has cancelled. Listeners stay
// registered; the next add opens a fresh subscription.
func (m *subscriptionManager[L]) cancelled(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.handle = nil
	}
}

func (m *subscriptionManager[L]) closeHandle() {
	if m.handle != nil {
		m.handle.Unsubscribe()
		m.handle = nil
	}
}

func (m *subscriptionManager[L]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = nil
	m.closeHandle()
}

func (m *subscriptionManager[L]) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners) == 0
}

// snapshot returns the listeners in registration order.
func (m *subscriptionManager[L]) snapshot() []L {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.listeners)
}

// current reports whether gen is the live subscription.
func (m *subscriptionManager[L]) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen && m.handle != nil
}
