package party

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *store.Engine {
	t.Helper()
	e, err := store.NewEngine(store.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newGateway(t *testing.T, s store.Store, cfg Config) *Gateway {
	t.Helper()
	g := NewGateway(s, cfg, clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { _ = g.Close() })
	return g
}

// flush waits for the engine to deliver everything written so far.
func flush(t *testing.T, e *store.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))
}

type partyRecorder struct {
	mu      sync.Mutex
	changed []models.Party
	closed  []string
}

func (r *partyRecorder) OnPartyChanged(p models.Party) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, p)
}

func (r *partyRecorder) OnPartyClosed(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, key)
}

func (r *partyRecorder) parties() []models.Party {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Party(nil), r.changed...)
}

func (r *partyRecorder) closedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

type attendeeEvent struct {
	kind  string
	names []string
	index int
}

type attendeeRecorder struct {
	mu     sync.Mutex
	events []attendeeEvent
}

func (r *attendeeRecorder) record(kind string, list []models.Attendee, index int) {
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, attendeeEvent{kind: kind, names: names, index: index})
}

func (r *attendeeRecorder) OnAttendeeAdded(_ string, list []models.Attendee, i int) {
	r.record("added", list, i)
}

func (r *attendeeRecorder) OnAttendeeRemoved(_ string, list []models.Attendee, i int) {
	r.record("removed", list, i)
}

func (r *attendeeRecorder) OnAttendeeChanged(_ string, list []models.Attendee, i int) {
	r.record("changed", list, i)
}

func (r *attendeeRecorder) all() []attendeeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]attendeeEvent(nil), r.events...)
}

// countingStore counts store subscriptions opened and closed.
type countingStore struct {
	store.Store
	opened atomic.Int32
	closed atomic.Int32

	mu        sync.Mutex
	lastValue store.ValueHandler
}

type countedSubscription struct {
	store.Subscription
	once   sync.Once
	closed *atomic.Int32
}

func (s *countedSubscription) Unsubscribe() {
	s.once.Do(func() { s.closed.Add(1) })
	s.Subscription.Unsubscribe()
}

func (c *countingStore) wrap(sub store.Subscription, err error) (store.Subscription, error) {
	if err != nil {
		return nil, err
	}
	c.opened.Add(1)
	return &countedSubscription{Subscription: sub, closed: &c.closed}, nil
}

func (c *countingStore) SubscribeValue(path string, h store.ValueHandler) (store.Subscription, error) {
	c.mu.Lock()
	c.lastValue = h
	c.mu.Unlock()
	return c.wrap(c.Store.SubscribeValue(path, h))
}

func (c *countingStore) SubscribeChildren(path string, h store.ChildHandler) (store.Subscription, error) {
	return c.wrap(c.Store.SubscribeChildren(path, h))
}

// barrier releases every waiter once n have arrived.
type barrier struct {
	n       int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()
	<-b.release
}

// racingStore holds concurrent readers until all of them have read, so
// their writes are computed from the same state.
type racingStore struct {
	store.Store
	gate *barrier
}

func (r *racingStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	snap, err := r.Store.Get(ctx, path)
	r.gate.wait()
	return snap, err
}

func (r *racingStore) Transact(ctx context.Context, path string, fn store.TransactFunc) (store.Snapshot, error) {
	first := true
	return r.Store.Transact(ctx, path, func(cur json.RawMessage) (json.RawMessage, error) {
		if first {
			first = false
			r.gate.wait()
		}
		return fn(cur)
	})
}

var errUnavailable = errors.New("store unavailable")

// brokenStore fails every read and write.
type brokenStore struct {
	store.Store
}

func (brokenStore) Get(context.Context, string) (store.Snapshot, error) {
	return store.Snapshot{}, errUnavailable
}

func (brokenStore) Set(context.Context, string, any) error {
	return errUnavailable
}

func (brokenStore) Transact(context.Context, string, store.TransactFunc) (store.Snapshot, error) {
	return store.Snapshot{}, errUnavailable
}
