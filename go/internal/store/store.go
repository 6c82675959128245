package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrConflict is returned by a Backend when the stored version moved
	// underneath a compare-and-swap.
	ErrConflict = errors.New("version conflict")
	// ErrTooManyRetries is returned when a transaction kept conflicting.
	ErrTooManyRetries = errors.New("transaction retries exhausted")
	// ErrClosed is returned by a closed engine and delivered to live
	// subscriptions when the engine shuts down.
	ErrClosed = errors.New("store closed")
	// ErrInvalidPath is returned for an empty or malformed path.
	ErrInvalidPath = errors.New("invalid path")
	// ErrNoValue is returned when decoding a snapshot of a missing node.
	ErrNoValue = errors.New("no value at path")
)

// Store is a path-addressed tree with value and child change feeds. Paths
// are slash separated; the first segment names the document root.
type Store interface {
	Push(ctx context.Context, parent string) (string, error)
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Transact(ctx context.Context, path string, fn TransactFunc) (Snapshot, error)
	SubscribeValue(path string, handler ValueHandler) (Subscription, error)
	SubscribeChildren(path string, handler ChildHandler) (Subscription, error)
}

// TransactFunc computes the new value of a node from its current value.
// current is nil when the node does not exist; returning nil deletes it.
// Returning an error aborts the transaction with that error.
type TransactFunc func(current json.RawMessage) (json.RawMessage, error)

// Subscription is a live feed registration.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is harmless.
	Unsubscribe()
}

// ValueHandler receives the whole value of a node each time it changes.
type ValueHandler interface {
	OnValue(snap Snapshot)
	OnCancel(err error)
}

// ChildHandler receives per-child events for the children of a node.
// prevKey is the key of the preceding sibling, or "" for the first child.
type ChildHandler interface {
	OnChildAdded(snap Snapshot, prevKey string)
	OnChildChanged(snap Snapshot, prevKey string)
	OnChildRemoved(snap Snapshot)
	OnChildMoved(snap Snapshot, prevKey string)
	OnCancel(err error)
}

// Snapshot is an immutable view of a node at one point in time.
type Snapshot struct {
	Path  string
	Key   string
	Value json.RawMessage
}

// Exists reports whether the node held a value.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0
}

// Decode unmarshals the value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return ErrNoValue
	}
	return json.Unmarshal(s.Value, v)
}

// Document is one stored root together with its version. A missing root
// has nil Data; its Version may still be non-zero after a delete.
type Document struct {
	Data    []byte
	Version int64
}

// Backend persists whole documents with optimistic concurrency and
// announces which roots changed.
type Backend interface {
	Load(ctx context.Context, root string) (Document, error)
	// Swap replaces the document if its version still equals expected and
	// returns the new version. nil data deletes the document.
	Swap(ctx context.Context, root string, expected int64, data []byte) (int64, error)
	// Watch registers notify for the root of every change and returns once
	// the registration is live. The returned channel yields the error that
	// ended the feed (nil when ctx was cancelled) and is then closed. An
	// empty root means changes may have been missed for every root.
	Watch(ctx context.Context, notify func(root string)) (<-chan error, error)
	Close() error
}
