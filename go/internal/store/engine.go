package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/spotmix/go/internal/workqueue"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRetries  = 25
	defaultLoadTimeout = 10 * time.Second
)

// Engine implements Store on top of a Backend. All handler callbacks for
// the engine's subscriptions run on one dispatcher goroutine, in order.
type Engine struct {
	backend     Backend
	dispatch    *workqueue.Queue
	maxRetries  int
	loadTimeout time.Duration

	stopWatch context.CancelFunc
	watchDone chan struct{}

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool

	// Local commits per root whose delivery job has not run yet, and roots
	// whose change hint arrived meanwhile.
	pending  map[string]int
	deferred map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries bounds how often a conflicting write is retried.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithLoadTimeout bounds the reads the dispatcher performs to refresh
// subscriptions.
func WithLoadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.loadTimeout = d
		}
	}
}

var _ Store = (*Engine)(nil)

// NewEngine starts an engine and begins watching the backend's change feed.
// The backend is not owned by the engine and is not closed by Close.
func NewEngine(backend Backend, opts ...Option) (*Engine, error) {
	e := &Engine{
		backend:     backend,
		dispatch:    workqueue.New(),
		maxRetries:  defaultMaxRetries,
		loadTimeout: defaultLoadTimeout,
		watchDone:   make(chan struct{}),
		subs:        make(map[string]map[*subscription]struct{}),
		pending:     make(map[string]int),
		deferred:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := backend.Watch(ctx, e.notify)
	if err != nil {
		cancel()
		e.dispatch.Stop()
		return nil, fmt.Errorf("failed to watch store changes: %w", err)
	}
	e.stopWatch = cancel
	go e.watch(ctx, feed)

	return e, nil
}

func (e *Engine) watch(ctx context.Context, feed <-chan error) {
	defer close(e.watchDone)

	err := <-feed
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("change feed ended")
	}
	log.Error().Err(err).Msg("store change feed stopped, cancelling subscriptions")
	e.dispatch.Push(func() {
		for _, s := range e.allSubscriptions() {
			e.cancel(s, err)
		}
	})
}

// notify schedules a refresh of every subscription under root. It is the
// backend's change hint; local commits are delivered by deliverCommitted.
func (e *Engine) notify(root string) {
	e.dispatch.Push(func() { e.refresh(root) })
}

// Push generates a unique, time-ordered child key. Nothing is written.
func (e *Engine) Push(ctx context.Context, parent string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return id.String(), nil
}

// Get reads the current value at path.
func (e *Engine) Get(ctx context.Context, path string) (Snapshot, error) {
	root, segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := e.checkOpen(); err != nil {
		return Snapshot{}, err
	}

	doc, err := e.backend.Load(ctx, root)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load %s: %w", root, err)
	}
	tree, err := decodeTree(doc.Data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode %s: %w", root, err)
	}
	return e.snapshot(root, segs, getAt(tree, segs))
}

// Set replaces the subtree at path. A nil value removes it.
func (e *Engine) Set(ctx context.Context, path string, value any) error {
	node, err := toTree(value)
	if err != nil {
		return err
	}
	_, err = e.mutate(ctx, path, func(any) (any, error) {
		return node, nil
	})
	return err
}

// Update writes several children of path in one atomic step. Field names
// may themselves be relative paths; nil values remove the child.
func (e *Engine) Update(ctx context.Context, path string, fields map[string]any) error {
	type write struct {
		segs []string
		node any
	}
	writes := make([]write, 0, len(fields))
	for name, value := range fields {
		_, segs, err := splitPath("x/" + name)
		if err != nil {
			return err
		}
		if len(segs) == 0 {
			return fmt.Errorf("%w: empty field name", ErrInvalidPath)
		}
		node, err := toTree(value)
		if err != nil {
			return err
		}
		writes = append(writes, write{segs: segs, node: node})
	}

	_, err := e.mutate(ctx, path, func(current any) (any, error) {
		for _, w := range writes {
			current = setAt(current, w.segs, w.node)
		}
		return current, nil
	})
	return err
}

// Remove deletes the subtree at path. Removing a missing node succeeds.
func (e *Engine) Remove(ctx context.Context, path string) error {
	return e.Set(ctx, path, nil)
}

// Transact runs fn against the current value of path and commits its
// result with compare-and-swap, re-running fn when another writer got
// there first.
func (e *Engine) Transact(ctx context.Context, path string, fn TransactFunc) (Snapshot, error) {
	root, segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	node, err := e.mutate(ctx, path, func(current any) (any, error) {
		raw, err := encodeTree(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(raw)
		if err != nil {
			return nil, err
		}
		return decodeTree(next)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(root, segs, node)
}

func (e *Engine) mutate(ctx context.Context, path string, fn func(current any) (any, error)) (any, error) {
	root, segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		doc, err := e.backend.Load(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", root, err)
		}
		tree, err := decodeTree(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", root, err)
		}
		before, err := encodeTree(tree)
		if err != nil {
			return nil, err
		}

		next, err := fn(getAt(tree, segs))
		if err != nil {
			return nil, err
		}
		next = normalize(next)

		after, err := encodeTree(setAt(tree, segs, next))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", root, err)
		}
		if bytes.Equal(before, after) {
			return next, nil
		}

		e.beginCommit(root)
		version, err := e.backend.Swap(ctx, root, doc.Version, after)
		if err != nil {
			if e.endCommit(root) {
				e.notify(root)
			}
			if errors.Is(err, ErrConflict) {
				log.Debug().Str("root", root).Int("attempt", attempt+1).Msg("write conflicted, retrying")
				continue
			}
			return nil, fmt.Errorf("failed to write %s: %w", root, err)
		}
		e.dispatch.Push(func() { e.deliverCommitted(root, version, after) })
		return next, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTooManyRetries, path)
}

func (e *Engine) snapshot(root string, segs []string, node any) (Snapshot, error) {
	raw, err := encodeTree(node)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: joinPath(root, segs), Key: lastSegment(root, segs), Value: raw}, nil
}

// SubscribeValue delivers the value at path now and after every change.
func (e *Engine) SubscribeValue(path string, handler ValueHandler) (Subscription, error) {
	return e.subscribe(path, handler, nil)
}

// SubscribeChildren delivers an added event for every existing child, then
// per-child events as they change.
func (e *Engine) SubscribeChildren(path string, handler ChildHandler) (Subscription, error) {
	return e.subscribe(path, nil, handler)
}

func (e *Engine) subscribe(path string, vh ValueHandler, ch ChildHandler) (Subscription, error) {
	root, segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	s := &subscription{
		engine: e,
		root:   root,
		segs:   segs,
		path:   joinPath(root, segs),
		value:  vh,
		child:  ch,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if e.subs[root] == nil {
		e.subs[root] = make(map[*subscription]struct{})
	}
	e.subs[root][s] = struct{}{}
	e.mu.Unlock()

	e.dispatch.Push(func() { e.initialize(s) })
	return s, nil
}

// Flush waits until every event caused by writes made through this engine
// before the call has been delivered. Do not call it from a handler.
func (e *Engine) Flush(ctx context.Context) error {
	return e.dispatch.Flush(ctx)
}

// Close cancels every subscription with ErrClosed and stops the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stopWatch()
	e.dispatch.Push(func() {
		for _, s := range e.allSubscriptions() {
			e.cancel(s, ErrClosed)
		}
		e.dispatch.Stop()
	})
	<-e.watchDone
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *Engine) allSubscriptions() []*subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*subscription
	for _, set := range e.subs {
		for s := range set {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) subscriptionsFor(root string) []*subscription {
	if root == "" {
		return e.allSubscriptions()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*subscription, 0, len(e.subs[root]))
	for s := range e.subs[root] {
		out = append(out, s)
	}
	return out
}

func (e *Engine) detach(s *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.subs[s.root]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(e.subs, s.root)
		}
	}
}

func (e *Engine) load(root string) (any, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.loadTimeout)
	defer cancel()

	doc, err := e.backend.Load(ctx, root)
	if err != nil {
		return nil, 0, err
	}
	tree, err := decodeTree(doc.Data)
	if err != nil {
		return nil, 0, err
	}
	return tree, doc.Version, nil
}

func (e *Engine) beginCommit(root string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[root]++
}

// endCommit settles one local commit and reports whether a refresh that
// was held back behind it is now due.
func (e *Engine) endCommit(root string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[root]--
	if e.pending[root] > 0 {
		return false
	}
	delete(e.pending, root)
	if !e.deferred[root] {
		return false
	}
	delete(e.deferred, root)
	return true
}

// holdRefresh marks root for a later refresh if local commits to it are
// still waiting for delivery.
func (e *Engine) holdRefresh(root string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending[root] == 0 {
		return false
	}
	e.deferred[root] = true
	return true
}

// deliverCommitted runs on the dispatcher and hands the tree written by a
// local commit to every subscription that has not seen that version, so
// back-to-back writes each produce their own event.
func (e *Engine) deliverCommitted(root string, version int64, data []byte) {
	due := e.endCommit(root)

	tree, err := decodeTree(data)
	if err != nil {
		log.Error().Err(err).Str("root", root).Msg("failed to decode committed document")
	} else {
		for _, s := range e.subscriptionsFor(root) {
			if !s.ready || s.closed.Load() || version <= s.version {
				continue
			}
			s.version = version
			s.deliver(tree, false)
		}
	}

	if due {
		e.refresh(root)
	}
}

// initialize runs on the dispatcher and delivers the first state.
func (e *Engine) initialize(s *subscription) {
	if s.closed.Load() {
		return
	}
	tree, version, err := e.load(s.root)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("initial load failed, cancelling subscription")
		e.cancel(s, err)
		return
	}
	s.ready = true
	s.version = version
	s.deliver(tree, true)
}

// refresh runs on the dispatcher after a change to root.
func (e *Engine) refresh(root string) {
	if root == "" {
		roots := make(map[string]struct{})
		for _, s := range e.allSubscriptions() {
			roots[s.root] = struct{}{}
		}
		for r := range roots {
			e.refresh(r)
		}
		return
	}

	// Local commits carry their own trees; reload once they are delivered.
	if e.holdRefresh(root) {
		return
	}

	var subs []*subscription
	for _, s := range e.subscriptionsFor(root) {
		if s.ready && !s.closed.Load() {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		return
	}

	tree, version, err := e.load(root)
	if err != nil {
		// Subscriptions stay open; the next change notification reloads.
		log.Warn().Err(err).Str("root", root).Msg("failed to refresh subscriptions")
		return
	}
	for _, s := range subs {
		// A reload always reads the latest document. A lower version means
		// the backend expired a tombstone and restarted the count.
		if version == s.version {
			continue
		}
		s.version = version
		s.deliver(tree, false)
	}
}

func (e *Engine) cancel(s *subscription, err error) {
	if s.closed.Swap(true) {
		return
	}
	e.detach(s)
	if s.value != nil {
		s.value.OnCancel(err)
	} else {
		s.child.OnCancel(err)
	}
}

type subscription struct {
	engine *Engine
	root   string
	segs   []string
	path   string
	value  ValueHandler
	child  ChildHandler
	closed atomic.Bool

	// Owned by the dispatcher goroutine.
	ready    bool
	version  int64
	last     []byte
	children map[string][]byte
}

func (s *subscription) Unsubscribe() {
	if s.closed.Swap(true) {
		return
	}
	s.engine.detach(s)
}

func (s *subscription) deliver(tree any, initial bool) {
	node := getAt(tree, s.segs)
	if s.value != nil {
		s.deliverValue(node, initial)
	} else {
		s.deliverChildren(node)
	}
}

func (s *subscription) deliverValue(node any, initial bool) {
	raw, err := encodeTree(node)
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("failed to encode value")
		return
	}
	if !initial && bytes.Equal(raw, s.last) {
		return
	}
	s.last = raw
	if s.closed.Load() {
		return
	}
	s.value.OnValue(Snapshot{Path: s.path, Key: lastSegment(s.root, s.segs), Value: raw})
}

func (s *subscription) deliverChildren(node any) {
	keys, vals := childrenOf(node)
	next := make(map[string][]byte, len(keys))
	for _, k := range keys {
		raw, err := encodeTree(vals[k])
		if err != nil {
			log.Error().Err(err).Str("path", s.path).Str("child", k).Msg("failed to encode child")
			continue
		}
		next[k] = raw
	}
	prev := s.children
	s.children = next

	childSnap := func(key string, raw []byte) Snapshot {
		return Snapshot{Path: s.path + "/" + key, Key: key, Value: json.RawMessage(raw)}
	}

	oldKeys, _ := childrenOf(stringKeys(prev))
	for _, k := range oldKeys {
		if _, still := next[k]; still {
			continue
		}
		if s.closed.Load() {
			return
		}
		s.child.OnChildRemoved(childSnap(k, prev[k]))
	}

	prevKey := ""
	for _, k := range keys {
		raw, ok := next[k]
		if !ok {
			continue
		}
		if _, existed := prev[k]; !existed {
			if s.closed.Load() {
				return
			}
			s.child.OnChildAdded(childSnap(k, raw), prevKey)
		}
		prevKey = k
	}

	prevKey = ""
	for _, k := range keys {
		raw, ok := next[k]
		if !ok {
			continue
		}
		if old, existed := prev[k]; existed && !bytes.Equal(old, raw) {
			if s.closed.Load() {
				return
			}
			s.child.OnChildChanged(childSnap(k, raw), prevKey)
		}
		prevKey = k
	}
}

// stringKeys lifts a key set into a map node so childrenOf can order it.
func stringKeys(m map[string][]byte) any {
	node := make(map[string]any, len(m))
	for k := range m {
		node[k] = true
	}
	return node
}
