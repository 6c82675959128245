package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*miniredis.Miniredis, *Backend) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{})
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestSwapAndLoad(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestBackend(t)

	doc, err := b.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, doc.Data)
	assert.Zero(t, doc.Version)

	v, err := b.Swap(ctx, "p1", 0, []byte(`{"name":"Test"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	doc, err = b.Load(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Test"}`, string(doc.Data))
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "1", mr.HGet("spotmix:doc:p1", "ver"))

	_, err = b.Swap(ctx, "p1", 0, []byte(`{"name":"stale"}`))
	assert.ErrorIs(t, err, store.ErrConflict)

	t.Run("delete leaves a tombstone version", func(t *testing.T) {
		v, err := b.Swap(ctx, "p1", 1, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		doc, err := b.Load(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, doc.Data)
		assert.Equal(t, int64(2), doc.Version)
		assert.Equal(t, 24*time.Hour, mr.TTL("spotmix:doc:p1"))

		_, err = b.Swap(ctx, "p1", 0, []byte(`{"name":"resurrected"}`))
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestWatchReceivesChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, b := newTestBackend(t)

	roots := make(chan string, 4)
	done, err := b.Watch(ctx, func(root string) { roots <- root })
	require.NoError(t, err)

	_, err = b.Swap(ctx, "p2", 0, []byte(`{"playing":true}`))
	require.NoError(t, err)

	select {
	case root := <-roots:
		assert.Equal(t, "p2", root)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestEnginesShareRedis(t *testing.T) {
	ctx := context.Background()
	mr, _ := newTestBackend(t)

	newEngine := func() *store.Engine {
		b := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{})
		e, err := store.NewEngine(b)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = e.Close()
			_ = b.Close()
		})
		return e
	}
	host := newEngine()
	guest := newEngine()

	require.NoError(t, host.Set(ctx, "party/name", "Test"))

	snap, err := guest.Get(ctx, "party/name")
	require.NoError(t, err)
	assert.Equal(t, `"Test"`, string(snap.Value))

	got := make(chan string, 4)
	_, err = guest.SubscribeValue("party/playing", valueFunc(func(s store.Snapshot) { got <- string(s.Value) }))
	require.NoError(t, err)
	require.NoError(t, guest.Flush(ctx))
	assert.Equal(t, "", <-got)

	require.NoError(t, host.Set(ctx, "party/playing", true))
	select {
	case v := <-got:
		assert.Equal(t, "true", v)
	case <-time.After(2 * time.Second):
		t.Fatal("guest never saw the host's write")
	}
}

type valueFunc func(store.Snapshot)

func (f valueFunc) OnValue(s store.Snapshot) { f(s) }
func (f valueFunc) OnCancel(error)           {}

func TestNewFillsDefaults(t *testing.T) {
	b := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{})
	t.Cleanup(func() { _ = b.Close() })
	assert.Equal(t, DefaultConfig(), b.cfg)

	custom := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{TombstoneTTL: time.Minute})
	t.Cleanup(func() { _ = custom.Close() })
	assert.Equal(t, time.Minute, custom.cfg.TombstoneTTL)
	assert.Equal(t, "spotmix:doc:", custom.cfg.KeyPrefix)
}

func TestTombstoneWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{TombstoneTTL: -1})
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.Swap(ctx, "p3", 0, []byte(`{}`))
	require.NoError(t, err)
	_, err = b.Swap(ctx, "p3", 1, nil)
	require.NoError(t, err)
	assert.Zero(t, mr.TTL("spotmix:doc:p3"))
	assert.Equal(t, "2", mr.HGet("spotmix:doc:p3", "ver"))
}
