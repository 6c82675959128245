package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu      sync.Mutex
	calls   []string
	playErr error
	states  chan PlayerState
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{states: make(chan PlayerState)}
}

func (d *fakeDevice) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDevice) Play(_ context.Context, uri string) error {
	if d.playErr != nil {
		return d.playErr
	}
	d.record("play:" + uri)
	return nil
}

func (d *fakeDevice) Resume(context.Context) error {
	d.record("resume")
	return nil
}

func (d *fakeDevice) Pause(context.Context) error {
	d.record("pause")
	return nil
}

func (d *fakeDevice) Watch(ctx context.Context, fn func(PlayerState)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-d.states:
			fn(s)
		}
	}
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type fixture struct {
	engine *store.Engine
	gw     *party.Gateway
	party  *models.Party
}

func newFixture(t *testing.T, tracks ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	engine, err := store.NewEngine(store.NewMemoryBackend())
	require.NoError(t, err)
	gw := party.NewGateway(engine, party.DefaultConfig(), clockwork.NewFakeClock())
	t.Cleanup(func() {
		_ = gw.Close()
		_ = engine.Close()
	})

	p, _, err := gw.CreateParty(ctx, party.CreatePartyRequest{Name: "Test", HostName: "Hana", AccessToken: "tok"})
	require.NoError(t, err)
	for _, id := range tracks {
		_, err := gw.AddTrackToQueue(ctx, *p, models.Track{ID: id, URI: uri(id)})
		require.NoError(t, err)
	}
	return &fixture{engine: engine, gw: gw, party: p}
}

func uri(id string) string { return "spotify:track:" + id }

func (f *fixture) stored(t *testing.T) *models.Party {
	t.Helper()
	p, err := f.gw.GetParty(context.Background(), f.party.Key)
	require.NoError(t, err)
	return p
}

func TestPlayStartsQueueHead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1", "t2")
	dev := newFakeDevice()
	c := NewCoordinator(f.party.Key, f.gw, dev)

	require.NoError(t, c.Play(ctx))
	assert.Equal(t, []string{"play:" + uri("t1")}, dev.Calls())

	p := f.stored(t)
	require.NotNil(t, p.CurrentTrack)
	assert.Equal(t, "t1", p.CurrentTrack.Track.ID)
	require.Len(t, p.Queue, 1)
	assert.Equal(t, "t2", p.Queue[0].Track.ID)

	require.NoError(t, c.Play(ctx))
	assert.Equal(t, []string{"play:" + uri("t1"), "resume"}, dev.Calls())

	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, "pause", dev.Calls()[2])
}

func TestPlayWithEmptyQueue(t *testing.T) {
	f := newFixture(t)
	dev := newFakeDevice()
	c := NewCoordinator(f.party.Key, f.gw, dev)

	err := c.Play(context.Background())
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Empty(t, dev.Calls())
}

func TestPlayDeviceFailure(t *testing.T) {
	f := newFixture(t, "t1")
	dev := newFakeDevice()
	dev.playErr = errors.New("no active device")
	c := NewCoordinator(f.party.Key, f.gw, dev)

	err := c.Play(context.Background())
	assert.ErrorIs(t, err, dev.playErr)

	// Nothing is awaited after a failed start, so the report is acted on.
	require.NoError(t, c.OnPlaybackEvent(context.Background(), PlayerState{TrackURI: "spotify:track:other", Paused: true}))
	assert.Equal(t, []string{"pause"}, dev.Calls())
}

func TestNextTrack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")
	dev := newFakeDevice()
	c := NewCoordinator(f.party.Key, f.gw, dev)

	next, err := c.NextTrack(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "t1", next.Track.ID)

	next, err = c.NextTrack(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Nil(t, f.stored(t).CurrentTrack)
	assert.Empty(t, dev.Calls())
}

func TestPlaybackEventsFollowTheQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1", "t2")
	dev := newFakeDevice()
	c := NewCoordinator(f.party.Key, f.gw, dev)

	require.NoError(t, c.Play(ctx))

	// Still on whatever played before the request.
	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: "spotify:track:old", Paused: false}))
	assert.False(t, f.stored(t).Playing)
	assert.Len(t, dev.Calls(), 1)

	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: uri("t1")}))
	assert.True(t, f.stored(t).Playing)

	// The device moved on by itself.
	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: "spotify:track:radio"}))
	assert.Equal(t, []string{"play:" + uri("t1"), "play:" + uri("t2")}, dev.Calls())
	assert.Equal(t, "t2", f.stored(t).CurrentTrack.Track.ID)

	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: uri("t2")}))
	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: uri("t2"), Paused: true}))
	assert.False(t, f.stored(t).Playing)
	assert.Len(t, dev.Calls(), 2, "pausing the current track is not a track change")

	require.NoError(t, c.OnPlaybackEvent(ctx, PlayerState{TrackURI: "spotify:track:radio", Paused: true}))
	assert.Equal(t, "pause", dev.Calls()[2])
	p := f.stored(t)
	assert.Nil(t, p.CurrentTrack)
	assert.Empty(t, p.Queue)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []PlayerState
}

func (r *stateRecorder) OnPlaybackState(_ string, s PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func TestStateListeners(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCoordinator(f.party.Key, f.gw, newFakeDevice())

	rec := &stateRecorder{}
	c.AddStateListener(rec)
	c.AddStateListener(rec)

	state := PlayerState{TrackURI: uri("x"), Paused: true, PositionMs: 1200}
	require.NoError(t, c.OnPlaybackEvent(ctx, state))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, state, c.State())

	c.RemoveStateListener(rec)
	require.NoError(t, c.OnPlaybackEvent(ctx, state))
	assert.Equal(t, 1, rec.count())
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")
	dev := newFakeDevice()

	var tokens []string
	m := NewManager(f.gw, func(token string) Device {
		tokens = append(tokens, token)
		return dev
	})
	t.Cleanup(m.Close)

	c, err := m.Coordinator(ctx, f.party.Key)
	require.NoError(t, err)
	again, err := m.Coordinator(ctx, f.party.Key)
	require.NoError(t, err)
	assert.Same(t, c, again)
	assert.Equal(t, []string{"tok"}, tokens)
	assert.True(t, m.Running(f.party.Key))

	dev.states <- PlayerState{TrackURI: uri("elsewhere")}
	assert.Eventually(t, func() bool { return f.stored(t).Playing }, time.Second, 10*time.Millisecond)

	_, err = m.Coordinator(ctx, "missing")
	assert.ErrorIs(t, err, party.ErrPartyNotFound)

	require.NoError(t, f.engine.Flush(ctx))
	require.NoError(t, f.gw.CloseParty(ctx, *f.party))
	assert.Eventually(t, func() bool { return !m.Running(f.party.Key) }, time.Second, 10*time.Millisecond)
}

func TestManagerClose(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.gw, func(string) Device { return newFakeDevice() })

	_, err := m.Coordinator(context.Background(), f.party.Key)
	require.NoError(t, err)

	m.Close()
	assert.False(t, m.Running(f.party.Key))
	_, err = m.Coordinator(context.Background(), f.party.Key)
	assert.Error(t, err)
}

// gatedGateway holds GetParty until release is closed and counts listeners.
type gatedGateway struct {
	*party.Gateway
	entered chan struct{}
	release chan struct{}

	mu        sync.Mutex
	listeners int
}

func (g *gatedGateway) GetParty(ctx context.Context, key string) (*models.Party, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Gateway.GetParty(ctx, key)
}

func (g *gatedGateway) AddPartyListener(key string, l party.PartyListener) error {
	g.mu.Lock()
	g.listeners++
	g.mu.Unlock()
	return g.Gateway.AddPartyListener(key, l)
}

func (g *gatedGateway) RemovePartyListener(key string, l party.PartyListener) {
	g.mu.Lock()
	g.listeners--
	g.mu.Unlock()
	g.Gateway.RemovePartyListener(key, l)
}

func (g *gatedGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listeners
}

func TestManagerConcurrentStart(t *testing.T) {
	const callers = 4
	f := newFixture(t)
	gated := &gatedGateway{
		Gateway: f.gw,
		entered: make(chan struct{}, callers),
		release: make(chan struct{}),
	}
	m := NewManager(gated, func(string) Device { return newFakeDevice() })
	t.Cleanup(m.Close)

	results := make(chan *Coordinator, callers)
	for i := 0; i < callers; i++ {
		go func() {
			c, err := m.Coordinator(context.Background(), f.party.Key)
			assert.NoError(t, err)
			results <- c
		}()
	}
	for i := 0; i < callers; i++ {
		select {
		case <-gated.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("callers are serialized behind the party read")
		}
	}
	assert.False(t, m.Running(f.party.Key), "the manager stays usable during the read")
	close(gated.release)

	var first *Coordinator
	for i := 0; i < callers; i++ {
		c := <-results
		require.NotNil(t, c)
		if first == nil {
			first = c
		}
		assert.Same(t, first, c)
	}
	assert.True(t, m.Running(f.party.Key))
	assert.Equal(t, 1, gated.count(), "losing callers drop their listeners")
}
