package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	gw      *party.Gateway
	service *Service
	server  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	engine, err := store.NewEngine(store.NewMemoryBackend())
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	gw := party.NewGateway(engine, party.DefaultConfig(), clock)

	service := NewService(DefaultConfig(), gw, clock)
	ctx, cancel := context.WithCancel(context.Background())
	go service.Start(ctx)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
		_ = gw.Close()
		_ = engine.Close()
	})
	return &wsFixture{gw: gw, service: service, server: server}
}

func (f *wsFixture) createParty(t *testing.T) *models.Party {
	t.Helper()
	p, _, err := f.gw.CreateParty(context.Background(), party.CreatePartyRequest{Name: "Test", HostName: "Hana"})
	require.NoError(t, err)
	return p
}

func (f *wsFixture) dial(t *testing.T, key string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?party_key=" + key + "&attendee_id=a1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) PartyEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev PartyEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHandlePartyConnectionRejects(t *testing.T) {
	f := newWSFixture(t)

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/ws?party_key=missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectionReceivesSnapshotAndEvents(t *testing.T) {
	f := newWSFixture(t)
	p := f.createParty(t)

	conn := f.dial(t, p.Key)
	defer conn.Close()

	first := readEvent(t, conn)
	assert.Equal(t, EventTypeSnapshot, first.Type)
	assert.Equal(t, p.Key, first.PartyKey)
	payload, err := ParseEventPayload(&first)
	require.NoError(t, err)
	assert.Equal(t, "Test", payload.(PartyPayload).Party.Name)

	// Initial deliveries of the three feeds.
	var types []EventType
	for range 3 {
		types = append(types, readEvent(t, conn).Type)
	}
	assert.Equal(t, []EventType{EventTypePartyChanged, EventTypeAttendeeAdded, EventTypeQueueChanged}, types)

	_, _, err = f.gw.JoinParty(context.Background(), p.Key, party.JoinPartyRequest{Name: "Alice"})
	require.NoError(t, err)

	for {
		ev := readEvent(t, conn)
		if ev.Type != EventTypeAttendeeAdded {
			continue
		}
		payload, err := ParseEventPayload(&ev)
		require.NoError(t, err)
		added := payload.(AttendeesPayload)
		assert.Equal(t, 1, added.Index)
		require.Len(t, added.Attendees, 2)
		assert.Equal(t, "Alice", added.Attendees[1].Name)
		break
	}
}

func TestLastDisconnectDetaches(t *testing.T) {
	f := newWSFixture(t)
	p := f.createParty(t)

	a := f.dial(t, p.Key)
	b := f.dial(t, p.Key)
	readEvent(t, a)
	readEvent(t, b)

	stats := f.service.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveParties)

	cm := f.service.connectionManager
	cm.mu.RLock()
	assert.Len(t, cm.forwarders, 1)
	cm.mu.RUnlock()

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return f.service.GetStats().TotalConnections == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	assert.Eventually(t, func() bool { return f.service.GetStats().ActiveParties == 0 }, 2*time.Second, 10*time.Millisecond)

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	assert.Empty(t, cm.forwarders)
}

func TestConnectionStatsEndpoint(t *testing.T) {
	f := newWSFixture(t)

	resp, err := http.Get(f.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Zero(t, stats.TotalConnections)
}

func TestNewPartyEvent(t *testing.T) {
	index := 2
	ev, err := NewPartyEvent(party.Event{
		ID:        "ev-1",
		Type:      party.EventAttendeeRemoved,
		PartyKey:  "k1",
		Attendees: []models.Attendee{{ID: "h", Name: "Hana", Admin: true}},
		Index:     &index,
	})
	require.NoError(t, err)
	assert.Equal(t, EventTypeAttendeeRemoved, ev.Type)
	assert.JSONEq(t, `{"attendees":[{"id":"h","name":"Hana","admin":true}],"index":2}`, string(ev.Data))

	ev, err = NewPartyEvent(party.Event{ID: "ev-2", Type: party.EventQueueChanged, PartyKey: "k1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"queue":[]}`, string(ev.Data))

	_, err = NewPartyEvent(party.Event{ID: "ev-3", Type: party.EventPartyChanged})
	assert.Error(t, err)

	_, err = NewPartyEvent(party.Event{ID: "ev-4", Type: "bogus"})
	assert.Error(t, err)
}
