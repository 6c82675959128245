package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var errManagerClosed = errors.New("playback manager is closed")

// DeviceFactory opens the device for a party's access token.
type DeviceFactory func(accessToken string) Device

type running struct {
	coordinator *Coordinator
	cancel      context.CancelFunc
	done        chan struct{}
}

// Manager runs one coordinator per party and tears it down when the party
// closes.
type Manager struct {
	gateway Gateway
	devices DeviceFactory

	mu      sync.Mutex
	running map[string]*running
	closed  bool
}

// NewManager creates a manager.
func NewManager(gw Gateway, devices DeviceFactory) *Manager {
	return &Manager{
		gateway: gw,
		devices: devices,
		running: make(map[string]*running),
	}
}

// Coordinator returns the coordinator for key, starting it on first use.
// The party is read and watched without holding the lock; when two callers
// race, the first to register wins and the other's listener is dropped.
func (m *Manager) Coordinator(ctx context.Context, key string) (*Coordinator, error) {
	if c, ok, err := m.lookup(key); ok || err != nil {
		return c, err
	}

	p, err := m.gateway.GetParty(ctx, key)
	if err != nil {
		return nil, err
	}

	device := m.devices(p.AccessToken)
	c := NewCoordinator(key, m.gateway, device)
	c.party = p
	c.onClosed = func() { go m.Stop(key) }

	if err := m.gateway.AddPartyListener(key, c); err != nil {
		return nil, fmt.Errorf("failed to watch party: %w", err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	r := &running{coordinator: c, cancel: cancel, done: make(chan struct{})}
	winner, err := m.register(key, r)
	if winner != r {
		cancel()
		m.gateway.RemovePartyListener(key, c)
		if err != nil {
			return nil, err
		}
		return winner.coordinator, nil
	}

	go func() {
		defer close(r.done)
		err := device.Watch(wctx, func(state PlayerState) {
			if err := c.OnPlaybackEvent(wctx, state); err != nil {
				log.Error().Err(err).Str("party_key", key).Msg("failed to handle player state")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("party_key", key).Msg("device watch stopped")
		}
	}()

	log.Info().Str("party_key", key).Msg("started playback coordinator")
	return c, nil
}

// register stores r unless another coordinator for key got there first,
// and returns whichever is running.
func (m *Manager) register(key string, r *running) (*running, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errManagerClosed
	}
	if existing, ok := m.running[key]; ok {
		return existing, nil
	}
	m.running[key] = r
	return r, nil
}

func (m *Manager) lookup(key string) (*Coordinator, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, errManagerClosed
	}
	if r, ok := m.running[key]; ok {
		return r.coordinator, true, nil
	}
	return nil, false, nil
}

// Stop shuts down the coordinator for key, if any.
func (m *Manager) Stop(key string) {
	m.mu.Lock()
	r, ok := m.running[key]
	if ok {
		delete(m.running, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.gateway.RemovePartyListener(key, r.coordinator)
	r.cancel()
	<-r.done
	log.Info().Str("party_key", key).Msg("stopped playback coordinator")
}

// Running reports whether a coordinator is active for key.
func (m *Manager) Running(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[key]
	return ok
}

// Close stops every coordinator.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	keys := make([]string, 0, len(m.running))
	for key := range m.running {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.Stop(key)
	}
}
