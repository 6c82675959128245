package playback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/rs/zerolog/log"
)

// Coordinator drives one party's device. The party's queue is pulled one
// track at a time: whenever the device stops playing the current track,
// the next one is taken from the head of the queue, or playback pauses.
type Coordinator struct {
	key    string
	sync   PartySync
	device Device

	// opMu serializes commands and device reports.
	opMu     sync.Mutex
	awaiting string

	mu        sync.Mutex
	party     *models.Party
	state     PlayerState
	listeners []StateListener
	onClosed  func()
}

var _ party.PartyListener = (*Coordinator)(nil)

// NewCoordinator creates a coordinator for the party with key.
func NewCoordinator(key string, s PartySync, device Device) *Coordinator {
	return &Coordinator{key: key, sync: s, device: device}
}

// Key returns the party key.
func (c *Coordinator) Key() string { return c.key }

// OnPartyChanged keeps the latest copy of the party.
func (c *Coordinator) OnPartyChanged(p models.Party) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.party = &p
}

// OnPartyClosed drops the party copy and runs the close hook.
func (c *Coordinator) OnPartyClosed(string) {
	c.mu.Lock()
	c.party = nil
	hook := c.onClosed
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (c *Coordinator) latest(ctx context.Context) (models.Party, error) {
	c.mu.Lock()
	p := c.party
	c.mu.Unlock()
	if p != nil {
		return p.Clone(), nil
	}

	fetched, err := c.sync.GetParty(ctx, c.key)
	if err != nil {
		return models.Party{}, err
	}
	c.mu.Lock()
	if c.party == nil {
		c.party = fetched
	}
	c.mu.Unlock()
	return fetched.Clone(), nil
}

// Play resumes the current track, or starts the next queued one.
func (c *Coordinator) Play(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	p, err := c.latest(ctx)
	if err != nil {
		return err
	}
	if p.CurrentTrack != nil {
		if err := c.device.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume playback: %w", err)
		}
		log.Info().Str("party_key", c.key).Str("track_id", p.CurrentTrack.Track.ID).Msg("resumed playback")
		return nil
	}
	_, err = c.startNext(ctx, p)
	return err
}

// Pause pauses the device.
func (c *Coordinator) Pause(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.device.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	log.Info().Str("party_key", c.key).Msg("paused playback")
	return nil
}

// NextTrack takes the head of the queue as the current track and returns
// it, or nil when the queue is empty. It does not touch the device.
func (c *Coordinator) NextTrack(ctx context.Context) (*models.QueueTrack, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	p, err := c.latest(ctx)
	if err != nil {
		return nil, err
	}
	return c.advance(ctx, p)
}

func (c *Coordinator) advance(ctx context.Context, p models.Party) (*models.QueueTrack, error) {
	next, err := c.sync.AdvanceQueue(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to advance queue: %w", err)
	}

	// The listener will deliver the same change; apply it now so a report
	// arriving first is judged against the new current track.
	c.mu.Lock()
	if c.party != nil {
		if next != nil {
			if i := slices.IndexFunc(c.party.Queue, next.Same); i >= 0 {
				c.party.Queue = slices.Delete(c.party.Queue, i, i+1)
			}
			cur := next.Clone()
			c.party.CurrentTrack = &cur
		} else {
			c.party.CurrentTrack = nil
		}
	}
	c.mu.Unlock()
	return next, nil
}

func (c *Coordinator) startNext(ctx context.Context, p models.Party) (*models.QueueTrack, error) {
	next, err := c.advance(ctx, p)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, ErrQueueEmpty
	}

	c.awaiting = next.Track.URI
	if err := c.device.Play(ctx, next.Track.URI); err != nil {
		c.awaiting = ""
		return nil, fmt.Errorf("failed to start track %s: %w", next.Track.URI, err)
	}
	log.Info().Str("party_key", c.key).Str("track_id", next.Track.ID).Str("entry_id", next.ID).Msg("started next track")
	return next, nil
}

// OnPlaybackEvent handles a state reported by the device. The playing flag
// is mirrored into the party. If the device is no longer on the current
// track, the next track is started, or the device is paused when the queue
// is empty. Reports that predate a requested track change are ignored.
func (c *Coordinator) OnPlaybackEvent(ctx context.Context, state PlayerState) error {
	c.mu.Lock()
	c.state = state
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnPlaybackState(c.key, state)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.awaiting != "" {
		if state.TrackURI != c.awaiting {
			log.Debug().Str("party_key", c.key).Str("track_uri", state.TrackURI).Msg("ignoring stale player state")
			return nil
		}
		c.awaiting = ""
	}

	p, err := c.latest(ctx)
	if err != nil {
		return err
	}

	if playing := !state.Paused; playing != p.Playing {
		if err := c.sync.SetPlaying(ctx, p, playing); err != nil {
			return fmt.Errorf("failed to mirror play state: %w", err)
		}
		c.mu.Lock()
		if c.party != nil {
			c.party.Playing = playing
		}
		c.mu.Unlock()
	}

	if p.CurrentTrack == nil || state.TrackURI == p.CurrentTrack.Track.URI {
		return nil
	}

	log.Info().Str("party_key", c.key).Str("track_uri", state.TrackURI).Msg("device left the current track")
	if _, err := c.startNext(ctx, p); err != nil {
		if !errors.Is(err, ErrQueueEmpty) {
			return err
		}
		if err := c.device.Pause(ctx); err != nil {
			return fmt.Errorf("failed to pause playback: %w", err)
		}
		log.Info().Str("party_key", c.key).Msg("queue finished, paused playback")
	}
	return nil
}

// State returns the last state the device reported.
func (c *Coordinator) State() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddStateListener registers l. Adding it twice is a no-op.
func (c *Coordinator) AddStateListener(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.listeners, l) {
		c.listeners = append(c.listeners, l)
	}
}

// RemoveStateListener unregisters l.
func (c *Coordinator) RemoveStateListener(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.listeners, l); i >= 0 {
		c.listeners = slices.Delete(c.listeners, i, i+1)
	}
}
