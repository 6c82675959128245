package spotify_client

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/playback"
	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
)

// Device controls the token owner's active Spotify player.
type Device struct {
	api      *spotify.Client
	clock    clockwork.Clock
	interval time.Duration
}

var _ playback.Device = (*Device)(nil)

// Play starts uri on the active device.
func (d *Device) Play(ctx context.Context, uri string) error {
	opts := &spotify.PlayOptions{URIs: []spotify.URI{spotify.URI(uri)}}
	if err := d.api.PlayOpt(ctx, opts); err != nil {
		return fmt.Errorf("failed to play %s: %w", uri, err)
	}
	return nil
}

// Resume continues whatever the device has loaded.
func (d *Device) Resume(ctx context.Context) error {
	if err := d.api.Play(ctx); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	return nil
}

// Pause pauses the active device.
func (d *Device) Pause(ctx context.Context) error {
	if err := d.api.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	return nil
}

// State reads what the device is currently playing.
func (d *Device) State(ctx context.Context) (playback.PlayerState, error) {
	cp, err := d.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return playback.PlayerState{}, fmt.Errorf("failed to get currently playing: %w", err)
	}
	state := playback.PlayerState{Paused: true}
	if cp == nil {
		return state, nil
	}
	state.Paused = !cp.Playing
	state.PositionMs = int(cp.Progress)
	if cp.Item != nil {
		state.TrackURI = string(cp.Item.URI)
	}
	return state, nil
}

// Watch polls the player and calls fn whenever the track or the paused
// flag changes. It returns when ctx is done.
func (d *Device) Watch(ctx context.Context, fn func(playback.PlayerState)) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	var last *playback.PlayerState
	poll := func() {
		state, err := d.State(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("failed to poll player state")
			}
			return
		}
		if last != nil && last.TrackURI == state.TrackURI && last.Paused == state.Paused {
			return
		}
		last = &state
		fn(state)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			poll()
		}
	}
}
