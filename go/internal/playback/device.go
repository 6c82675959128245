package playback

import (
	"context"
	"errors"

	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
)

var ErrQueueEmpty = errors.New("queue is empty")

// PlayerState is what the device reports about itself.
type PlayerState struct {
	TrackURI   string `json:"track_uri"`
	Paused     bool   `json:"paused"`
	PositionMs int    `json:"position_ms"`
}

// Device is the control channel to the host's playback device.
type Device interface {
	Play(ctx context.Context, uri string) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	// Watch reports device state changes to fn until ctx is done.
	Watch(ctx context.Context, fn func(PlayerState)) error
}

// PartySync is the part of the party gateway the coordinator writes through.
type PartySync interface {
	GetParty(ctx context.Context, key string) (*models.Party, error)
	AdvanceQueue(ctx context.Context, p models.Party) (*models.QueueTrack, error)
	SetPlaying(ctx context.Context, p models.Party, playing bool) error
}

// Gateway is PartySync plus party change notifications.
type Gateway interface {
	PartySync
	AddPartyListener(key string, l party.PartyListener) error
	RemovePartyListener(key string, l party.PartyListener)
}

// StateListener receives every state the device reports.
type StateListener interface {
	OnPlaybackState(key string, state PlayerState)
}
