package party

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/store"
)

// Repository maps parties onto store paths. Each party is its own root:
// <key>, <key>/attendees, <key>/queue, <key>/playing, <key>/current_track.
type Repository struct {
	store store.Store
}

// NewRepository creates a new party repository
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func attendeesPath(key string) string { return key + "/attendees" }
func queuePath(key string) string     { return key + "/queue" }
func playingPath(key string) string   { return key + "/playing" }

// NewKey allocates a unique party key.
func (r *Repository) NewKey(ctx context.Context) (string, error) {
	key, err := r.store.Push(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to allocate party key: %w", err)
	}
	return key, nil
}

// GetParty reads the whole party.
func (r *Repository) GetParty(ctx context.Context, key string) (*models.Party, error) {
	snap, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return decodeParty(key, snap.Value)
}

// PutParty writes the whole party record.
func (r *Repository) PutParty(ctx context.Context, p models.Party) error {
	if err := r.store.Set(ctx, p.Key, p); err != nil {
		return fmt.Errorf("failed to write party: %w", err)
	}
	return nil
}

// DeleteParty removes the party and everything below it.
func (r *Repository) DeleteParty(ctx context.Context, key string) error {
	if err := r.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("failed to delete party: %w", err)
	}
	return nil
}

// PutAttendees overwrites the attendee list.
func (r *Repository) PutAttendees(ctx context.Context, key string, attendees []models.Attendee) error {
	if err := r.store.Set(ctx, attendeesPath(key), attendees); err != nil {
		return fmt.Errorf("failed to write attendees: %w", err)
	}
	return nil
}

// PutQueue overwrites the queue.
func (r *Repository) PutQueue(ctx context.Context, key string, queue []models.QueueTrack) error {
	if err := r.store.Set(ctx, queuePath(key), queue); err != nil {
		return fmt.Errorf("failed to write queue: %w", err)
	}
	return nil
}

// PutPlaying writes the single playing flag.
func (r *Repository) PutPlaying(ctx context.Context, key string, playing bool) error {
	if err := r.store.Set(ctx, playingPath(key), playing); err != nil {
		return fmt.Errorf("failed to write playing flag: %w", err)
	}
	return nil
}

// PutQueueAndCurrent writes the queue and the current track together.
func (r *Repository) PutQueueAndCurrent(ctx context.Context, key string, queue []models.QueueTrack, current *models.QueueTrack) error {
	fields := map[string]any{
		"queue":         queue,
		"current_track": current,
	}
	if err := r.store.Update(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to write queue and current track: %w", err)
	}
	return nil
}

// UpdateParty applies fn to the stored party inside a transaction. fn may
// run more than once. ErrPartyNotFound is returned if the party is gone.
func (r *Repository) UpdateParty(ctx context.Context, key string, fn func(p *models.Party) error) (*models.Party, error) {
	var result *models.Party
	_, err := r.store.Transact(ctx, key, func(current json.RawMessage) (json.RawMessage, error) {
		p, err := decodeParty(key, current)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			return nil, err
		}
		result = p
		return json.Marshal(p)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WatchParty subscribes to the whole party value.
func (r *Repository) WatchParty(key string, h store.ValueHandler) (store.Subscription, error) {
	return r.store.SubscribeValue(key, h)
}

// WatchAttendees subscribes to per-attendee child events.
func (r *Repository) WatchAttendees(key string, h store.ChildHandler) (store.Subscription, error) {
	return r.store.SubscribeChildren(attendeesPath(key), h)
}

// WatchQueue subscribes to the queue value.
func (r *Repository) WatchQueue(key string, h store.ValueHandler) (store.Subscription, error) {
	return r.store.SubscribeValue(queuePath(key), h)
}

func decodeParty(key string, raw json.RawMessage) (*models.Party, error) {
	if len(raw) == 0 {
		return nil, ErrPartyNotFound
	}
	var p models.Party
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode party %s: %w", key, err)
	}
	if p.Key == "" {
		p.Key = key
	}
	return &p, nil
}
