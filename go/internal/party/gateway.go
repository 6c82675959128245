package party

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/mcdev12/spotmix/go/internal/workqueue"
	"github.com/rs/zerolog/log"
)

// Gateway is the bridge between party mutations and the store's change
// feeds. It is safe for concurrent use.
type Gateway struct {
	repo   *Repository
	cfg    Config
	clock  clockwork.Clock
	writer *workqueue.Queue

	mu        sync.Mutex
	parties   map[string]*subscriptionManager[PartyListener]
	attendees map[string]*subscriptionManager[AttendeeListener]
	queues    map[string]*subscriptionManager[QueueListener]
}

// NewGateway creates a gateway over s.
func NewGateway(s store.Store, cfg Config, clock clockwork.Clock) *Gateway {
	if cfg.WriteMode == "" {
		cfg.WriteMode = WriteAtomic
	}
	return &Gateway{
		repo:      NewRepository(s),
		cfg:       cfg,
		clock:     clock,
		writer:    workqueue.New(),
		parties:   make(map[string]*subscriptionManager[PartyListener]),
		attendees: make(map[string]*subscriptionManager[AttendeeListener]),
		queues:    make(map[string]*subscriptionManager[QueueListener]),
	}
}

func (g *Gateway) atomic() bool {
	return g.cfg.WriteMode == WriteAtomic
}

// write runs fn now, or queues it when writes are fire-and-forget.
func (g *Gateway) write(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if g.cfg.AwaitWrites {
		return writeFailure(fn(ctx))
	}
	bg := context.WithoutCancel(ctx)
	g.writer.Push(func() {
		if err := fn(bg); err != nil {
			log.Error().Err(err).Str("party_key", key).Str("op", op).Msg("background write failed")
		}
	})
	return nil
}

// CreateParty starts a party with the host as its only attendee.
func (g *Gateway) CreateParty(ctx context.Context, req CreatePartyRequest) (*models.Party, *models.Attendee, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("validation failed: %w: party name is required", ErrInvalidRequest)
	}

	key, err := g.repo.NewKey(ctx)
	if err != nil {
		return nil, nil, writeFailure(err)
	}

	host := models.NewAttendee(req.HostName, true)
	p := models.Party{
		Key:         key,
		Name:        name,
		Attendees:   []models.Attendee{host},
		AccessToken: req.AccessToken,
	}

	record := p.Clone()
	if err := g.write(ctx, "create_party", key, func(ctx context.Context) error {
		return g.repo.PutParty(ctx, record)
	}); err != nil {
		return nil, nil, err
	}

	log.Info().Str("party_key", key).Str("name", name).Str("host_id", host.ID).Msg("created party")
	return &p, &host, nil
}

// JoinParty adds a non-admin attendee to an existing party.
func (g *Gateway) JoinParty(ctx context.Context, key string, req JoinPartyRequest) (*models.Party, *models.Attendee, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("validation failed: %w: attendee name is required", ErrInvalidRequest)
	}
	attendee := models.NewAttendee(name, false)

	var p *models.Party
	if g.atomic() {
		var err error
		p, err = g.repo.UpdateParty(ctx, key, func(p *models.Party) error {
			p.Attendees = append(p.Attendees, attendee)
			return nil
		})
		if err != nil {
			return nil, nil, readFailure(err)
		}
	} else {
		var err error
		p, err = g.repo.GetParty(ctx, key)
		if err != nil {
			return nil, nil, readFailure(err)
		}
		p.Attendees = append(p.Attendees, attendee)
		attendees := slices.Clone(p.Attendees)
		if err := g.write(ctx, "join_party", key, func(ctx context.Context) error {
			return g.repo.PutAttendees(ctx, key, attendees)
		}); err != nil {
			return nil, nil, err
		}
	}

	log.Info().Str("party_key", key).Str("attendee_id", attendee.ID).Msg("attendee joined party")
	return p, &attendee, nil
}

// GetParty reads the current party.
func (g *Gateway) GetParty(ctx context.Context, key string) (*models.Party, error) {
	p, err := g.repo.GetParty(ctx, key)
	if err != nil {
		return nil, readFailure(err)
	}
	return p, nil
}

// CloseParty deletes the party. Closing a missing party succeeds.
func (g *Gateway) CloseParty(ctx context.Context, party models.Party) error {
	err := g.write(ctx, "close_party", party.Key, func(ctx context.Context) error {
		return g.repo.DeleteParty(ctx, party.Key)
	})
	if err != nil {
		return err
	}
	log.Info().Str("party_key", party.Key).Msg("closed party")
	return nil
}

// RemoveAttendee drops attendee from the party.
func (g *Gateway) RemoveAttendee(ctx context.Context, party models.Party, attendee models.Attendee) error {
	remove := func(list []models.Attendee) ([]models.Attendee, error) {
		i := models.IndexOfAttendee(list, attendee)
		if i < 0 {
			return list, nil
		}
		if len(list) == 1 {
			return nil, fmt.Errorf("%w: cannot remove the last attendee", ErrInvalidRequest)
		}
		return slices.Delete(list, i, i+1), nil
	}

	if g.atomic() {
		return g.write(ctx, "remove_attendee", party.Key, func(ctx context.Context) error {
			_, err := g.repo.UpdateParty(ctx, party.Key, func(p *models.Party) error {
				list, err := remove(p.Attendees)
				p.Attendees = list
				return err
			})
			return err
		})
	}

	list, err := remove(slices.Clone(party.Attendees))
	if err != nil {
		return err
	}
	return g.write(ctx, "remove_attendee", party.Key, func(ctx context.Context) error {
		return g.repo.PutAttendees(ctx, party.Key, list)
	})
}

// AddTrackToQueue appends track with no votes. It always waits for the
// write and reports ErrWriteFailed if it did not land.
func (g *Gateway) AddTrackToQueue(ctx context.Context, party models.Party, track models.Track) (*models.QueueTrack, error) {
	if track.ID == "" && track.URI == "" {
		return nil, fmt.Errorf("validation failed: %w: track id or uri is required", ErrInvalidRequest)
	}
	entry := models.NewQueueTrack(track)

	var err error
	if g.atomic() {
		_, err = g.repo.UpdateParty(ctx, party.Key, func(p *models.Party) error {
			p.Queue = append(p.Queue, entry.Clone())
			return nil
		})
	} else {
		queue := append(party.Clone().Queue, entry.Clone())
		err = g.repo.PutQueue(ctx, party.Key, queue)
	}
	if err != nil {
		return nil, writeFailure(err)
	}

	log.Info().Str("party_key", party.Key).Str("track_id", track.ID).Str("entry_id", entry.ID).Msg("queued track")
	return &entry, nil
}

// UpvoteTrack records an upvote by attendee.
func (g *Gateway) UpvoteTrack(ctx context.Context, party models.Party, track models.QueueTrack, attendee models.Attendee) error {
	return g.vote(ctx, party, track, attendee, true)
}

// DownvoteTrack records a downvote by attendee.
func (g *Gateway) DownvoteTrack(ctx context.Context, party models.Party, track models.QueueTrack, attendee models.Attendee) error {
	return g.vote(ctx, party, track, attendee, false)
}

func (g *Gateway) vote(ctx context.Context, party models.Party, track models.QueueTrack, attendee models.Attendee, up bool) error {
	apply := func(queue []models.QueueTrack) error {
		i := slices.IndexFunc(queue, track.Same)
		if i < 0 {
			return ErrTrackNotInQueue
		}
		entry := &queue[i]
		if g.cfg.RejectDuplicateVotes && entry.HasVoted(attendee) {
			return ErrAlreadyVoted
		}
		if up {
			entry.Upvotes = append(entry.Upvotes, attendee)
		} else {
			entry.Downvotes = append(entry.Downvotes, attendee)
		}
		return nil
	}

	op := "downvote"
	if up {
		op = "upvote"
	}

	if g.atomic() {
		return g.write(ctx, op, party.Key, func(ctx context.Context) error {
			_, err := g.repo.UpdateParty(ctx, party.Key, func(p *models.Party) error {
				return apply(p.Queue)
			})
			return err
		})
	}

	queue := party.Clone().Queue
	if err := apply(queue); err != nil {
		return err
	}
	return g.write(ctx, op, party.Key, func(ctx context.Context) error {
		return g.repo.PutQueue(ctx, party.Key, queue)
	})
}

// SetPlaying mirrors the device's play state into the party.
func (g *Gateway) SetPlaying(ctx context.Context, party models.Party, playing bool) error {
	return g.write(ctx, "set_playing", party.Key, func(ctx context.Context) error {
		if !g.atomic() {
			return g.repo.PutPlaying(ctx, party.Key, playing)
		}
		_, err := g.repo.UpdateParty(ctx, party.Key, func(p *models.Party) error {
			p.Playing = playing
			return nil
		})
		return err
	})
}

// AdvanceQueue moves the head of the queue into current_track and returns
// it, or clears current_track and returns nil when the queue is empty.
func (g *Gateway) AdvanceQueue(ctx context.Context, party models.Party) (*models.QueueTrack, error) {
	pop := func(p *models.Party) *models.QueueTrack {
		if len(p.Queue) == 0 {
			p.CurrentTrack = nil
			return nil
		}
		next := p.Queue[0]
		p.Queue = p.Queue[1:]
		p.CurrentTrack = &next
		return &next
	}

	if g.atomic() {
		var next *models.QueueTrack
		_, err := g.repo.UpdateParty(ctx, party.Key, func(p *models.Party) error {
			next = pop(p)
			return nil
		})
		if err != nil {
			return nil, writeFailure(err)
		}
		return next, nil
	}

	p := party.Clone()
	next := pop(&p)
	if err := g.write(ctx, "advance_queue", party.Key, func(ctx context.Context) error {
		return g.repo.PutQueueAndCurrent(ctx, p.Key, p.Queue, p.CurrentTrack)
	}); err != nil {
		return nil, err
	}
	return next, nil
}

// AddPartyListener registers l for whole-party changes of key.
func (g *Gateway) AddPartyListener(key string, l PartyListener) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.parties[key]
	if !ok {
		m = &subscriptionManager[PartyListener]{}
		m.open = func(gen uint64) (store.Subscription, error) {
			return g.repo.WatchParty(key, &partyFeed{key: key, gen: gen, manager: m})
		}
		g.parties[key] = m
	}
	if err := m.add(l); err != nil {
		if m.empty() {
			delete(g.parties, key)
		}
		return fmt.Errorf("failed to subscribe to party %s: %w", key, readFailure(err))
	}
	return nil
}

// RemovePartyListener unregisters l.
func (g *Gateway) RemovePartyListener(key string, l PartyListener) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.parties[key]; ok {
		m.remove(l)
		if m.empty() {
			delete(g.parties, key)
		}
	}
}

// AddAttendeeListener registers l for attendee events of key.
func (g *Gateway) AddAttendeeListener(key string, l AttendeeListener) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.attendees[key]
	if !ok {
		m = &subscriptionManager[AttendeeListener]{}
		m.open = func(gen uint64) (store.Subscription, error) {
			return g.repo.WatchAttendees(key, &attendeeFeed{key: key, gen: gen, manager: m})
		}
		g.attendees[key] = m
	}
	if err := m.add(l); err != nil {
		if m.empty() {
			delete(g.attendees, key)
		}
		return fmt.Errorf("failed to subscribe to attendees of %s: %w", key, readFailure(err))
	}
	return nil
}

// RemoveAttendeeListener unregisters l.
func (g *Gateway) RemoveAttendeeListener(key string, l AttendeeListener) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.attendees[key]; ok {
		m.remove(l)
		if m.empty() {
			delete(g.attendees, key)
		}
	}
}

// AddQueueListener registers l for queue replacements of key.
func (g *Gateway) AddQueueListener(key string, l QueueListener) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.queues[key]
	if !ok {
		m = &subscriptionManager[QueueListener]{}
		m.open = func(gen uint64) (store.Subscription, error) {
			return g.repo.WatchQueue(key, &queueFeed{key: key, gen: gen, manager: m})
		}
		g.queues[key] = m
	}
	if err := m.add(l); err != nil {
		if m.empty() {
			delete(g.queues, key)
		}
		return fmt.Errorf("failed to subscribe to queue of %s: %w", key, readFailure(err))
	}
	return nil
}

// RemoveQueueListener unregisters l.
func (g *Gateway) RemoveQueueListener(key string, l QueueListener) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.queues[key]; ok {
		m.remove(l)
		if m.empty() {
			delete(g.queues, key)
		}
	}
}

// Attach registers f for party, attendee and queue events of key.
func (g *Gateway) Attach(key string, f *Forwarder) error {
	if err := g.AddPartyListener(key, f); err != nil {
		return err
	}
	if err := g.AddAttendeeListener(key, f); err != nil {
		g.RemovePartyListener(key, f)
		return err
	}
	if err := g.AddQueueListener(key, f); err != nil {
		g.RemovePartyListener(key, f)
		g.RemoveAttendeeListener(key, f)
		return err
	}
	return nil
}

// Detach undoes Attach.
func (g *Gateway) Detach(key string, f *Forwarder) {
	g.RemovePartyListener(key, f)
	g.RemoveAttendeeListener(key, f)
	g.RemoveQueueListener(key, f)
}

// Flush waits for queued background writes.
func (g *Gateway) Flush(ctx context.Context) error {
	return g.writer.Flush(ctx)
}

// Close drains background writes and drops every subscription.
func (g *Gateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := g.writer.Flush(ctx)
	g.writer.Stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, m := range g.parties {
		m.close()
		delete(g.parties, key)
	}
	for key, m := range g.attendees {
		m.close()
		delete(g.attendees, key)
	}
	for key, m := range g.queues {
		m.close()
		delete(g.queues, key)
	}

	if err != nil && !errors.Is(err, workqueue.ErrStopped) {
		return fmt.Errorf("failed to drain writes: %w", err)
	}
	return nil
}

// Clock returns the gateway's clock.
func (g *Gateway) Clock() clockwork.Clock {
	return g.clock
}
