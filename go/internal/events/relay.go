package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/workqueue"
	"github.com/rs/zerolog/log"
)

// Attacher is the part of the party gateway the relay registers with.
type Attacher interface {
	Attach(key string, f *party.Forwarder) error
	Detach(key string, f *party.Forwarder)
}

type RelayConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Relay publishes the events of tracked parties. Events are published one
// at a time in the order the gateway produced them.
type Relay struct {
	gateway   Attacher
	publisher EventPublisher
	stats     *Stats
	clock     clockwork.Clock
	config    RelayConfig
	queue     *workqueue.Queue

	mu      sync.Mutex
	tracked map[string]*party.Forwarder
}

// NewRelay records every publish attempt in stats. A publisher already
// wrapped for the same stats is used as is.
func NewRelay(gw Attacher, publisher EventPublisher, stats *Stats, clock clockwork.Clock, cfg RelayConfig) *Relay {
	if mp, ok := publisher.(*MetricPublisher); !ok || mp.stats != stats {
		publisher = NewMetricPublisher(publisher, stats)
	}
	return &Relay{
		gateway:   gw,
		publisher: publisher,
		stats:     stats,
		clock:     clock,
		config:    cfg,
		queue:     workqueue.New(),
		tracked:   make(map[string]*party.Forwarder),
	}
}

// Track starts relaying events of the party with key. Tracking a party
// twice is a no-op.
func (r *Relay) Track(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[key]; ok {
		return nil
	}
	fwd := party.NewForwarder(r.clock, r.enqueue)
	if err := r.gateway.Attach(key, fwd); err != nil {
		return fmt.Errorf("failed to track party %s: %w", key, err)
	}
	r.tracked[key] = fwd
	log.Info().Str("party_key", key).Msg("relaying party events")
	return nil
}

// Untrack stops relaying key. Events already queued are still published.
func (r *Relay) Untrack(key string) {
	r.mu.Lock()
	fwd, ok := r.tracked[key]
	delete(r.tracked, key)
	r.mu.Unlock()

	if ok {
		r.gateway.Detach(key, fwd)
		log.Info().Str("party_key", key).Msg("stopped relaying party events")
	}
}

// Tracking reports whether key is tracked.
func (r *Relay) Tracking(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[key]
	return ok
}

func (r *Relay) enqueue(event party.Event) {
	r.queue.Push(func() {
		r.publish(event)
		if event.Type == party.EventPartyClosed {
			r.Untrack(event.PartyKey)
		}
	})
}

func (r *Relay) publish(event party.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.PublishTimeout)
	defer cancel()

	if err := r.publishWithRetry(ctx, event); err != nil {
		r.stats.RecordDropped()
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Str("party_key", event.PartyKey).
			Msg("failed to publish event")
	}
}

func (r *Relay) publishWithRetry(ctx context.Context, event party.Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("event_id", event.ID).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// Flush waits until every queued event has been handled.
func (r *Relay) Flush(ctx context.Context) error {
	return r.queue.Flush(ctx)
}

// Close untracks every party and drains the queue.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	keys := make([]string, 0, len(r.tracked))
	for key := range r.tracked {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		r.Untrack(key)
	}
	err := r.queue.Flush(ctx)
	r.queue.Stop()
	return err
}
