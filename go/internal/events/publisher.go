package events

import (
	"context"
	"time"

	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/rs/zerolog/log"
)

// EventPublisher delivers party events to out-of-process consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event party.Event) error
}

// LogPublisher only logs events. It stands in when NATS is not configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event party.Event) error {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("party_key", event.PartyKey).
		Msg("publishing event")
	return nil
}

// MetricPublisher wraps an EventPublisher and records every attempt in Stats.
type MetricPublisher struct {
	publisher EventPublisher
	stats     *Stats
}

func NewMetricPublisher(publisher EventPublisher, stats *Stats) *MetricPublisher {
	return &MetricPublisher{publisher: publisher, stats: stats}
}

func (p *MetricPublisher) Publish(ctx context.Context, event party.Event) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.stats.RecordPublish(event.Type, err == nil, time.Since(start))
	return err
}
