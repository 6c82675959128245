package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/clients/spotify_client"
	"github.com/mcdev12/spotmix/go/internal/api"
	"github.com/mcdev12/spotmix/go/internal/events"
	"github.com/mcdev12/spotmix/go/internal/gateway"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/playback"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store    *store.Engine
	Parties  *party.Gateway
	Playback *playback.Manager
	Stats    *events.Stats
	Relay    *events.Relay
	Realtime *gateway.Service
	API      *api.Service

	backend          store.Backend
	closePublisher   func() error
	storeBackendName string
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store backend → Engine → Party gateway → Playback / Relay / WebSocket / REST
	clock := clockwork.NewRealClock()

	engine, backend, err := setupStore(ctx, config)
	if err != nil {
		return nil, err
	}

	// Party gateway
	parties := party.NewGateway(engine, config.Party, clock)

	// Playback
	spotifyOpts := []spotify_client.Option{
		spotify_client.WithBaseURL(config.Spotify.BaseURL),
		spotify_client.WithPollInterval(config.Spotify.PollInterval),
		spotify_client.WithClock(clock),
	}
	devices := func(accessToken string) playback.Device {
		return spotify_client.NewSpotifyClient(context.Background(), accessToken, spotifyOpts...).Device()
	}
	players := playback.NewManager(parties, devices)

	// Event relay
	stats := events.NewStats()
	publisher, closePublisher, err := setupPublisher(ctx, config)
	if err != nil {
		_ = parties.Close()
		_ = engine.Close()
		_ = backend.Close()
		return nil, err
	}
	relay := events.NewRelay(parties, publisher, stats, clock, config.Events.Relay)

	// WebSocket gateway
	realtime := gateway.NewService(config.Gateway, parties, clock)

	// REST
	catalog := func(ctx context.Context, accessToken string) api.Catalog {
		return spotify_client.NewSpotifyClient(ctx, accessToken, spotifyOpts...)
	}
	restService := api.NewService(parties, players, catalog, api.WithPartyCreated(func(key string) {
		if err := relay.Track(key); err != nil {
			log.Error().Err(err).Str("party_key", key).Msg("failed to relay party events")
		}
	}))

	return &Services{
		Store:            engine,
		Parties:          parties,
		Playback:         players,
		Stats:            stats,
		Relay:            relay,
		Realtime:         realtime,
		API:              restService,
		backend:          backend,
		closePublisher:   closePublisher,
		storeBackendName: config.Store.Backend,
	}, nil
}

// setupPublisher connects to NATS when a URL is configured and falls back
// to logging events otherwise.
func setupPublisher(ctx context.Context, config *Config) (events.EventPublisher, func() error, error) {
	if config.Events.JetStream.URL == "" {
		log.Info().Msg("NATS_URL not set, party events are logged only")
		return events.NewLogPublisher(), func() error { return nil }, nil
	}

	publisher, err := events.NewJetStreamPublisher(ctx, config.Events.JetStream)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}
	return publisher, publisher.Close, nil
}

// Close shuts services down in reverse dependency order.
func (s *Services) Close(ctx context.Context) {
	s.Playback.Close()
	if err := s.Relay.Close(ctx); err != nil {
		log.Error().Err(err).Msg("failed to drain event relay")
	}
	if err := s.closePublisher(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := s.Parties.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close party gateway")
	}
	if err := s.Store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close store engine")
	}
	if err := s.backend.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close store backend")
	}
}
