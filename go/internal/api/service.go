package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/playback"
)

// Parties is the subset of the party gateway the REST surface drives.
type Parties interface {
	CreateParty(ctx context.Context, req party.CreatePartyRequest) (*models.Party, *models.Attendee, error)
	JoinParty(ctx context.Context, key string, req party.JoinPartyRequest) (*models.Party, *models.Attendee, error)
	GetParty(ctx context.Context, key string) (*models.Party, error)
	CloseParty(ctx context.Context, p models.Party) error
	RemoveAttendee(ctx context.Context, p models.Party, a models.Attendee) error
	AddTrackToQueue(ctx context.Context, p models.Party, track models.Track) (*models.QueueTrack, error)
	UpvoteTrack(ctx context.Context, p models.Party, track models.QueueTrack, a models.Attendee) error
	DownvoteTrack(ctx context.Context, p models.Party, track models.QueueTrack, a models.Attendee) error
}

// Players hands out the running coordinator for a party.
type Players interface {
	Coordinator(ctx context.Context, key string) (*playback.Coordinator, error)
}

// Catalog is the music service as seen with one access token.
type Catalog interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error)
	CurrentUser(ctx context.Context) (*models.User, error)
}

// CatalogFactory builds a catalog client for an access token.
type CatalogFactory func(ctx context.Context, accessToken string) Catalog

// Option configures a Service.
type Option func(*Service)

// WithPartyCreated registers a hook called with the key of every party
// created through the API.
func WithPartyCreated(fn func(key string)) Option {
	return func(s *Service) { s.onCreated = fn }
}

// Service serves the party REST API.
type Service struct {
	parties   Parties
	players   Players
	catalog   CatalogFactory
	onCreated func(key string)
}

// NewService creates a new REST service
func NewService(parties Parties, players Players, catalog CatalogFactory, opts ...Option) *Service {
	s := &Service{
		parties: parties,
		players: players,
		catalog: catalog,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the /api routes. Extra middlewares run after the standard
// request id, real ip, logger and recoverer chain.
func (s *Service) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/parties", s.handleCreateParty)
		r.Get("/parties/{key}", s.handleGetParty)
		r.Delete("/parties/{key}", s.handleCloseParty)

		r.Post("/parties/{key}/attendees", s.handleJoinParty)
		r.Delete("/parties/{key}/attendees/{attendeeID}", s.handleRemoveAttendee)

		r.Post("/parties/{key}/queue", s.handleAddTrack)
		r.Post("/parties/{key}/queue/{trackID}/upvote", s.handleUpvote)
		r.Post("/parties/{key}/queue/{trackID}/downvote", s.handleDownvote)

		// Playback
		r.Post("/parties/{key}/playback/play", s.handlePlay)
		r.Post("/parties/{key}/playback/pause", s.handlePause)

		r.Get("/search", s.handleSearch)
	})

	return r
}
