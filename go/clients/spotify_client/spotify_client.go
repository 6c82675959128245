package spotify_client

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// SpotifyClient talks to the Spotify Web API with a party's access token.
type SpotifyClient struct {
	api          *spotify.Client
	clock        clockwork.Clock
	pollInterval time.Duration
}

type options struct {
	baseURL      string
	clock        clockwork.Clock
	pollInterval time.Duration
}

// Option configures a SpotifyClient.
type Option func(*options)

// WithBaseURL points the client at another API root, e.g. a test server.
// The URL must end with a slash.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithClock sets the clock used for device polling.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithPollInterval sets how often the device is polled for its state.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// NewSpotifyClient creates a client that sends accessToken as a bearer token.
func NewSpotifyClient(ctx context.Context, accessToken string, opts ...Option) *SpotifyClient {
	o := options{
		baseURL:      BaseURL,
		clock:        clockwork.NewRealClock(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = RequestTimeout

	return &SpotifyClient{
		api:          spotify.New(httpClient, spotify.WithBaseURL(o.baseURL)),
		clock:        o.clock,
		pollInterval: o.pollInterval,
	}
}

// SearchTracks runs a track search. limit <= 0 uses DefaultSearchLimit.
func (c *SpotifyClient) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	results, err := c.api.Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Limit(limit), spotify.Offset(DefaultSearchOffset))
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	if results.Tracks == nil {
		return []models.Track{}, nil
	}

	tracks := make([]models.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// CurrentUser returns the owner of the access token.
func (c *SpotifyClient) CurrentUser(ctx context.Context) (*models.User, error) {
	u, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &models.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Country:     u.Country,
		Product:     u.Product,
	}, nil
}

// Device returns the playback device for this token.
func (c *SpotifyClient) Device() *Device {
	return &Device{api: c.api, clock: c.clock, interval: c.pollInterval}
}

func convertTrack(t *spotify.FullTrack) models.Track {
	artists := make([]models.Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, models.Artist{ID: string(a.ID), Name: a.Name, URI: string(a.URI)})
	}

	images := make([]models.Image, 0, len(t.Album.Images))
	for _, img := range t.Album.Images {
		images = append(images, models.Image{URL: img.URL, Width: int(img.Width), Height: int(img.Height)})
	}

	return models.Track{
		ID:      string(t.ID),
		URI:     string(t.URI),
		Name:    t.Name,
		Artists: artists,
		Album: models.Album{
			ID:     string(t.Album.ID),
			Name:   t.Album.Name,
			URI:    string(t.Album.URI),
			Images: images,
		},
		DurationMs:       int(t.Duration),
		Explicit:         t.Explicit,
		Popularity:       int(t.Popularity),
		PreviewURL:       t.PreviewURL,
		TrackNumber:      int(t.TrackNumber),
		DiscNumber:       int(t.DiscNumber),
		ExternalURLs:     t.ExternalURLs,
		AvailableMarkets: t.AvailableMarkets,
	}
}
