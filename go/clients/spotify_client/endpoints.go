package spotify_client

import "time"

const (
	BaseURL = "https://api.spotify.com/v1/"

	// Search defaults used by the party search screen.
	DefaultSearchLimit  = 10
	DefaultSearchOffset = 0

	DefaultPollInterval = time.Second
	RequestTimeout      = 30 * time.Second
)
