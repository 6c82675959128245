package models

import "strings"

// Artist is a credited artist on a track.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// Image is a piece of album artwork.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Album is the album a track was released on.
type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	URI    string  `json:"uri,omitempty"`
	Images []Image `json:"images,omitempty"`
}

// Track is catalog metadata as returned by the playback service. The sync
// layer treats it as opaque apart from ID and URI.
type Track struct {
	ID               string            `json:"id"`
	URI              string            `json:"uri"`
	Name             string            `json:"name"`
	Artists          []Artist          `json:"artists,omitempty"`
	Album            Album             `json:"album"`
	DurationMs       int               `json:"duration_ms"`
	Explicit         bool              `json:"explicit"`
	Popularity       int               `json:"popularity,omitempty"`
	PreviewURL       string            `json:"preview_url,omitempty"`
	TrackNumber      int               `json:"track_number,omitempty"`
	DiscNumber       int               `json:"disc_number,omitempty"`
	IsLocal          bool              `json:"is_local,omitempty"`
	ExternalURLs     map[string]string `json:"external_urls,omitempty"`
	AvailableMarkets []string          `json:"available_markets,omitempty"`
}

// ArtistNames joins the artist names in credit order.
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
