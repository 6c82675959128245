package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/spotmix/go/clients/spotify_client"
	"github.com/mcdev12/spotmix/go/internal/playback"
)

type playbackResponse struct {
	PartyKey string `json:"party_key"`
	Playing  bool   `json:"playing"`
}

// POST /api/parties/{key}/playback/play
func (s *Service) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.handlePlayback(w, r, true, (*playback.Coordinator).Play)
}

// POST /api/parties/{key}/playback/pause
func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handlePlayback(w, r, false, (*playback.Coordinator).Pause)
}

func (s *Service) handlePlayback(w http.ResponseWriter, r *http.Request, playing bool, op func(*playback.Coordinator, context.Context) error) {
	key := chi.URLParam(r, "key")
	c, err := s.players.Coordinator(r.Context(), key)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := op(c, r.Context()); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackResponse{PartyKey: key, Playing: playing})
}

// GET /api/search?party_key=&q=&limit=
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key, q := query.Get("party_key"), query.Get("q")
	if key == "" || q == "" {
		writeError(w, http.StatusBadRequest, "party_key and q are required")
		return
	}

	limit := spotify_client.DefaultSearchLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	p, err := s.parties.GetParty(r.Context(), key)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if p.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "party has no access token")
		return
	}

	tracks, err := s.catalog(r.Context(), p.AccessToken).SearchTracks(r.Context(), q, limit)
	if err != nil {
		writeFailure(w, r, fmt.Errorf("%w: %w", ErrCatalogFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}
