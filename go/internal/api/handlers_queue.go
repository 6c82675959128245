package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
)

type addTrackRequest struct {
	Track models.Track `json:"track"`
}

type voteRequest struct {
	AttendeeID string `json:"attendee_id"`
}

// POST /api/parties/{key}/queue
func (s *Service) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var req addTrackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	p, err := s.parties.GetParty(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if req.Track.ID != "" && p.IsTrackInQueue(req.Track.ID) {
		writeFailure(w, r, fmt.Errorf("%w: %s", ErrTrackAlreadyQueued, req.Track.ID))
		return
	}

	entry, err := s.parties.AddTrackToQueue(r.Context(), *p, req.Track)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// POST /api/parties/{key}/queue/{trackID}/upvote
func (s *Service) handleUpvote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, true)
}

// POST /api/parties/{key}/queue/{trackID}/downvote
func (s *Service) handleDownvote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, false)
}

func (s *Service) handleVote(w http.ResponseWriter, r *http.Request, up bool) {
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	p, attendee, err := s.lookupAttendee(r.Context(), chi.URLParam(r, "key"), req.AttendeeID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	trackID := chi.URLParam(r, "trackID")
	i := p.IndexOfTrack(trackID)
	if i < 0 {
		writeFailure(w, r, fmt.Errorf("%w: %s", party.ErrTrackNotInQueue, trackID))
		return
	}

	vote := s.parties.DownvoteTrack
	if up {
		vote = s.parties.UpvoteTrack
	}
	if err := vote(r.Context(), *p, p.Queue[i], attendee); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
