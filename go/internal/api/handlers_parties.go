package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
)

type membershipResponse struct {
	Party    *models.Party    `json:"party"`
	Attendee *models.Attendee `json:"attendee"`
}

// POST /api/parties
func (s *Service) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req party.CreatePartyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	// Without a host name, name the host after the token's account.
	if strings.TrimSpace(req.HostName) == "" && req.AccessToken != "" {
		user, err := s.catalog(r.Context(), req.AccessToken).CurrentUser(r.Context())
		if err != nil {
			writeFailure(w, r, fmt.Errorf("%w: %w", ErrCatalogFailed, err))
			return
		}
		req.HostName = user.Name()
	}

	p, host, err := s.parties.CreateParty(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if s.onCreated != nil {
		s.onCreated(p.Key)
	}
	writeJSON(w, http.StatusCreated, membershipResponse{Party: p, Attendee: host})
}

// GET /api/parties/{key}
func (s *Service) handleGetParty(w http.ResponseWriter, r *http.Request) {
	p, err := s.parties.GetParty(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DELETE /api/parties/{key}
func (s *Service) handleCloseParty(w http.ResponseWriter, r *http.Request) {
	p, err := s.parties.GetParty(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := s.parties.CloseParty(r.Context(), *p); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/parties/{key}/attendees
func (s *Service) handleJoinParty(w http.ResponseWriter, r *http.Request) {
	var req party.JoinPartyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	p, attendee, err := s.parties.JoinParty(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, membershipResponse{Party: p, Attendee: attendee})
}

// DELETE /api/parties/{key}/attendees/{attendeeID}
func (s *Service) handleRemoveAttendee(w http.ResponseWriter, r *http.Request) {
	p, attendee, err := s.lookupAttendee(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "attendeeID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := s.parties.RemoveAttendee(r.Context(), *p, attendee); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) lookupAttendee(ctx context.Context, key, attendeeID string) (*models.Party, models.Attendee, error) {
	if attendeeID == "" {
		return nil, models.Attendee{}, fmt.Errorf("%w: attendee_id is required", party.ErrInvalidRequest)
	}
	p, err := s.parties.GetParty(ctx, key)
	if err != nil {
		return nil, models.Attendee{}, err
	}
	attendee, ok := p.FindAttendee(attendeeID)
	if !ok {
		return nil, models.Attendee{}, fmt.Errorf("%w: %s", party.ErrAttendeeNotFound, attendeeID)
	}
	return p, attendee, nil
}
