package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/mcdev12/spotmix/go/internal/playback"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

var (
	ErrTrackAlreadyQueued = errors.New("track already queued")
	ErrCatalogFailed      = errors.New("music catalog request failed")
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, party.ErrPartyNotFound),
		errors.Is(err, party.ErrAttendeeNotFound),
		errors.Is(err, party.ErrTrackNotInQueue):
		return http.StatusNotFound
	case errors.Is(err, party.ErrAlreadyVoted),
		errors.Is(err, ErrTrackAlreadyQueued),
		errors.Is(err, playback.ErrQueueEmpty):
		return http.StatusConflict
	case errors.Is(err, party.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, party.ErrRemoteCancelled),
		errors.Is(err, ErrCatalogFailed):
		return http.StatusBadGateway
	case errors.Is(err, party.ErrWriteFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps err onto a status code and logs server-side failures.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", party.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: invalid json: %v", party.ErrInvalidRequest, err)
	}
	return nil
}
