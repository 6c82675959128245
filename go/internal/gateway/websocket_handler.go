package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for party connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandlePartyConnection upgrades GET /ws?party_key=<key>[&attendee_id=<id>].
func (h *WebSocketHandler) HandlePartyConnection(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("party_key")
	if key == "" {
		http.Error(w, "party_key is required", http.StatusBadRequest)
		return
	}

	p, err := h.connectionManager.source.GetParty(r.Context(), key)
	if err != nil {
		if errors.Is(err, party.ErrPartyNotFound) {
			http.Error(w, "party not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("party_key", key).Msg("failed to load party for WebSocket connection")
		http.Error(w, "failed to load party", http.StatusBadGateway)
		return
	}

	attendeeID := r.URL.Query().Get("attendee_id")
	if attendeeID == "" {
		attendeeID = "anonymous"
	}

	// The upgrader has already written an error response when it fails.
	if err := h.connectionManager.UpgradeConnection(w, r, p, attendeeID); err != nil {
		log.Error().
			Err(err).
			Str("party_key", key).
			Str("attendee_id", attendeeID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandlePartyConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
