package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(services *Services, config *Config) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// REST API
	mux.Handle("/api/", services.API.Router())

	// WebSocket gateway
	services.Realtime.RegisterRoutes(mux)

	// Add health check endpoint
	setupHealthCheck(mux)
	setupInfo(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func setupInfo(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]any{
			"service":   "spotmix",
			"store":     services.storeBackendName,
			"websocket": services.Realtime.GetStats(),
			"events":    services.Stats.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}
