package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service serves party events to WebSocket clients.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"connection"`
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

func NewService(config Config, source PartySource, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(source, clock, config.ConnectionConfig)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Start runs the broadcaster until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting party WebSocket gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("party WebSocket gateway stopped")
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("party WebSocket routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
