package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/rs/zerolog/log"
)

// PartySource is what the connection manager needs from the party gateway.
type PartySource interface {
	GetParty(ctx context.Context, key string) (*models.Party, error)
	Attach(key string, f *party.Forwarder) error
	Detach(key string, f *party.Forwarder)
}

// ConnectionManager manages WebSocket connections per party. The first
// connection to a party attaches a forwarder to the party gateway and the
// last one to leave detaches it.
type ConnectionManager struct {
	source PartySource
	clock  clockwork.Clock

	partyConnections map[string]map[*Connection]bool
	forwarders       map[string]*party.Forwarder
	mu               sync.RWMutex

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan BroadcastMessage
}

// Connection is one WebSocket client of a party.
type Connection struct {
	ID         string
	AttendeeID string
	PartyKey   string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	ConnectedAt time.Time
	closeOnce   sync.Once
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`
	BroadcastBuffer int           `yaml:"broadcast_buffer"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage is an event bound for every connection of a party.
type BroadcastMessage struct {
	PartyKey string
	Event    *PartyEvent
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(source PartySource, clock clockwork.Clock, config ConnectionConfig) *ConnectionManager {
	// The snapshot is queued before the write pump starts.
	config.SendBufferSize = max(config.SendBufferSize, 1)
	return &ConnectionManager{
		source:           source,
		clock:            clock,
		partyConnections: make(map[string]map[*Connection]bool),
		forwarders:       make(map[string]*party.Forwarder),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request and joins the connection to the
// party's pool. The first message on the socket is a snapshot of p.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, p *models.Party, attendeeID string) error {
	snapshot, err := cm.snapshot(p)
	if err != nil {
		return err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		AttendeeID:  attendeeID,
		PartyKey:    p.Key,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}
	connection.Send <- snapshot

	if err := cm.registerConnection(connection); err != nil {
		_ = conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("attendee_id", attendeeID).
		Str("party_key", p.Key).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) snapshot(p *models.Party) ([]byte, error) {
	data, err := json.Marshal(PartyPayload{Party: *p})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	msg, err := json.Marshal(PartyEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeSnapshot,
		PartyKey:  p.Key,
		Timestamp: cm.clock.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return msg, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.partyConnections[conn.PartyKey] == nil {
		key := conn.PartyKey
		fwd := party.NewForwarder(cm.clock, func(ev party.Event) { cm.broadcastEvent(key, ev) })
		if err := cm.source.Attach(key, fwd); err != nil {
			return fmt.Errorf("failed to attach to party %s: %w", key, err)
		}
		cm.forwarders[key] = fwd
		cm.partyConnections[key] = make(map[*Connection]bool)
	}
	cm.partyConnections[conn.PartyKey][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("party_key", conn.PartyKey).
		Int("total_connections", len(cm.partyConnections[conn.PartyKey])).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.partyConnections[conn.PartyKey]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.partyConnections, conn.PartyKey)
		if fwd, ok := cm.forwarders[conn.PartyKey]; ok {
			cm.source.Detach(conn.PartyKey, fwd)
			delete(cm.forwarders, conn.PartyKey)
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("attendee_id", conn.AttendeeID).
		Str("party_key", conn.PartyKey).
		Msg("connection unregistered")
}

// broadcastEvent runs on the store dispatcher and must not block.
func (cm *ConnectionManager) broadcastEvent(key string, ev party.Event) {
	msg, err := NewPartyEvent(ev)
	if err != nil {
		log.Error().Err(err).Str("party_key", key).Msg("failed to convert party event")
		return
	}
	cm.BroadcastToParty(key, msg)
}

// BroadcastToParty queues event for every connection of the party.
func (cm *ConnectionManager) BroadcastToParty(key string, event *PartyEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{PartyKey: key, Event: event}:
	default:
		log.Warn().Str("party_key", key).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends never block and run under the read lock, so unregisterConnection
	// cannot close a channel mid-send.
	var slow []*Connection
	cm.mu.RLock()
	connections := cm.partyConnections[message.PartyKey]
	for conn := range connections {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("attendee_id", conn.AttendeeID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("party_key", message.PartyKey).
		Int("connections", delivered).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.partyConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes the active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveParties    int            `json:"active_parties"`
	PartyConnections map[string]int `json:"party_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveParties:    len(cm.partyConnections),
		PartyConnections: make(map[string]int, len(cm.partyConnections)),
	}
	for key, connections := range cm.partyConnections {
		stats.TotalConnections += len(connections)
		stats.PartyConnections[key] = len(connections)
	}
	return stats
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { _ = c.Conn.Close() })
}

func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}

		// Clients only listen; anything they send is logged and dropped.
		log.Debug().
			Str("connection_id", c.ID).
			Str("attendee_id", c.AttendeeID).
			Int("size", len(message)).
			Msg("received client message")
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
