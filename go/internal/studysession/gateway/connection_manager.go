package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/presence"
	"github.com/rs/zerolog/log"
)

// Authorizer decides whether a user may join a session room.
type Authorizer interface {
	CanJoin(ctx context.Context, sessionID uuid.UUID, userID string) error
}

// ConnectionManager manages WebSocket connections and session rooms
type ConnectionManager struct {
	// Live connections by connection ID; room membership lives in presence
	conns    map[string]*Connection
	mu       sync.RWMutex
	presence *presence.Registry

	authorizer Authorizer

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting; a single dispatcher keeps per-room commit order
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	JoinTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	SessionID    string
	Event        *events.Event
	ConnectionID string // Optional: if set, only send to this connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		JoinTimeout:     5 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000, // Buffer for high throughput
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, authorizer Authorizer) *ConnectionManager {
	return &ConnectionManager{
		conns:      make(map[string]*Connection),
		presence:   presence.NewRegistry(),
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Publish queues a committed event for its session room. It waits for
// queue space rather than dropping, so room order matches commit order.
func (cm *ConnectionManager) Publish(ctx context.Context, event *events.Event) error {
	return cm.enqueue(ctx, BroadcastMessage{SessionID: event.SessionID, Event: event})
}

func (cm *ConnectionManager) enqueue(ctx context.Context, message BroadcastMessage) error {
	select {
	case cm.broadcastCh <- message:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.CodeRealtimeUnavailable, "broadcast queue full", ctx.Err())
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.conns[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.conns)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager and every
// room it joined. It reports the rooms where the user is now absent.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) []presence.Departure {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.conns[conn.ID]; !exists {
		return nil
	}
	delete(cm.conns, conn.ID)
	close(conn.Send)

	departures := cm.presence.LeaveAll(conn.ID)
	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Int("rooms", len(departures)).
		Msg("connection unregistered")
	return departures
}

// disconnect unregisters conn and announces its departures through the
// dispatcher. It is called from the connection's own goroutines.
func (cm *ConnectionManager) disconnect(conn *Connection) {
	for _, d := range cm.unregisterConnection(conn) {
		if !d.LastForUser {
			continue
		}
		message, err := presenceMessage(d.SessionID, events.TypeUserLeft, d.UserID)
		if err != nil {
			log.Error().Err(err).Msg("failed to build userLeft event")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), cm.config.WriteTimeout)
		if err := cm.enqueue(ctx, message); err != nil {
			log.Warn().Err(err).Str("session_id", d.SessionID).Msg("dropping userLeft event")
		}
		cancel()
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so a concurrent unregister cannot
	// close a Send channel mid-broadcast.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for _, id := range cm.presence.Connections(message.SessionID) {
		if message.ConnectionID != "" && id != message.ConnectionID {
			continue
		}
		conn, ok := cm.conns[id]
		if !ok {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it; the client will resync
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		departures := cm.unregisterConnection(conn)
		conn.Conn.Close()
		for _, d := range departures {
			if !d.LastForUser {
				continue
			}
			left, err := presenceMessage(d.SessionID, events.TypeUserLeft, d.UserID)
			if err == nil {
				cm.handleBroadcast(left)
			}
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_id", message.SessionID).
		Int64("version", message.Event.Version).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats is a point-in-time view of the gateway.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rooms := cm.presence.RoomSizes()
	return ConnectionStats{
		TotalConnections:   len(cm.conns),
		ActiveSessions:     len(rooms),
		SessionConnections: rooms,
	}
}

// Users returns the users currently present in the session room.
func (cm *ConnectionManager) Users(sessionID string) []string {
	return cm.presence.Users(sessionID)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.disconnect(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes join and leave requests from the client
func (c *Connection) handleClientMessage(message []byte) {
	var msg events.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reject("", apperrors.Wrap(apperrors.CodeInvalidArgument, "malformed client message", err))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("type", string(msg.Type)).
		Str("session_id", msg.SessionID).
		Msg("received client message")

	sessionID, err := uuid.Parse(msg.SessionID)
	if err != nil {
		c.reject(msg.SessionID, apperrors.New(apperrors.CodeInvalidArgument, "invalid sessionId"))
		return
	}

	switch msg.Type {
	case events.ClientJoinSession:
		c.join(sessionID)
	case events.ClientLeaveSession:
		c.leave(sessionID)
	default:
		c.reject(msg.SessionID, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (c *Connection) join(sessionID uuid.UUID) {
	cm := c.Manager
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.JoinTimeout)
	defer cancel()

	if cm.authorizer != nil {
		if err := cm.authorizer.CanJoin(ctx, sessionID, c.UserID); err != nil {
			c.reject(sessionID.String(), err)
			return
		}
	}

	cm.mu.RLock()
	_, live := cm.conns[c.ID]
	var added, first bool
	if live {
		added, first = cm.presence.Join(sessionID.String(), c.ID, c.UserID)
	}
	cm.mu.RUnlock()
	if !live {
		return
	}

	ack, err := presenceMessage(sessionID.String(), events.TypeSessionJoined, c.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to build join ack")
		return
	}
	ack.ConnectionID = c.ID
	if err := cm.enqueue(ctx, ack); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to queue join ack")
		return
	}

	if added && first {
		joined, err := presenceMessage(sessionID.String(), events.TypeUserJoined, c.UserID)
		if err == nil {
			err = cm.enqueue(ctx, joined)
		}
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to queue userJoined")
		}
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("session_id", sessionID.String()).
		Msg("connection joined session")
}

func (c *Connection) leave(sessionID uuid.UUID) {
	cm := c.Manager
	d, ok := cm.presence.Leave(sessionID.String(), c.ID)
	if !ok || !d.LastForUser {
		return
	}
	left, err := presenceMessage(d.SessionID, events.TypeUserLeft, d.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to build userLeft event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.WriteTimeout)
	defer cancel()
	if err := cm.enqueue(ctx, left); err != nil {
		log.Warn().Err(err).Str("session_id", d.SessionID).Msg("dropping userLeft event")
	}
}

// reject sends an error event to this connection only. It writes straight
// to the send queue since the connection need not be in any room.
func (c *Connection) reject(sessionID string, cause error) {
	code := apperrors.CodeOf(cause)
	if code == apperrors.CodeUnknown {
		code = apperrors.CodeInvalidArgument
	}
	message := cause.Error()
	var domainErr *apperrors.Error
	if errors.As(cause, &domainErr) {
		message = domainErr.Message
	}

	id, _ := uuid.Parse(sessionID)
	event, err := events.New(id, events.TypeError, 0, time.Now(), events.ErrorPayload{Code: string(code), Message: message})
	if err != nil {
		return
	}
	event.SessionID = sessionID
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if _, live := c.Manager.conns[c.ID]; !live {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping error event")
	}
}

func presenceMessage(sessionID string, typ events.Type, userID string) (BroadcastMessage, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return BroadcastMessage{}, err
	}
	event, err := events.New(id, typ, 0, time.Now(), events.PresencePayload{UserID: userID})
	if err != nil {
		return BroadcastMessage{}, err
	}
	return BroadcastMessage{SessionID: sessionID, Event: event}, nil
}
