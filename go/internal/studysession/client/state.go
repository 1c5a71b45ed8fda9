// Package client keeps a local, resyncing copy of one study session for a
// connected participant.
package client

import "github.com/google/uuid"

// ConnectionStatus is the health of the realtime channel as the UI shows
// it.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusReconnecting ConnectionStatus = "RECONNECTING"
)

// ConnectionState is a point-in-time view of a ConnectionManager.
// ReconnectAttempts counts dials since the channel last dropped and resets
// once the view is resynced.
type ConnectionState struct {
	SessionID         uuid.UUID        `json:"sessionId"`
	Status            ConnectionStatus `json:"status"`
	ReconnectAttempts int              `json:"reconnectAttempts"`
}
