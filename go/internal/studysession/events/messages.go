package events

// ClientMessageType is the type of a message sent from client to server.
type ClientMessageType string

const (
	ClientJoinSession  ClientMessageType = "joinSession"
	ClientLeaveSession ClientMessageType = "leaveSession"
)

// ClientMessage is what a client writes on the realtime channel.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	SessionID string            `json:"sessionId"`
}
