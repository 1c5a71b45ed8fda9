// Package events defines the realtime envelope and payloads shared by the
// server and the client.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every realtime message travels in.
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	SessionID string          `json:"sessionId"` // Session UUID
	Type      Type            `json:"type"`      // Event type
	Version   int64           `json:"version"`   // Session version after the commit, 0 for presence
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// Type is the realtime event type.
type Type string

const (
	TypeSessionStarted       Type = "session.started"
	TypeSessionEnded         Type = "session.ended"
	TypeSessionUpdated       Type = "session.updated"
	TypeRoundAdvanced        Type = "round.advanced"
	TypeRoundUpdated         Type = "round.updated"
	TypePromptUpdated        Type = "prompt.updated"
	TypeVoteSubmitted        Type = "vote.submitted"
	TypeRevoteSubmitted      Type = "revote.submitted"
	TypeExplanationSubmitted Type = "explanation.submitted"
	TypeSharedCardCreated    Type = "sharedCard.created"
	TypeUserJoined           Type = "userJoined"
	TypeUserLeft             Type = "userLeft"
	TypeSessionJoined        Type = "session.joined"
	TypeError                Type = "error"
)

// Committed reports whether events of this type come from a store commit
// and therefore carry a session version.
func (t Type) Committed() bool {
	switch t {
	case TypeUserJoined, TypeUserLeft, TypeSessionJoined, TypeError:
		return false
	}
	return true
}

// New builds an event with a fresh id.
func New(sessionID uuid.UUID, typ Type, version int64, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      typ,
		Version:   version,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ParsePayload parses event data into the appropriate payload struct.
func ParsePayload(event *Event) (any, error) {
	switch event.Type {
	case TypeSessionStarted, TypeSessionEnded, TypeSessionUpdated:
		return decode[SessionPayload](event)

	case TypeRoundAdvanced, TypeRoundUpdated, TypePromptUpdated:
		return decode[RoundPayload](event)

	case TypeVoteSubmitted, TypeRevoteSubmitted, TypeExplanationSubmitted:
		return decode[SubmissionPayload](event)

	case TypeSharedCardCreated:
		return decode[SharedCardPayload](event)

	case TypeUserJoined, TypeUserLeft, TypeSessionJoined:
		return decode[PresencePayload](event)

	case TypeError:
		return decode[ErrorPayload](event)

	default:
		return nil, nil // Unknown event type
	}
}

func decode[T any](event *Event) (T, error) {
	var payload T
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}
	return payload, nil
}
