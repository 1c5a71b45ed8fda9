package models

import (
	"time"

	"github.com/google/uuid"
)

// SharedCard is a note any participant posts to the session board.
type SharedCard struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	CreatedBy string    `json:"createdBy"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
