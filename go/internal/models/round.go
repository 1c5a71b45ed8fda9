package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the phase a round is in.
type RoundStatus string

const (
	RoundStatusCreated    RoundStatus = "CREATED"
	RoundStatusVoting     RoundStatus = "VOTING"
	RoundStatusDiscussing RoundStatus = "DISCUSSING"
	RoundStatusRevoting   RoundStatus = "REVOTING"
	RoundStatusExplaining RoundStatus = "EXPLAINING"
	RoundStatusDone       RoundStatus = "DONE"
)

// Valid reports whether s is one of the known round statuses.
func (s RoundStatus) Valid() bool {
	switch s {
	case RoundStatusCreated, RoundStatusVoting, RoundStatusDiscussing,
		RoundStatusRevoting, RoundStatusExplaining, RoundStatusDone:
		return true
	}
	return false
}

// Round is one iteration of the vote/discuss/revote/explain cycle.
type Round struct {
	SessionID  uuid.UUID   `json:"sessionId"`
	RoundIndex int         `json:"roundIndex"`
	Status     RoundStatus `json:"status"`
	Prompt     string      `json:"prompt"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	DeadlineAt *time.Time  `json:"deadlineAt,omitempty"`
}

// Clone returns a copy that shares no pointers with r.
func (r Round) Clone() Round {
	r.StartedAt = cloneTime(r.StartedAt)
	r.DeadlineAt = cloneTime(r.DeadlineAt)
	return r
}

// NewRounds builds rounds 1..count for a session. Prompts beyond the slice
// are left empty.
func NewRounds(sessionID uuid.UUID, count int, prompts []string) []Round {
	rounds := make([]Round, count)
	for i := range rounds {
		rounds[i] = Round{
			SessionID:  sessionID,
			RoundIndex: i + 1,
			Status:     RoundStatusCreated,
		}
		if i < len(prompts) {
			rounds[i].Prompt = prompts[i]
		}
	}
	return rounds
}
