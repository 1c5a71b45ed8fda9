package events

import (
	"github.com/mcdev12/studysprint/go/internal/models"
)

// SessionPayload carries the session after a lifecycle or roster change.
type SessionPayload struct {
	Session models.Session `json:"session"`
}

// RoundPayload carries a round after a phase, deadline or prompt change.
type RoundPayload struct {
	Round models.Round `json:"round"`
}

// SubmissionPayload is the payload for vote, revote and explanation events.
// Vote is set for votes and revotes, Text for explanations.
type SubmissionPayload struct {
	SubmissionID string `json:"submissionId"`
	RoundIndex   int    `json:"roundIndex"`
	UserID       string `json:"userId"`
	Vote         string `json:"vote,omitempty"`
	Text         string `json:"text,omitempty"`
}

// NewSubmissionPayload fills Vote or Text by submission kind.
func NewSubmissionPayload(sub models.Submission) SubmissionPayload {
	p := SubmissionPayload{
		SubmissionID: sub.ID.String(),
		RoundIndex:   sub.RoundIndex,
		UserID:       sub.UserID,
	}
	if sub.Kind == models.SubmissionKindExplanation {
		p.Text = sub.Value
	} else {
		p.Vote = sub.Value
	}
	return p
}

// SharedCardPayload is the payload for sharedCard.created.
type SharedCardPayload struct {
	Card models.SharedCard `json:"card"`
}

// PresencePayload is the payload for userJoined, userLeft and the join ack.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports a rejected client message to its sender.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
