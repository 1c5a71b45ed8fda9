package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionKind distinguishes the per-phase participant inputs.
type SubmissionKind string

const (
	SubmissionKindVote        SubmissionKind = "VOTE"
	SubmissionKindRevote      SubmissionKind = "REVOTE"
	SubmissionKindExplanation SubmissionKind = "EXPLANATION"
)

// Submission is an append-only vote, revote or explanation.
type Submission struct {
	ID         uuid.UUID      `json:"id"`
	SessionID  uuid.UUID      `json:"sessionId"`
	RoundIndex int            `json:"roundIndex"`
	UserID     string         `json:"userId"`
	Kind       SubmissionKind `json:"kind"`
	Value      string         `json:"value"`
	CreatedAt  time.Time      `json:"createdAt"`
}
