// Package repository defines the transactional store the session engine
// persists to. Every mutating call bumps the session version by one per
// committed change and returns the new version.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
)

// RoundTransition is a compare-and-swap request on a round's status.
type RoundTransition struct {
	SessionID  uuid.UUID
	RoundIndex int
	Expected   models.RoundStatus
	Next       models.RoundStatus
	StartedAt  time.Time
	DeadlineAt *time.Time
}

// RoundSwap is the outcome of a round compare-and-swap. When Swapped is
// false Round holds the persisted round unchanged and Version is the
// current session version.
type RoundSwap struct {
	Round   models.Round
	Version int64
	Swapped bool
}

// SessionStart atomically activates a session and opens its first round.
type SessionStart struct {
	SessionID uuid.UUID
	At        time.Time
	First     RoundTransition
}

// StartSwap is the outcome of StartSession. A successful start bumps the
// version twice, once for the session and once for the round.
type StartSwap struct {
	Status  models.SessionStatus
	Round   models.Round
	Version int64
	Swapped bool
}

// SessionTransition is a compare-and-swap request on a session's status.
type SessionTransition struct {
	SessionID uuid.UUID
	Expected  models.SessionStatus
	Next      models.SessionStatus
	At        time.Time
}

// SessionSwap is the outcome of a session compare-and-swap.
type SessionSwap struct {
	Status  models.SessionStatus
	Version int64
	Swapped bool
}

// DeadlineChange moves a running round's deadline, guarded by its status.
type DeadlineChange struct {
	SessionID  uuid.UUID
	RoundIndex int
	Status     models.RoundStatus
	DeadlineAt time.Time
}

// Store is what the coordinator and conflict guard need from persistence.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	StartSession(ctx context.Context, start SessionStart) (StartSwap, error)
	SwapSessionStatus(ctx context.Context, t SessionTransition) (SessionSwap, error)
	SwapRoundStatus(ctx context.Context, t RoundTransition) (RoundSwap, error)
	SwapRoundDeadline(ctx context.Context, change DeadlineChange) (RoundSwap, error)
	UpdateRoundPrompt(ctx context.Context, sessionID uuid.UUID, roundIndex int, prompt string) (models.Round, int64, error)
	UpdateMemberRole(ctx context.Context, sessionID uuid.UUID, userID string, role models.AssignedRole) (int64, error)
	AppendSubmission(ctx context.Context, sub models.Submission) (int64, error)
	AppendSharedCard(ctx context.Context, card models.SharedCard) (int64, error)
	ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error)
	ListSubmissions(ctx context.Context, sessionID uuid.UUID) ([]models.Submission, error)
}
