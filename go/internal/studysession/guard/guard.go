// Package guard commits round phase changes with a compare-and-swap on the
// store, so that of two racing writers exactly one wins.
package guard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
}

// Durations is how long each timed phase runs before its deadline.
type Durations struct {
	Voting     time.Duration `yaml:"voting"`
	Discussing time.Duration `yaml:"discussing"`
	Revoting   time.Duration `yaml:"revoting"`
	Explaining time.Duration `yaml:"explaining"`
}

// DefaultDurations returns the phase lengths used when none are configured.
func DefaultDurations() Durations {
	return Durations{
		Voting:     2 * time.Minute,
		Discussing: 5 * time.Minute,
		Revoting:   2 * time.Minute,
		Explaining: 5 * time.Minute,
	}
}

// For returns the duration of status, or zero for untimed statuses.
func (d Durations) For(status models.RoundStatus) time.Duration {
	switch status {
	case models.RoundStatusVoting:
		return d.Voting
	case models.RoundStatusDiscussing:
		return d.Discussing
	case models.RoundStatusRevoting:
		return d.Revoting
	case models.RoundStatusExplaining:
		return d.Explaining
	}
	return 0
}

// Result is the outcome of a guarded write. When Committed is false Round
// is the persisted round the caller lost to.
type Result struct {
	Committed bool
	Round     models.Round
	Version   int64
}

// StartResult is the outcome of TryStart.
type StartResult struct {
	Committed bool
	Status    models.SessionStatus
	Round     models.Round
	Version   int64
}

// Guard stamps phase timing and performs the conditional writes.
type Guard struct {
	store     repository.Store
	clock     Clock
	durations Durations
}

// New creates a guard. A nil clock means the real clock.
func New(store repository.Store, clock Clock, durations Durations) *Guard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Guard{store: store, clock: clock, durations: durations}
}

// Durations returns the configured phase lengths.
func (g *Guard) Durations() Durations {
	return g.durations
}

// TryAdvance moves round roundIndex from expected to next if and only if
// the persisted status still equals expected.
func (g *Guard) TryAdvance(ctx context.Context, sessionID uuid.UUID, roundIndex int, expected, next models.RoundStatus) (Result, error) {
	swap, err := g.store.SwapRoundStatus(ctx, g.transition(sessionID, roundIndex, expected, next))
	if err != nil {
		return Result{}, err
	}
	if !swap.Swapped {
		log.Debug().
			Str("session_id", sessionID.String()).
			Int("round_index", roundIndex).
			Str("expected", string(expected)).
			Str("actual", string(swap.Round.Status)).
			Msg("round compare-and-swap lost")
	}
	return Result{Committed: swap.Swapped, Round: swap.Round, Version: swap.Version}, nil
}

// TryStart activates a CREATED session and opens round 1 for voting in a
// single write.
func (g *Guard) TryStart(ctx context.Context, sessionID uuid.UUID) (StartResult, error) {
	first := g.transition(sessionID, 1, models.RoundStatusCreated, models.RoundStatusVoting)
	swap, err := g.store.StartSession(ctx, repository.SessionStart{
		SessionID: sessionID,
		At:        first.StartedAt,
		First:     first,
	})
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{
		Committed: swap.Swapped,
		Status:    swap.Status,
		Round:     swap.Round,
		Version:   swap.Version,
	}, nil
}

// TryEnd moves an ACTIVE session to ENDED.
func (g *Guard) TryEnd(ctx context.Context, sessionID uuid.UUID) (repository.SessionSwap, error) {
	return g.store.SwapSessionStatus(ctx, repository.SessionTransition{
		SessionID: sessionID,
		Expected:  models.SessionStatusActive,
		Next:      models.SessionStatusEnded,
		At:        g.clock.Now().UTC(),
	})
}

// TryExtend pushes the deadline of a round that is still in status.
func (g *Guard) TryExtend(ctx context.Context, sessionID uuid.UUID, roundIndex int, status models.RoundStatus, deadline time.Time) (Result, error) {
	swap, err := g.store.SwapRoundDeadline(ctx, repository.DeadlineChange{
		SessionID:  sessionID,
		RoundIndex: roundIndex,
		Status:     status,
		DeadlineAt: deadline.UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Committed: swap.Swapped, Round: swap.Round, Version: swap.Version}, nil
}

func (g *Guard) transition(sessionID uuid.UUID, roundIndex int, expected, next models.RoundStatus) repository.RoundTransition {
	now := g.clock.Now().UTC()
	t := repository.RoundTransition{
		SessionID:  sessionID,
		RoundIndex: roundIndex,
		Expected:   expected,
		Next:       next,
		StartedAt:  now,
	}
	if d := g.durations.For(next); d > 0 {
		deadline := now.Add(d)
		t.DeadlineAt = &deadline
	}
	return t
}
