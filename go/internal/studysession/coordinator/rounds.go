package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/round"
	"github.com/rs/zerolog/log"
)

// AdvanceParams asks to move one round to a new phase. Expected is the
// status the caller believes the round is in; empty means whatever is
// persisted when the request reaches the session. Without Expected, asking
// for a phase the round has already been through is a conflict.
type AdvanceParams struct {
	SessionID  uuid.UUID
	CallerID   string
	RoundIndex int
	To         models.RoundStatus
	Expected   models.RoundStatus
}

// AdvanceRound validates and commits a round transition. Checks run in
// order: existence, session active, edge then caller role, lower rounds
// done, then the compare-and-swap. A lost swap returns a conflict carrying
// the persisted round and publishes nothing.
func (c *Coordinator) AdvanceRound(ctx context.Context, p AdvanceParams) (models.Round, error) {
	var out models.Round
	err := c.do(ctx, "AdvanceRound", p.SessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, p.SessionID)
		if err != nil {
			return err
		}
		current, err := requireRound(session, p.RoundIndex)
		if err != nil {
			return err
		}
		if err := requireActive(session); err != nil {
			return err
		}

		expected := p.Expected
		if expected == "" {
			expected = current.Status
			if !round.CanTransition(expected, p.To) && round.AlreadyReached(expected, p.To) &&
				round.CanControl(members.Lookup(p.CallerID)) {
				log.Info().
					Str("session_id", p.SessionID.String()).
					Int("round_index", p.RoundIndex).
					Str("user_id", p.CallerID).
					Str("to", string(p.To)).
					Str("actual", string(current.Status)).
					Msg("round advance already applied by a concurrent change")
				return apperrors.RoundConflict(*current)
			}
		}
		if err := round.ValidateTransition(expected, p.To, members.Lookup(p.CallerID)); err != nil {
			return err
		}
		if expected == models.RoundStatusCreated {
			for _, r := range session.Rounds {
				if r.RoundIndex < p.RoundIndex && r.Status != models.RoundStatusDone {
					return apperrors.WithMetadata(apperrors.CodePreviousRoundOpen,
						fmt.Sprintf("round %d is still %s", r.RoundIndex, r.Status),
						map[string]string{"round_index": strconv.Itoa(r.RoundIndex), "status": string(r.Status)})
				}
			}
		}

		res, err := c.guard.TryAdvance(ctx, p.SessionID, p.RoundIndex, expected, p.To)
		if err != nil {
			return storeErr(err)
		}
		if !res.Committed {
			log.Info().
				Str("session_id", p.SessionID.String()).
				Int("round_index", p.RoundIndex).
				Str("user_id", p.CallerID).
				Str("expected", string(expected)).
				Str("actual", string(res.Round.Status)).
				Msg("round advance lost to a concurrent change")
			return apperrors.RoundConflict(res.Round)
		}

		c.publish(ctx, p.SessionID, events.TypeRoundAdvanced, res.Version, events.RoundPayload{Round: res.Round})
		log.Info().
			Str("session_id", p.SessionID.String()).
			Int("round_index", p.RoundIndex).
			Str("user_id", p.CallerID).
			Str("from", string(expected)).
			Str("to", string(p.To)).
			Int64("version", res.Version).
			Msg("round advanced")
		out = res.Round
		return nil
	})
	return out, err
}

// UpdatePrompt replaces the prompt of a round that is not done yet and
// publishes prompt.updated.
func (c *Coordinator) UpdatePrompt(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, prompt string) (models.Round, error) {
	var out models.Round
	err := c.do(ctx, "UpdatePrompt", sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		current, err := requireRound(session, roundIndex)
		if err != nil {
			return err
		}
		if session.Status == models.SessionStatusEnded {
			return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
		}
		if !round.CanControl(members.Lookup(callerID)) {
			return apperrors.New(apperrors.CodeNotAuthorized, "only a facilitator, owner or moderator can change prompts")
		}
		if round.IsTerminal(current.Status) {
			return apperrors.New(apperrors.CodeRoundClosed, fmt.Sprintf("round %d is done", roundIndex))
		}

		r, version, err := c.store.UpdateRoundPrompt(ctx, sessionID, roundIndex, prompt)
		if err != nil {
			return storeErr(err)
		}
		c.publish(ctx, sessionID, events.TypePromptUpdated, version, events.RoundPayload{Round: r})
		out = r
		return nil
	})
	return out, err
}

// ExtendDeadline pushes a running round's deadline forward by extra and
// publishes round.updated. The round's phase is never changed here.
func (c *Coordinator) ExtendDeadline(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, extra time.Duration) (models.Round, error) {
	var out models.Round
	err := c.do(ctx, "ExtendDeadline", sessionID, func(ctx context.Context) error {
		if extra <= 0 {
			return apperrors.New(apperrors.CodeInvalidArgument, "extension must be positive")
		}
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		current, err := requireRound(session, roundIndex)
		if err != nil {
			return err
		}
		if err := requireActive(session); err != nil {
			return err
		}
		if !round.CanKeepTime(members.Lookup(callerID)) {
			return apperrors.New(apperrors.CodeNotAuthorized, "only a timekeeper, facilitator, owner or moderator can extend deadlines")
		}
		if !round.IsOpen(current.Status) || current.DeadlineAt == nil {
			return apperrors.WithMetadata(apperrors.CodeRoundHasNoDeadline,
				fmt.Sprintf("round %d is not running", roundIndex),
				map[string]string{"status": string(current.Status)})
		}

		base := *current.DeadlineAt
		if now := c.clock.Now(); now.After(base) {
			base = now
		}
		res, err := c.guard.TryExtend(ctx, sessionID, roundIndex, current.Status, base.Add(extra))
		if err != nil {
			return storeErr(err)
		}
		if !res.Committed {
			return apperrors.RoundConflict(res.Round)
		}

		c.publish(ctx, sessionID, events.TypeRoundUpdated, res.Version, events.RoundPayload{Round: res.Round})
		log.Info().
			Str("session_id", sessionID.String()).
			Int("round_index", roundIndex).
			Str("user_id", callerID).
			Dur("extra", extra).
			Msg("round deadline extended")
		out = res.Round
		return nil
	})
	return out, err
}
