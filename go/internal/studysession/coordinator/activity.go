package coordinator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/round"
)

var submissionEvents = map[models.SubmissionKind]events.Type{
	models.SubmissionKindVote:        events.TypeVoteSubmitted,
	models.SubmissionKindRevote:      events.TypeRevoteSubmitted,
	models.SubmissionKindExplanation: events.TypeExplanationSubmitted,
}

// SubmitVote records a vote while the round is VOTING.
func (c *Coordinator) SubmitVote(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, vote string) (models.Submission, error) {
	return c.submit(ctx, "SubmitVote", sessionID, callerID, roundIndex, models.SubmissionKindVote, vote)
}

// SubmitRevote records a second vote while the round is REVOTING.
func (c *Coordinator) SubmitRevote(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, vote string) (models.Submission, error) {
	return c.submit(ctx, "SubmitRevote", sessionID, callerID, roundIndex, models.SubmissionKindRevote, vote)
}

// SubmitExplanation records an explanation while the round is EXPLAINING.
func (c *Coordinator) SubmitExplanation(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, text string) (models.Submission, error) {
	return c.submit(ctx, "SubmitExplanation", sessionID, callerID, roundIndex, models.SubmissionKindExplanation, text)
}

func (c *Coordinator) submit(ctx context.Context, op string, sessionID uuid.UUID, callerID string, roundIndex int, kind models.SubmissionKind, value string) (models.Submission, error) {
	var out models.Submission
	err := c.do(ctx, op, sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if _, err := requireMember(members, callerID); err != nil {
			return err
		}
		if err := requireActive(session); err != nil {
			return err
		}
		current, err := requireRound(session, roundIndex)
		if err != nil {
			return err
		}
		if err := round.ValidateSubmission(current.Status, kind); err != nil {
			return err
		}
		if strings.TrimSpace(value) == "" {
			return apperrors.New(apperrors.CodeEmptyContent, "submission is empty")
		}

		sub := models.Submission{
			ID:         uuid.New(),
			SessionID:  sessionID,
			RoundIndex: roundIndex,
			UserID:     callerID,
			Kind:       kind,
			Value:      value,
			CreatedAt:  c.clock.Now().UTC(),
		}
		version, err := c.store.AppendSubmission(ctx, sub)
		if err != nil {
			return storeErr(err)
		}
		c.publish(ctx, sessionID, submissionEvents[kind], version, events.NewSubmissionPayload(sub))
		out = sub
		return nil
	})
	return out, err
}

// CreateSharedCard appends a card to the session's shared board and
// publishes sharedCard.created. Cards may be added until the session ends.
func (c *Coordinator) CreateSharedCard(ctx context.Context, sessionID uuid.UUID, callerID, content string) (models.SharedCard, error) {
	var out models.SharedCard
	err := c.do(ctx, "CreateSharedCard", sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if _, err := requireMember(members, callerID); err != nil {
			return err
		}
		if session.Status == models.SessionStatusEnded {
			return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
		}
		if strings.TrimSpace(content) == "" {
			return apperrors.New(apperrors.CodeEmptyContent, "card content is empty")
		}

		card := models.SharedCard{
			ID:        uuid.New(),
			SessionID: sessionID,
			CreatedBy: callerID,
			Content:   content,
			CreatedAt: c.clock.Now().UTC(),
		}
		version, err := c.store.AppendSharedCard(ctx, card)
		if err != nil {
			return storeErr(err)
		}
		c.publish(ctx, sessionID, events.TypeSharedCardCreated, version, events.SharedCardPayload{Card: card})
		out = card
		return nil
	})
	return out, err
}

// ListSharedCards returns the session's cards in creation order.
func (c *Coordinator) ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	cards, err := c.store.ListSharedCards(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}
	return cards, nil
}
