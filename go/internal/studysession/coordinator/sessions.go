package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/round"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
)

// CreateSessionParams describes a new session. RoundCount may be zero when
// Prompts holds one prompt per round.
type CreateSessionParams struct {
	GroupID    string
	ContentID  string
	RoundCount int
	Prompts    []string
	Members    []models.Member
}

// CreateSession validates params and stores a CREATED session with all of
// its rounds. The caller must be listed among the members.
func (c *Coordinator) CreateSession(ctx context.Context, callerID string, params CreateSessionParams) (*models.Session, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CreateSession")
	defer span.End()

	session, err := c.newSession(callerID, params)
	if err == nil {
		err = storeErr(c.store.CreateSession(ctx, session))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("group_id", session.GroupID).
		Str("user_id", callerID).
		Int("rounds", len(session.Rounds)).
		Msg("session created")
	return session, nil
}

func (c *Coordinator) newSession(callerID string, params CreateSessionParams) (*models.Session, error) {
	if strings.TrimSpace(params.GroupID) == "" || strings.TrimSpace(params.ContentID) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "group id and content id are required")
	}
	count := params.RoundCount
	if count == 0 {
		count = len(params.Prompts)
	}
	if count < 1 {
		return nil, apperrors.New(apperrors.CodeInvalidRoundCount, "a session needs at least one round")
	}
	if len(params.Prompts) > count {
		return nil, apperrors.New(apperrors.CodeInvalidRoundCount,
			fmt.Sprintf("%d prompts given for %d rounds", len(params.Prompts), count))
	}

	seen := make(map[string]bool, len(params.Members))
	for _, m := range params.Members {
		if strings.TrimSpace(m.UserID) == "" {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "member user id is required")
		}
		if seen[m.UserID] {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("member %s listed twice", m.UserID))
		}
		seen[m.UserID] = true
		if !m.AssignedRole.Valid() || !m.GroupRole.Valid() {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidRole,
				fmt.Sprintf("member %s has an unknown role", m.UserID),
				map[string]string{"assigned_role": string(m.AssignedRole), "group_role": string(m.GroupRole)})
		}
	}
	if !seen[callerID] {
		return nil, apperrors.New(apperrors.CodeNotMember, "the creator must be a member of the session")
	}

	id := uuid.New()
	return &models.Session{
		ID:        id,
		GroupID:   params.GroupID,
		ContentID: params.ContentID,
		Status:    models.SessionStatusCreated,
		Rounds:    models.NewRounds(id, count, params.Prompts),
		Members:   append([]models.Member(nil), params.Members...),
		CreatedAt: c.clock.Now().UTC(),
	}, nil
}

// StartSession activates a CREATED session and opens round 1 for voting.
// It publishes session.started followed by round.advanced.
func (c *Coordinator) StartSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*models.Session, error) {
	var out *models.Session
	err := c.do(ctx, "StartSession", sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case models.SessionStatusEnded:
			return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
		case models.SessionStatusActive:
			return apperrors.New(apperrors.CodeSessionNotCreated, "session already started")
		}
		first, err := requireRound(session, 1)
		if err != nil {
			return err
		}
		if err := round.ValidateTransition(first.Status, models.RoundStatusVoting, members.Lookup(callerID)); err != nil {
			return err
		}

		res, err := c.guard.TryStart(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		if !res.Committed {
			if res.Round.Status != first.Status {
				return apperrors.RoundConflict(res.Round)
			}
			return apperrors.WithMetadata(apperrors.CodeSessionConflict, "session status changed concurrently",
				map[string]string{"actual_status": string(res.Status)})
		}

		started := res.Round.StartedAt
		session.Status = models.SessionStatusActive
		session.StartedAt = started
		session.Version = res.Version - 1
		c.publish(ctx, sessionID, events.TypeSessionStarted, session.Version, events.SessionPayload{Session: *session})

		session.Rounds[0] = res.Round
		session.Version = res.Version
		c.publish(ctx, sessionID, events.TypeRoundAdvanced, res.Version, events.RoundPayload{Round: res.Round})

		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", callerID).
			Int64("version", res.Version).
			Msg("session started")
		out = session
		return nil
	})
	return out, err
}

// EndSession moves an ACTIVE session to ENDED and publishes session.ended.
func (c *Coordinator) EndSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*models.Session, error) {
	var out *models.Session
	err := c.do(ctx, "EndSession", sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := requireActive(session); err != nil {
			return err
		}
		if !round.CanControl(members.Lookup(callerID)) {
			return apperrors.New(apperrors.CodeNotAuthorized, "only a facilitator, owner or moderator can end the session")
		}

		swap, err := c.guard.TryEnd(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		if !swap.Swapped {
			return apperrors.WithMetadata(apperrors.CodeSessionConflict, "session status changed concurrently",
				map[string]string{"actual_status": string(swap.Status)})
		}

		session, err = c.store.GetSession(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		c.publish(ctx, sessionID, events.TypeSessionEnded, swap.Version, events.SessionPayload{Session: *session})

		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", callerID).
			Msg("session ended")
		out = session
		return nil
	})
	return out, err
}

// AssignRole changes a member's assigned role and publishes session.updated.
func (c *Coordinator) AssignRole(ctx context.Context, sessionID uuid.UUID, callerID, userID string, role models.AssignedRole) (*models.Session, error) {
	var out *models.Session
	err := c.do(ctx, "AssignRole", sessionID, func(ctx context.Context) error {
		session, members, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == models.SessionStatusEnded {
			return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
		}
		if !round.CanControl(members.Lookup(callerID)) {
			return apperrors.New(apperrors.CodeNotAuthorized, "only a facilitator, owner or moderator can assign roles")
		}
		if !role.Valid() {
			return apperrors.WithMetadata(apperrors.CodeInvalidRole, fmt.Sprintf("unknown role %q", role),
				map[string]string{"assigned_role": string(role)})
		}

		version, err := c.store.UpdateMemberRole(ctx, sessionID, userID, role)
		if err != nil {
			return storeErr(err)
		}
		for i := range session.Members {
			if session.Members[i].UserID == userID {
				session.Members[i].AssignedRole = role
			}
		}
		session.Version = version
		c.publish(ctx, sessionID, events.TypeSessionUpdated, version, events.SessionPayload{Session: *session})

		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", userID).
			Str("assigned_role", string(role)).
			Msg("member role assigned")
		out = session
		return nil
	})
	return out, err
}

// Snapshot reads the authoritative session state. It runs on the session's
// actor so the session, cards and submissions belong to the same version.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error) {
	var out *models.SessionSnapshot
	err := c.do(ctx, "Snapshot", sessionID, func(ctx context.Context) error {
		session, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		cards, err := c.store.ListSharedCards(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		subs, err := c.store.ListSubmissions(ctx, sessionID)
		if err != nil {
			return storeErr(err)
		}
		out = &models.SessionSnapshot{Session: *session, SharedCards: cards, Submissions: subs}
		return nil
	})
	return out, err
}

// CanJoin reports whether userID may subscribe to the session's events.
func (c *Coordinator) CanJoin(ctx context.Context, sessionID uuid.UUID, userID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return storeErr(err)
	}
	_, err = requireMember(models.IndexMembers(session.Members), userID)
	return err
}
