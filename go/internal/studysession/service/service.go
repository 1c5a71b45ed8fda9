// Package service exposes the session coordinator over connect RPC.
package service

import (
	"context"
	"math"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/auth"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/coordinator"
)

const (
	// SessionServiceName is the fully-qualified name of the session service.
	SessionServiceName = "studysession.v1.SessionService"

	// maxExtraSeconds is the largest extension a time.Duration can hold.
	maxExtraSeconds = math.MaxInt64 / int64(time.Second)

	CreateSessionProcedure      = "/" + SessionServiceName + "/CreateSession"
	StartSessionProcedure       = "/" + SessionServiceName + "/StartSession"
	AdvanceRoundProcedure       = "/" + SessionServiceName + "/AdvanceRound"
	SubmitVoteProcedure         = "/" + SessionServiceName + "/SubmitVote"
	SubmitRevoteProcedure       = "/" + SessionServiceName + "/SubmitRevote"
	SubmitExplanationProcedure  = "/" + SessionServiceName + "/SubmitExplanation"
	CreateSharedCardProcedure   = "/" + SessionServiceName + "/CreateSharedCard"
	GetSharedCardsProcedure     = "/" + SessionServiceName + "/GetSharedCards"
	GetSessionSnapshotProcedure = "/" + SessionServiceName + "/GetSessionSnapshot"
	EndSessionProcedure         = "/" + SessionServiceName + "/EndSession"
	UpdatePromptProcedure       = "/" + SessionServiceName + "/UpdatePrompt"
	ExtendDeadlineProcedure     = "/" + SessionServiceName + "/ExtendDeadline"
	AssignRoleProcedure         = "/" + SessionServiceName + "/AssignRole"
)

// SessionApp defines what the service layer needs from the coordinator
type SessionApp interface {
	CreateSession(ctx context.Context, callerID string, params coordinator.CreateSessionParams) (*models.Session, error)
	StartSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*models.Session, error)
	EndSession(ctx context.Context, sessionID uuid.UUID, callerID string) (*models.Session, error)
	AssignRole(ctx context.Context, sessionID uuid.UUID, callerID, userID string, role models.AssignedRole) (*models.Session, error)
	AdvanceRound(ctx context.Context, p coordinator.AdvanceParams) (models.Round, error)
	UpdatePrompt(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, prompt string) (models.Round, error)
	ExtendDeadline(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, extra time.Duration) (models.Round, error)
	SubmitVote(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, vote string) (models.Submission, error)
	SubmitRevote(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, vote string) (models.Submission, error)
	SubmitExplanation(ctx context.Context, sessionID uuid.UUID, callerID string, roundIndex int, text string) (models.Submission, error)
	CreateSharedCard(ctx context.Context, sessionID uuid.UUID, callerID, content string) (models.SharedCard, error)
	ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error)
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error)
	CanJoin(ctx context.Context, sessionID uuid.UUID, userID string) error
}

// Service implements the SessionService RPCs
type Service struct {
	app SessionApp
}

// Verify that the coordinator implements SessionApp
var _ SessionApp = (*coordinator.Coordinator)(nil)

// NewService creates a new session service
func NewService(app SessionApp) *Service {
	return &Service{app: app}
}

// NewHandler builds an HTTP handler serving every SessionService procedure
// and returns the path prefix to mount it on. Callers are expected to add
// auth.NewServerInterceptor through opts.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, unary(CreateSessionProcedure, svc.CreateSession, opts))
	mux.Handle(StartSessionProcedure, unary(StartSessionProcedure, svc.StartSession, opts))
	mux.Handle(AdvanceRoundProcedure, unary(AdvanceRoundProcedure, svc.AdvanceRound, opts))
	mux.Handle(SubmitVoteProcedure, unary(SubmitVoteProcedure, svc.SubmitVote, opts))
	mux.Handle(SubmitRevoteProcedure, unary(SubmitRevoteProcedure, svc.SubmitRevote, opts))
	mux.Handle(SubmitExplanationProcedure, unary(SubmitExplanationProcedure, svc.SubmitExplanation, opts))
	mux.Handle(CreateSharedCardProcedure, unary(CreateSharedCardProcedure, svc.CreateSharedCard, opts))
	mux.Handle(GetSharedCardsProcedure, unary(GetSharedCardsProcedure, svc.GetSharedCards, opts))
	mux.Handle(GetSessionSnapshotProcedure, unary(GetSessionSnapshotProcedure, svc.GetSessionSnapshot, opts))
	mux.Handle(EndSessionProcedure, unary(EndSessionProcedure, svc.EndSession, opts))
	mux.Handle(UpdatePromptProcedure, unary(UpdatePromptProcedure, svc.UpdatePrompt, opts))
	mux.Handle(ExtendDeadlineProcedure, unary(ExtendDeadlineProcedure, svc.ExtendDeadline, opts))
	mux.Handle(AssignRoleProcedure, unary(AssignRoleProcedure, svc.AssignRole, opts))
	return "/" + SessionServiceName + "/", mux
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) *connect.Handler {
	return connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, apperrors.ToConnectError(err)
		}
		return connect.NewResponse(res), nil
	}, opts...)
}

// CreateSession creates a session owned by the caller
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	session, err := s.app.CreateSession(ctx, caller, coordinator.CreateSessionParams{
		GroupID:    req.GroupID,
		ContentID:  req.ContentID,
		RoundCount: req.RoundCount,
		Prompts:    req.Prompts,
		Members:    req.Members,
	})
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: session}, nil
}

// StartSession moves a session to ACTIVE and opens its first round
func (s *Service) StartSession(ctx context.Context, req *StartSessionRequest) (*SessionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.app.StartSession(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: session}, nil
}

// EndSession ends a session
func (s *Service) EndSession(ctx context.Context, req *EndSessionRequest) (*SessionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.app.EndSession(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: session}, nil
}

// AssignRole changes a participant's assigned role
func (s *Service) AssignRole(ctx context.Context, req *AssignRoleRequest) (*SessionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.app.AssignRole(ctx, id, caller, req.UserID, req.Role)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: session}, nil
}

// AdvanceRound moves a round to its next phase
func (s *Service) AdvanceRound(ctx context.Context, req *AdvanceRoundRequest) (*RoundResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	round, err := s.app.AdvanceRound(ctx, coordinator.AdvanceParams{
		SessionID:  id,
		CallerID:   caller,
		RoundIndex: req.RoundIndex,
		To:         req.To,
		Expected:   req.Expected,
	})
	if err != nil {
		return nil, err
	}
	return &RoundResponse{Round: round}, nil
}

// UpdatePrompt replaces a round's prompt
func (s *Service) UpdatePrompt(ctx context.Context, req *UpdatePromptRequest) (*RoundResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	round, err := s.app.UpdatePrompt(ctx, id, caller, req.RoundIndex, req.Prompt)
	if err != nil {
		return nil, err
	}
	return &RoundResponse{Round: round}, nil
}

// ExtendDeadline pushes the open round's deadline back
func (s *Service) ExtendDeadline(ctx context.Context, req *ExtendDeadlineRequest) (*RoundResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.ExtraSeconds <= 0 || req.ExtraSeconds > maxExtraSeconds {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			"extension must be a positive number of seconds", map[string]string{"Field": "extraSeconds"})
	}
	round, err := s.app.ExtendDeadline(ctx, id, caller, req.RoundIndex, time.Duration(req.ExtraSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	return &RoundResponse{Round: round}, nil
}

func (s *Service) SubmitVote(ctx context.Context, req *SubmitVoteRequest) (*SubmissionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.app.SubmitVote(ctx, id, caller, req.RoundIndex, req.Vote)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

func (s *Service) SubmitRevote(ctx context.Context, req *SubmitRevoteRequest) (*SubmissionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.app.SubmitRevote(ctx, id, caller, req.RoundIndex, req.Vote)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

func (s *Service) SubmitExplanation(ctx context.Context, req *SubmitExplanationRequest) (*SubmissionResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.app.SubmitExplanation(ctx, id, caller, req.RoundIndex, req.Text)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

// CreateSharedCard posts a card to the session board
func (s *Service) CreateSharedCard(ctx context.Context, req *CreateSharedCardRequest) (*CreateSharedCardResponse, error) {
	caller, id, err := callerAndSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	card, err := s.app.CreateSharedCard(ctx, id, caller, req.Content)
	if err != nil {
		return nil, err
	}
	return &CreateSharedCardResponse{Card: card}, nil
}

// GetSharedCards lists the session board in creation order
func (s *Service) GetSharedCards(ctx context.Context, req *GetSharedCardsRequest) (*GetSharedCardsResponse, error) {
	id, err := s.readable(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	cards, err := s.app.ListSharedCards(ctx, id)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.SharedCard{}
	}
	return &GetSharedCardsResponse{Cards: cards}, nil
}

// GetSessionSnapshot returns the authoritative session state clients
// resync from
func (s *Service) GetSessionSnapshot(ctx context.Context, req *GetSessionSnapshotRequest) (*GetSessionSnapshotResponse, error) {
	id, err := s.readable(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.app.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetSessionSnapshotResponse{Snapshot: snapshot}, nil
}

// readable checks that the caller may observe the session.
func (s *Service) readable(ctx context.Context, rawID string) (uuid.UUID, error) {
	caller, id, err := callerAndSession(ctx, rawID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.app.CanJoin(ctx, id, caller); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func callerID(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "caller is not authenticated")
	}
	return userID, nil
}

func callerAndSession(ctx context.Context, rawID string) (string, uuid.UUID, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			"session id is not a valid uuid", map[string]string{"Field": "sessionId"})
	}
	return caller, id, nil
}
