package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
)

// SessionClient calls SessionService over connect with the JSON codec.
// Errors come back as *apperrors.Error so conflicts keep their actual
// round.
type SessionClient struct {
	createSession      *connect.Client[CreateSessionRequest, SessionResponse]
	startSession       *connect.Client[StartSessionRequest, SessionResponse]
	endSession         *connect.Client[EndSessionRequest, SessionResponse]
	assignRole         *connect.Client[AssignRoleRequest, SessionResponse]
	advanceRound       *connect.Client[AdvanceRoundRequest, RoundResponse]
	updatePrompt       *connect.Client[UpdatePromptRequest, RoundResponse]
	extendDeadline     *connect.Client[ExtendDeadlineRequest, RoundResponse]
	submitVote         *connect.Client[SubmitVoteRequest, SubmissionResponse]
	submitRevote       *connect.Client[SubmitRevoteRequest, SubmissionResponse]
	submitExplanation  *connect.Client[SubmitExplanationRequest, SubmissionResponse]
	createSharedCard   *connect.Client[CreateSharedCardRequest, CreateSharedCardResponse]
	getSharedCards     *connect.Client[GetSharedCardsRequest, GetSharedCardsResponse]
	getSessionSnapshot *connect.Client[GetSessionSnapshotRequest, GetSessionSnapshotResponse]
}

// NewSessionClient builds a client for the service mounted at baseURL.
func NewSessionClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SessionClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &SessionClient{
		createSession:      connect.NewClient[CreateSessionRequest, SessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		startSession:       connect.NewClient[StartSessionRequest, SessionResponse](httpClient, baseURL+StartSessionProcedure, opts...),
		endSession:         connect.NewClient[EndSessionRequest, SessionResponse](httpClient, baseURL+EndSessionProcedure, opts...),
		assignRole:         connect.NewClient[AssignRoleRequest, SessionResponse](httpClient, baseURL+AssignRoleProcedure, opts...),
		advanceRound:       connect.NewClient[AdvanceRoundRequest, RoundResponse](httpClient, baseURL+AdvanceRoundProcedure, opts...),
		updatePrompt:       connect.NewClient[UpdatePromptRequest, RoundResponse](httpClient, baseURL+UpdatePromptProcedure, opts...),
		extendDeadline:     connect.NewClient[ExtendDeadlineRequest, RoundResponse](httpClient, baseURL+ExtendDeadlineProcedure, opts...),
		submitVote:         connect.NewClient[SubmitVoteRequest, SubmissionResponse](httpClient, baseURL+SubmitVoteProcedure, opts...),
		submitRevote:       connect.NewClient[SubmitRevoteRequest, SubmissionResponse](httpClient, baseURL+SubmitRevoteProcedure, opts...),
		submitExplanation:  connect.NewClient[SubmitExplanationRequest, SubmissionResponse](httpClient, baseURL+SubmitExplanationProcedure, opts...),
		createSharedCard:   connect.NewClient[CreateSharedCardRequest, CreateSharedCardResponse](httpClient, baseURL+CreateSharedCardProcedure, opts...),
		getSharedCards:     connect.NewClient[GetSharedCardsRequest, GetSharedCardsResponse](httpClient, baseURL+GetSharedCardsProcedure, opts...),
		getSessionSnapshot: connect.NewClient[GetSessionSnapshotRequest, GetSessionSnapshotResponse](httpClient, baseURL+GetSessionSnapshotProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, apperrors.FromConnectError(err)
	}
	return res.Msg, nil
}

func (c *SessionClient) CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	res, err := call(ctx, c.createSession, req)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (c *SessionClient) StartSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	res, err := call(ctx, c.startSession, &StartSessionRequest{SessionID: sessionID.String()})
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (c *SessionClient) EndSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	res, err := call(ctx, c.endSession, &EndSessionRequest{SessionID: sessionID.String()})
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (c *SessionClient) AssignRole(ctx context.Context, sessionID uuid.UUID, userID string, role models.AssignedRole) (*models.Session, error) {
	res, err := call(ctx, c.assignRole, &AssignRoleRequest{SessionID: sessionID.String(), UserID: userID, Role: role})
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

// AdvanceRound asks the server to move a round from expected to to. An
// empty expected advances from the persisted status.
func (c *SessionClient) AdvanceRound(ctx context.Context, sessionID uuid.UUID, roundIndex int, expected, to models.RoundStatus) (models.Round, error) {
	res, err := call(ctx, c.advanceRound, &AdvanceRoundRequest{
		SessionID:  sessionID.String(),
		RoundIndex: roundIndex,
		To:         to,
		Expected:   expected,
	})
	if err != nil {
		return models.Round{}, err
	}
	return res.Round, nil
}

func (c *SessionClient) UpdatePrompt(ctx context.Context, sessionID uuid.UUID, roundIndex int, prompt string) (models.Round, error) {
	res, err := call(ctx, c.updatePrompt, &UpdatePromptRequest{SessionID: sessionID.String(), RoundIndex: roundIndex, Prompt: prompt})
	if err != nil {
		return models.Round{}, err
	}
	return res.Round, nil
}

// ExtendDeadline rounds extra down to whole seconds.
func (c *SessionClient) ExtendDeadline(ctx context.Context, sessionID uuid.UUID, roundIndex int, extra time.Duration) (models.Round, error) {
	res, err := call(ctx, c.extendDeadline, &ExtendDeadlineRequest{
		SessionID:    sessionID.String(),
		RoundIndex:   roundIndex,
		ExtraSeconds: int64(extra / time.Second),
	})
	if err != nil {
		return models.Round{}, err
	}
	return res.Round, nil
}

func (c *SessionClient) SubmitVote(ctx context.Context, sessionID uuid.UUID, roundIndex int, vote string) (models.Submission, error) {
	res, err := call(ctx, c.submitVote, &SubmitVoteRequest{SessionID: sessionID.String(), RoundIndex: roundIndex, Vote: vote})
	if err != nil {
		return models.Submission{}, err
	}
	return res.Submission, nil
}

func (c *SessionClient) SubmitRevote(ctx context.Context, sessionID uuid.UUID, roundIndex int, vote string) (models.Submission, error) {
	res, err := call(ctx, c.submitRevote, &SubmitRevoteRequest{SessionID: sessionID.String(), RoundIndex: roundIndex, Vote: vote})
	if err != nil {
		return models.Submission{}, err
	}
	return res.Submission, nil
}

func (c *SessionClient) SubmitExplanation(ctx context.Context, sessionID uuid.UUID, roundIndex int, text string) (models.Submission, error) {
	res, err := call(ctx, c.submitExplanation, &SubmitExplanationRequest{SessionID: sessionID.String(), RoundIndex: roundIndex, Text: text})
	if err != nil {
		return models.Submission{}, err
	}
	return res.Submission, nil
}

func (c *SessionClient) CreateSharedCard(ctx context.Context, sessionID uuid.UUID, content string) (models.SharedCard, error) {
	res, err := call(ctx, c.createSharedCard, &CreateSharedCardRequest{SessionID: sessionID.String(), Content: content})
	if err != nil {
		return models.SharedCard{}, err
	}
	return res.Card, nil
}

func (c *SessionClient) GetSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	res, err := call(ctx, c.getSharedCards, &GetSharedCardsRequest{SessionID: sessionID.String()})
	if err != nil {
		return nil, err
	}
	return res.Cards, nil
}

func (c *SessionClient) GetSessionSnapshot(ctx context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error) {
	res, err := call(ctx, c.getSessionSnapshot, &GetSessionSnapshotRequest{SessionID: sessionID.String()})
	if err != nil {
		return nil, err
	}
	return res.Snapshot, nil
}
