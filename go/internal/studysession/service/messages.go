package service

import (
	"github.com/mcdev12/studysprint/go/internal/models"
)

type CreateSessionRequest struct {
	GroupID    string          `json:"groupId"`
	ContentID  string          `json:"contentId"`
	RoundCount int             `json:"roundCount,omitempty"`
	Prompts    []string        `json:"prompts,omitempty"`
	Members    []models.Member `json:"members"`
}

type StartSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type EndSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type AssignRoleRequest struct {
	SessionID string              `json:"sessionId"`
	UserID    string              `json:"userId"`
	Role      models.AssignedRole `json:"role"`
}

// SessionResponse is returned by every RPC that changes session level state.
type SessionResponse struct {
	Session *models.Session `json:"session"`
}

// AdvanceRoundRequest moves one round to To. Expected is the status the
// caller last saw; leave it empty to advance from whatever is persisted, in
// which case asking for a phase the round already reached is a conflict.
type AdvanceRoundRequest struct {
	SessionID  string             `json:"sessionId"`
	RoundIndex int                `json:"roundIndex"`
	To         models.RoundStatus `json:"toStatus"`
	Expected   models.RoundStatus `json:"expected,omitempty"`
}

type UpdatePromptRequest struct {
	SessionID  string `json:"sessionId"`
	RoundIndex int    `json:"roundIndex"`
	Prompt     string `json:"prompt"`
}

type ExtendDeadlineRequest struct {
	SessionID    string `json:"sessionId"`
	RoundIndex   int    `json:"roundIndex"`
	ExtraSeconds int64  `json:"extraSeconds"`
}

type RoundResponse struct {
	Round models.Round `json:"round"`
}

type SubmitVoteRequest struct {
	SessionID  string `json:"sessionId"`
	RoundIndex int    `json:"roundIndex"`
	Vote       string `json:"vote"`
}

type SubmitRevoteRequest struct {
	SessionID  string `json:"sessionId"`
	RoundIndex int    `json:"roundIndex"`
	Vote       string `json:"vote"`
}

type SubmitExplanationRequest struct {
	SessionID  string `json:"sessionId"`
	RoundIndex int    `json:"roundIndex"`
	Text       string `json:"text"`
}

type SubmissionResponse struct {
	Submission models.Submission `json:"submission"`
}

type CreateSharedCardRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type CreateSharedCardResponse struct {
	Card models.SharedCard `json:"card"`
}

type GetSharedCardsRequest struct {
	SessionID string `json:"sessionId"`
}

type GetSharedCardsResponse struct {
	Cards []models.SharedCard `json:"cards"`
}

type GetSessionSnapshotRequest struct {
	SessionID string `json:"sessionId"`
}

type GetSessionSnapshotResponse struct {
	Snapshot *models.SessionSnapshot `json:"snapshot"`
}
