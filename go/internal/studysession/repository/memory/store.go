// Package memory is an in-process Store used by tests and single-node
// development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
)

type record struct {
	mu          sync.Mutex
	session     models.Session
	cards       []models.SharedCard
	submissions []models.Submission
}

// Store keeps sessions in a map. mu guards the map only; each record has
// its own lock so sessions never wait on each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*record
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*record)}
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &record{session: *session.Clone()}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.session.Clone(), nil
}

func (s *Store) StartSession(ctx context.Context, start repository.SessionStart) (repository.StartSwap, error) {
	if err := ctx.Err(); err != nil {
		return repository.StartSwap{}, err
	}
	rec, err := s.lookup(start.SessionID)
	if err != nil {
		return repository.StartSwap{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r, ok := rec.session.Round(start.First.RoundIndex)
	if !ok {
		return repository.StartSwap{}, repository.RoundNotFound(start.SessionID, start.First.RoundIndex)
	}
	if rec.session.Status != models.SessionStatusCreated || r.Status != start.First.Expected {
		return repository.StartSwap{
			Status:  rec.session.Status,
			Round:   r.Clone(),
			Version: rec.session.Version,
		}, nil
	}

	at := start.At
	rec.session.Status = models.SessionStatusActive
	rec.session.StartedAt = &at
	applyTransition(r, start.First)
	rec.session.Version += 2
	return repository.StartSwap{
		Status:  rec.session.Status,
		Round:   r.Clone(),
		Version: rec.session.Version,
		Swapped: true,
	}, nil
}

func (s *Store) SwapSessionStatus(ctx context.Context, t repository.SessionTransition) (repository.SessionSwap, error) {
	if err := ctx.Err(); err != nil {
		return repository.SessionSwap{}, err
	}
	rec, err := s.lookup(t.SessionID)
	if err != nil {
		return repository.SessionSwap{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.session.Status != t.Expected {
		return repository.SessionSwap{Status: rec.session.Status, Version: rec.session.Version}, nil
	}
	at := t.At
	rec.session.Status = t.Next
	switch t.Next {
	case models.SessionStatusActive:
		rec.session.StartedAt = &at
	case models.SessionStatusEnded:
		rec.session.EndedAt = &at
	}
	rec.session.Version++
	return repository.SessionSwap{Status: t.Next, Version: rec.session.Version, Swapped: true}, nil
}

func (s *Store) SwapRoundStatus(ctx context.Context, t repository.RoundTransition) (repository.RoundSwap, error) {
	if err := ctx.Err(); err != nil {
		return repository.RoundSwap{}, err
	}
	rec, err := s.lookup(t.SessionID)
	if err != nil {
		return repository.RoundSwap{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r, err := rec.round(t.RoundIndex)
	if err != nil {
		return repository.RoundSwap{}, err
	}
	if r.Status != t.Expected {
		return repository.RoundSwap{Round: r.Clone(), Version: rec.session.Version}, nil
	}
	applyTransition(r, t)
	rec.session.Version++
	return repository.RoundSwap{Round: r.Clone(), Version: rec.session.Version, Swapped: true}, nil
}

func (s *Store) SwapRoundDeadline(ctx context.Context, change repository.DeadlineChange) (repository.RoundSwap, error) {
	if err := ctx.Err(); err != nil {
		return repository.RoundSwap{}, err
	}
	rec, err := s.lookup(change.SessionID)
	if err != nil {
		return repository.RoundSwap{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r, err := rec.round(change.RoundIndex)
	if err != nil {
		return repository.RoundSwap{}, err
	}
	if r.Status != change.Status {
		return repository.RoundSwap{Round: r.Clone(), Version: rec.session.Version}, nil
	}
	deadline := change.DeadlineAt
	r.DeadlineAt = &deadline
	rec.session.Version++
	return repository.RoundSwap{Round: r.Clone(), Version: rec.session.Version, Swapped: true}, nil
}

func (s *Store) UpdateRoundPrompt(ctx context.Context, sessionID uuid.UUID, roundIndex int, prompt string) (models.Round, int64, error) {
	if err := ctx.Err(); err != nil {
		return models.Round{}, 0, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return models.Round{}, 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r, err := rec.round(roundIndex)
	if err != nil {
		return models.Round{}, 0, err
	}
	r.Prompt = prompt
	rec.session.Version++
	return r.Clone(), rec.session.Version, nil
}

func (s *Store) UpdateMemberRole(ctx context.Context, sessionID uuid.UUID, userID string, role models.AssignedRole) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := range rec.session.Members {
		if rec.session.Members[i].UserID == userID {
			rec.session.Members[i].AssignedRole = role
			rec.session.Version++
			return rec.session.Version, nil
		}
	}
	return 0, repository.MemberNotFound(sessionID, userID)
}

func (s *Store) AppendSubmission(ctx context.Context, sub models.Submission) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := s.lookup(sub.SessionID)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, err := rec.round(sub.RoundIndex); err != nil {
		return 0, err
	}
	rec.submissions = append(rec.submissions, sub)
	rec.session.Version++
	return rec.session.Version, nil
}

func (s *Store) AppendSharedCard(ctx context.Context, card models.SharedCard) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := s.lookup(card.SessionID)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.cards = append(rec.cards, card)
	rec.session.Version++
	return rec.session.Version, nil
}

func (s *Store) ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]models.SharedCard{}, rec.cards...), nil
}

func (s *Store) ListSubmissions(ctx context.Context, sessionID uuid.UUID) ([]models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]models.Submission{}, rec.submissions...), nil
}

func (s *Store) lookup(id uuid.UUID) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, repository.SessionNotFound(id)
	}
	return rec, nil
}

// round must be called with rec.mu held.
func (rec *record) round(index int) (*models.Round, error) {
	r, ok := rec.session.Round(index)
	if !ok {
		return nil, repository.RoundNotFound(rec.session.ID, index)
	}
	return r, nil
}

func applyTransition(r *models.Round, t repository.RoundTransition) {
	started := t.StartedAt
	r.Status = t.Next
	r.StartedAt = &started
	r.DeadlineAt = nil
	if t.DeadlineAt != nil {
		d := *t.DeadlineAt
		r.DeadlineAt = &d
	}
}
