// Package postgres provides a Postgres-backed session store on pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
)

//go:embed schema.sql
var schema string

var errNoSwap = errors.New("compare and swap did not match")

// Store persists sessions in Postgres. Round transitions are a single
// conditional UPDATE so concurrent writers on any instance race safely.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool), nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO study_sessions (id, group_id, content_id, status, version, created_at, started_at, ended_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			session.ID, session.GroupID, session.ContentID, string(session.Status), session.Version,
			session.CreatedAt, session.StartedAt, session.EndedAt,
		); err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		batch := &pgx.Batch{}
		for _, r := range session.Rounds {
			batch.Queue(
				`INSERT INTO study_rounds (session_id, round_index, status, prompt, started_at, deadline_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				session.ID, r.RoundIndex, string(r.Status), r.Prompt, r.StartedAt, r.DeadlineAt,
			)
		}
		for _, m := range session.Members {
			batch.Queue(
				`INSERT INTO study_members (session_id, user_id, assigned_role, group_role) VALUES ($1, $2, $3, $4)`,
				session.ID, m.UserID, string(m.AssignedRole), string(m.GroupRole),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert rounds and members: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var out *models.Session
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var err error
		out, err = getSession(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) StartSession(ctx context.Context, start repository.SessionStart) (repository.StartSwap, error) {
	var out repository.StartSwap
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx,
			`UPDATE study_sessions SET status = $1, started_at = $2, version = version + 2
			 WHERE id = $3 AND status = $4 RETURNING version`,
			string(models.SessionStatusActive), start.At, start.SessionID, string(models.SessionStatusCreated),
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return errNoSwap
		}
		if err != nil {
			return fmt.Errorf("failed to activate session: %w", err)
		}
		r, swapped, err := swapRound(ctx, tx, start.First)
		if err != nil {
			return err
		}
		if !swapped {
			return errNoSwap
		}
		out = repository.StartSwap{Status: models.SessionStatusActive, Round: r, Version: version, Swapped: true}
		return nil
	})
	if errors.Is(err, errNoSwap) {
		current, gerr := s.GetSession(ctx, start.SessionID)
		if gerr != nil {
			return repository.StartSwap{}, gerr
		}
		r, ok := current.Round(start.First.RoundIndex)
		if !ok {
			return repository.StartSwap{}, repository.RoundNotFound(start.SessionID, start.First.RoundIndex)
		}
		return repository.StartSwap{Status: current.Status, Round: *r, Version: current.Version}, nil
	}
	if err != nil {
		return repository.StartSwap{}, err
	}
	return out, nil
}

func (s *Store) SwapSessionStatus(ctx context.Context, t repository.SessionTransition) (repository.SessionSwap, error) {
	column := "started_at"
	if t.Next == models.SessionStatusEnded {
		column = "ended_at"
	}
	var version int64
	err := s.pool.QueryRow(ctx,
		`UPDATE study_sessions SET status = $1, `+column+` = $2, version = version + 1
		 WHERE id = $3 AND status = $4 RETURNING version`,
		string(t.Next), t.At, t.SessionID, string(t.Expected),
	).Scan(&version)
	if err == nil {
		return repository.SessionSwap{Status: t.Next, Version: version, Swapped: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.SessionSwap{}, fmt.Errorf("failed to swap session status: %w", err)
	}

	var status string
	err = s.pool.QueryRow(ctx, `SELECT status, version FROM study_sessions WHERE id = $1`, t.SessionID).
		Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.SessionSwap{}, repository.SessionNotFound(t.SessionID)
	}
	if err != nil {
		return repository.SessionSwap{}, fmt.Errorf("failed to read session status: %w", err)
	}
	return repository.SessionSwap{Status: models.SessionStatus(status), Version: version}, nil
}

func (s *Store) SwapRoundStatus(ctx context.Context, t repository.RoundTransition) (repository.RoundSwap, error) {
	var out repository.RoundSwap
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		r, swapped, err := swapRound(ctx, tx, t)
		if err != nil {
			return err
		}
		version, err := currentVersion(ctx, tx, t.SessionID, swapped)
		if err != nil {
			return err
		}
		out = repository.RoundSwap{Round: r, Version: version, Swapped: swapped}
		return nil
	})
	if err != nil {
		return repository.RoundSwap{}, err
	}
	return out, nil
}

func (s *Store) SwapRoundDeadline(ctx context.Context, change repository.DeadlineChange) (repository.RoundSwap, error) {
	var out repository.RoundSwap
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE study_rounds SET deadline_at = $1 WHERE session_id = $2 AND round_index = $3 AND status = $4`,
			change.DeadlineAt, change.SessionID, change.RoundIndex, string(change.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to swap round deadline: %w", err)
		}
		swapped := tag.RowsAffected() == 1
		r, err := getRound(ctx, tx, change.SessionID, change.RoundIndex)
		if err != nil {
			return err
		}
		version, err := currentVersion(ctx, tx, change.SessionID, swapped)
		if err != nil {
			return err
		}
		out = repository.RoundSwap{Round: r, Version: version, Swapped: swapped}
		return nil
	})
	if err != nil {
		return repository.RoundSwap{}, err
	}
	return out, nil
}

func (s *Store) UpdateRoundPrompt(ctx context.Context, sessionID uuid.UUID, roundIndex int, prompt string) (models.Round, int64, error) {
	var (
		r       models.Round
		version int64
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE study_rounds SET prompt = $1 WHERE session_id = $2 AND round_index = $3`,
			prompt, sessionID, roundIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to update prompt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := currentVersion(ctx, tx, sessionID, false); err != nil {
				return err
			}
			return repository.RoundNotFound(sessionID, roundIndex)
		}
		if r, err = getRound(ctx, tx, sessionID, roundIndex); err != nil {
			return err
		}
		version, err = currentVersion(ctx, tx, sessionID, true)
		return err
	})
	if err != nil {
		return models.Round{}, 0, err
	}
	return r, version, nil
}

func (s *Store) UpdateMemberRole(ctx context.Context, sessionID uuid.UUID, userID string, role models.AssignedRole) (int64, error) {
	var version int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE study_members SET assigned_role = $1 WHERE session_id = $2 AND user_id = $3`,
			string(role), sessionID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := currentVersion(ctx, tx, sessionID, false); err != nil {
				return err
			}
			return repository.MemberNotFound(sessionID, userID)
		}
		version, err = currentVersion(ctx, tx, sessionID, true)
		return err
	})
	return version, err
}

func (s *Store) AppendSubmission(ctx context.Context, sub models.Submission) (int64, error) {
	var version int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := getRound(ctx, tx, sub.SessionID, sub.RoundIndex); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO study_submissions (id, session_id, round_index, user_id, kind, value, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sub.ID, sub.SessionID, sub.RoundIndex, sub.UserID, string(sub.Kind), sub.Value, sub.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert submission: %w", err)
		}
		var err error
		version, err = currentVersion(ctx, tx, sub.SessionID, true)
		return err
	})
	return version, err
}

func (s *Store) AppendSharedCard(ctx context.Context, card models.SharedCard) (int64, error) {
	var version int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := currentVersion(ctx, tx, card.SessionID, false); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO study_shared_cards (id, session_id, created_by, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			card.ID, card.SessionID, card.CreatedBy, card.Content, card.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert shared card: %w", err)
		}
		var err error
		version, err = currentVersion(ctx, tx, card.SessionID, true)
		return err
	})
	return version, err
}

func (s *Store) ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	if _, err := currentVersion(ctx, s.pool, sessionID, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_by, content, created_at FROM study_shared_cards WHERE session_id = $1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SharedCard, error) {
		card := models.SharedCard{SessionID: sessionID}
		err := row.Scan(&card.ID, &card.CreatedBy, &card.Content, &card.CreatedAt)
		return card, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan shared cards: %w", err)
	}
	return append([]models.SharedCard{}, cards...), nil
}

func (s *Store) ListSubmissions(ctx context.Context, sessionID uuid.UUID) ([]models.Submission, error) {
	if _, err := currentVersion(ctx, s.pool, sessionID, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, round_index, user_id, kind, value, created_at FROM study_submissions
		 WHERE session_id = $1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Submission, error) {
		var kind string
		sub := models.Submission{SessionID: sessionID}
		err := row.Scan(&sub.ID, &sub.RoundIndex, &sub.UserID, &kind, &sub.Value, &sub.CreatedAt)
		sub.Kind = models.SubmissionKind(kind)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan submissions: %w", err)
	}
	return append([]models.Submission{}, subs...), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func swapRound(ctx context.Context, tx pgx.Tx, t repository.RoundTransition) (models.Round, bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE study_rounds SET status = $1, started_at = $2, deadline_at = $3
		 WHERE session_id = $4 AND round_index = $5 AND status = $6`,
		string(t.Next), t.StartedAt, t.DeadlineAt, t.SessionID, t.RoundIndex, string(t.Expected),
	)
	if err != nil {
		return models.Round{}, false, fmt.Errorf("failed to swap round status: %w", err)
	}
	r, err := getRound(ctx, tx, t.SessionID, t.RoundIndex)
	if err != nil {
		return models.Round{}, false, err
	}
	return r, tag.RowsAffected() == 1, nil
}

func currentVersion(ctx context.Context, q querier, sessionID uuid.UUID, bump bool) (int64, error) {
	query := `SELECT version FROM study_sessions WHERE id = $1`
	if bump {
		query = `UPDATE study_sessions SET version = version + 1 WHERE id = $1 RETURNING version`
	}
	var version int64
	err := q.QueryRow(ctx, query, sessionID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.SessionNotFound(sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session version: %w", err)
	}
	return version, nil
}

func getSession(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Session, error) {
	var status string
	session := &models.Session{ID: id}
	err := tx.QueryRow(ctx,
		`SELECT group_id, content_id, status, version, created_at, started_at, ended_at
		 FROM study_sessions WHERE id = $1`, id,
	).Scan(&session.GroupID, &session.ContentID, &status, &session.Version,
		&session.CreatedAt, &session.StartedAt, &session.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Status = models.SessionStatus(status)
	session.CreatedAt = session.CreatedAt.UTC()
	session.StartedAt = utc(session.StartedAt)
	session.EndedAt = utc(session.EndedAt)

	rows, err := tx.Query(ctx,
		`SELECT round_index, status, prompt, started_at, deadline_at FROM study_rounds
		 WHERE session_id = $1 ORDER BY round_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	session.Rounds, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Round, error) {
		return scanRound(row, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rounds: %w", err)
	}

	rows, err = tx.Query(ctx,
		`SELECT user_id, assigned_role, group_role FROM study_members WHERE session_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	session.Members, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Member, error) {
		var m models.Member
		var assigned, group string
		err := row.Scan(&m.UserID, &assigned, &group)
		m.AssignedRole = models.AssignedRole(assigned)
		m.GroupRole = models.GroupRole(group)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	return session, nil
}

func getRound(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, index int) (models.Round, error) {
	row := tx.QueryRow(ctx,
		`SELECT round_index, status, prompt, started_at, deadline_at FROM study_rounds
		 WHERE session_id = $1 AND round_index = $2`, sessionID, index)
	r, err := scanRound(row, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, verr := currentVersion(ctx, tx, sessionID, false); verr != nil {
			return models.Round{}, verr
		}
		return models.Round{}, repository.RoundNotFound(sessionID, index)
	}
	if err != nil {
		return models.Round{}, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

func scanRound(row pgx.Row, sessionID uuid.UUID) (models.Round, error) {
	var status string
	r := models.Round{SessionID: sessionID}
	if err := row.Scan(&r.RoundIndex, &status, &r.Prompt, &r.StartedAt, &r.DeadlineAt); err != nil {
		return r, err
	}
	r.Status = models.RoundStatus(status)
	r.StartedAt = utc(r.StartedAt)
	r.DeadlineAt = utc(r.DeadlineAt)
	return r, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
