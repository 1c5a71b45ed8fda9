// Package sqlite provides a SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/platform/storage/sqlitemigrate"
	"github.com/mcdev12/studysprint/go/internal/sqlutil"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// errNoSwap rolls back a multi-statement compare-and-swap.
var errNoSwap = errors.New("compare and swap did not match")

// Store persists sessions in SQLite.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, group_id, content_id, status, version, created_at, started_at, ended_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID.String(), session.GroupID, session.ContentID, string(session.Status), session.Version,
			sqlutil.ToMillis(session.CreatedAt),
			sqlutil.ToNullMillis(session.StartedAt), sqlutil.ToNullMillis(session.EndedAt),
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		for _, r := range session.Rounds {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO rounds (session_id, round_index, status, prompt, started_at, deadline_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				session.ID.String(), r.RoundIndex, string(r.Status), r.Prompt,
				sqlutil.ToNullMillis(r.StartedAt), sqlutil.ToNullMillis(r.DeadlineAt),
			); err != nil {
				return fmt.Errorf("insert round %d: %w", r.RoundIndex, err)
			}
		}
		for _, m := range session.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO members (session_id, user_id, assigned_role, group_role) VALUES (?, ?, ?, ?)`,
				session.ID.String(), m.UserID, string(m.AssignedRole), string(m.GroupRole),
			); err != nil {
				return fmt.Errorf("insert member %s: %w", m.UserID, err)
			}
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var out *models.Session
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
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
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx,
			`UPDATE sessions SET status = ?, started_at = ?, version = version + 2
			 WHERE id = ? AND status = ? RETURNING version`,
			string(models.SessionStatusActive), sqlutil.ToMillis(start.At),
			start.SessionID.String(), string(models.SessionStatusCreated),
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return errNoSwap
		}
		if err != nil {
			return fmt.Errorf("activate session: %w", err)
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
	var out repository.SessionSwap
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		column := "started_at"
		if t.Next == models.SessionStatusEnded {
			column = "ended_at"
		}
		var version int64
		err := tx.QueryRowContext(ctx,
			`UPDATE sessions SET status = ?, `+column+` = ?, version = version + 1
			 WHERE id = ? AND status = ? RETURNING version`,
			string(t.Next), sqlutil.ToMillis(t.At), t.SessionID.String(), string(t.Expected),
		).Scan(&version)
		if err == nil {
			out = repository.SessionSwap{Status: t.Next, Version: version, Swapped: true}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("swap session status: %w", err)
		}
		var status string
		err = tx.QueryRowContext(ctx,
			`SELECT status, version FROM sessions WHERE id = ?`, t.SessionID.String(),
		).Scan(&status, &out.Version)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.SessionNotFound(t.SessionID)
		}
		if err != nil {
			return fmt.Errorf("read session status: %w", err)
		}
		out.Status = models.SessionStatus(status)
		return nil
	})
	if err != nil {
		return repository.SessionSwap{}, err
	}
	return out, nil
}

func (s *Store) SwapRoundStatus(ctx context.Context, t repository.RoundTransition) (repository.RoundSwap, error) {
	var out repository.RoundSwap
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
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
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rounds SET deadline_at = ? WHERE session_id = ? AND round_index = ? AND status = ?`,
			sqlutil.ToMillis(change.DeadlineAt), change.SessionID.String(), change.RoundIndex, string(change.Status),
		)
		if err != nil {
			return fmt.Errorf("swap round deadline: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("swap round deadline: %w", err)
		}
		r, err := getRound(ctx, tx, change.SessionID, change.RoundIndex)
		if err != nil {
			return err
		}
		version, err := currentVersion(ctx, tx, change.SessionID, n == 1)
		if err != nil {
			return err
		}
		out = repository.RoundSwap{Round: r, Version: version, Swapped: n == 1}
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
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rounds SET prompt = ? WHERE session_id = ? AND round_index = ?`,
			prompt, sessionID.String(), roundIndex,
		)
		if err != nil {
			return fmt.Errorf("update prompt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := ensureSession(ctx, tx, sessionID); err != nil {
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
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE members SET assigned_role = ? WHERE session_id = ? AND user_id = ?`,
			string(role), sessionID.String(), userID,
		)
		if err != nil {
			return fmt.Errorf("update member role: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := ensureSession(ctx, tx, sessionID); err != nil {
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
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getRound(ctx, tx, sub.SessionID, sub.RoundIndex); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submissions (id, session_id, round_index, user_id, kind, value, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sub.ID.String(), sub.SessionID.String(), sub.RoundIndex, sub.UserID,
			string(sub.Kind), sub.Value, sqlutil.ToMillis(sub.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		var err error
		version, err = currentVersion(ctx, tx, sub.SessionID, true)
		return err
	})
	return version, err
}

func (s *Store) AppendSharedCard(ctx context.Context, card models.SharedCard) (int64, error) {
	var version int64
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, card.SessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shared_cards (id, session_id, created_by, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			card.ID.String(), card.SessionID.String(), card.CreatedBy, card.Content, sqlutil.ToMillis(card.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert shared card: %w", err)
		}
		var err error
		version, err = currentVersion(ctx, tx, card.SessionID, true)
		return err
	})
	return version, err
}

func (s *Store) ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	cards := []models.SharedCard{}
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, sessionID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, created_by, content, created_at FROM shared_cards WHERE session_id = ? ORDER BY rowid`,
			sessionID.String(),
		)
		if err != nil {
			return fmt.Errorf("list shared cards: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id        string
				createdAt int64
				card      = models.SharedCard{SessionID: sessionID}
			)
			if err := rows.Scan(&id, &card.CreatedBy, &card.Content, &createdAt); err != nil {
				return fmt.Errorf("scan shared card: %w", err)
			}
			if card.ID, err = uuid.Parse(id); err != nil {
				return fmt.Errorf("parse shared card id: %w", err)
			}
			card.CreatedAt = sqlutil.FromMillis(createdAt)
			cards = append(cards, card)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *Store) ListSubmissions(ctx context.Context, sessionID uuid.UUID) ([]models.Submission, error) {
	subs := []models.Submission{}
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, sessionID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, round_index, user_id, kind, value, created_at FROM submissions
			 WHERE session_id = ? ORDER BY rowid`,
			sessionID.String(),
		)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id, kind  string
				createdAt int64
				sub       = models.Submission{SessionID: sessionID}
			)
			if err := rows.Scan(&id, &sub.RoundIndex, &sub.UserID, &kind, &sub.Value, &createdAt); err != nil {
				return fmt.Errorf("scan submission: %w", err)
			}
			if sub.ID, err = uuid.Parse(id); err != nil {
				return fmt.Errorf("parse submission id: %w", err)
			}
			sub.Kind = models.SubmissionKind(kind)
			sub.CreatedAt = sqlutil.FromMillis(createdAt)
			subs = append(subs, sub)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// swapRound applies t if the persisted status matches and returns the
// round as it stands afterwards.
func swapRound(ctx context.Context, tx *sql.Tx, t repository.RoundTransition) (models.Round, bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE rounds SET status = ?, started_at = ?, deadline_at = ?
		 WHERE session_id = ? AND round_index = ? AND status = ?`,
		string(t.Next), sqlutil.ToMillis(t.StartedAt), sqlutil.ToNullMillis(t.DeadlineAt),
		t.SessionID.String(), t.RoundIndex, string(t.Expected),
	)
	if err != nil {
		return models.Round{}, false, fmt.Errorf("swap round status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Round{}, false, fmt.Errorf("swap round status: %w", err)
	}
	r, err := getRound(ctx, tx, t.SessionID, t.RoundIndex)
	if err != nil {
		return models.Round{}, false, err
	}
	return r, n == 1, nil
}

// currentVersion bumps the version when bump is set and returns it.
func currentVersion(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, bump bool) (int64, error) {
	query := `SELECT version FROM sessions WHERE id = ?`
	if bump {
		query = `UPDATE sessions SET version = version + 1 WHERE id = ? RETURNING version`
	}
	var version int64
	err := tx.QueryRowContext(ctx, query, sessionID.String()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.SessionNotFound(sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("session version: %w", err)
	}
	return version, nil
}

func ensureSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	_, err := currentVersion(ctx, tx, sessionID, false)
	return err
}

func getSession(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Session, error) {
	var (
		status             string
		createdAt          int64
		startedAt, endedAt sql.NullInt64
		session            = &models.Session{ID: id}
	)
	err := tx.QueryRowContext(ctx,
		`SELECT group_id, content_id, status, version, created_at, started_at, ended_at FROM sessions WHERE id = ?`,
		id.String(),
	).Scan(&session.GroupID, &session.ContentID, &status, &session.Version, &createdAt, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.Status = models.SessionStatus(status)
	session.CreatedAt = sqlutil.FromMillis(createdAt)
	session.StartedAt = sqlutil.FromNullMillis(startedAt)
	session.EndedAt = sqlutil.FromNullMillis(endedAt)

	rows, err := tx.QueryContext(ctx,
		`SELECT round_index, status, prompt, started_at, deadline_at FROM rounds
		 WHERE session_id = ? ORDER BY round_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	for rows.Next() {
		r, err := scanRound(rows, id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		session.Rounds = append(session.Rounds, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}

	mrows, err := tx.QueryContext(ctx,
		`SELECT user_id, assigned_role, group_role FROM members WHERE session_id = ? ORDER BY rowid`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m models.Member
		var assigned, group string
		if err := mrows.Scan(&m.UserID, &assigned, &group); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.AssignedRole = models.AssignedRole(assigned)
		m.GroupRole = models.GroupRole(group)
		session.Members = append(session.Members, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return session, nil
}

func getRound(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, index int) (models.Round, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT round_index, status, prompt, started_at, deadline_at FROM rounds
		 WHERE session_id = ? AND round_index = ?`, sessionID.String(), index)
	r, err := scanRound(row, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		if serr := ensureSession(ctx, tx, sessionID); serr != nil {
			return models.Round{}, serr
		}
		return models.Round{}, repository.RoundNotFound(sessionID, index)
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner, sessionID uuid.UUID) (models.Round, error) {
	var (
		r                   = models.Round{SessionID: sessionID}
		status              string
		startedAt, deadline sql.NullInt64
	)
	if err := row.Scan(&r.RoundIndex, &status, &r.Prompt, &startedAt, &deadline); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan round: %w", err)
	}
	r.Status = models.RoundStatus(status)
	r.StartedAt = sqlutil.FromNullMillis(startedAt)
	r.DeadlineAt = sqlutil.FromNullMillis(deadline)
	return r, nil
}
