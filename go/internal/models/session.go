package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a study session.
type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "CREATED"
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusEnded   SessionStatus = "ENDED"
)

// Session is one run of the guided study exercise for a group.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	GroupID   string        `json:"groupId"`
	ContentID string        `json:"contentId"`
	Status    SessionStatus `json:"status"`
	Rounds    []Round       `json:"rounds"`
	Members   []Member      `json:"members"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// Round returns the round with the given 1-based index.
func (s *Session) Round(index int) (*Round, bool) {
	if index < 1 || index > len(s.Rounds) {
		return nil, false
	}
	r := &s.Rounds[index-1]
	if r.RoundIndex != index {
		for i := range s.Rounds {
			if s.Rounds[i].RoundIndex == index {
				return &s.Rounds[i], true
			}
		}
		return nil, false
	}
	return r, true
}

// Member looks up a participant by user id.
func (s *Session) Member(userID string) (Member, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Rounds = make([]Round, len(s.Rounds))
	for i, r := range s.Rounds {
		out.Rounds[i] = r.Clone()
	}
	out.Members = append([]Member(nil), s.Members...)
	out.StartedAt = cloneTime(s.StartedAt)
	out.EndedAt = cloneTime(s.EndedAt)
	return &out
}

// SessionSnapshot is the authoritative state a client resyncs from.
type SessionSnapshot struct {
	Session     Session      `json:"session"`
	SharedCards []SharedCard `json:"sharedCards"`
	Submissions []Submission `json:"submissions"`
}

// Version returns the session version the snapshot was read at.
func (s *SessionSnapshot) Version() int64 {
	return s.Session.Version
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
