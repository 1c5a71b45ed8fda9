package client

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/round"
)

var (
	// ErrNotSynced is returned when events are applied before any snapshot.
	ErrNotSynced = errors.New("session view has no snapshot")
)

// GapError reports a committed event that skipped versions the view has
// not seen. The view must be resynced from a snapshot.
type GapError struct {
	Have int64
	Got  int64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("version gap: have %d, got %d", e.Have, e.Got)
}

// Proposal is a round transition the local user asked for that the server
// has not confirmed yet.
type Proposal struct {
	RoundIndex int
	From       models.RoundStatus
	To         models.RoundStatus
}

// SessionView is the client's copy of one session. Confirmed state only
// changes through Replace and Apply; proposals are kept on the side and
// overlaid when reading.
type SessionView struct {
	mu          sync.RWMutex
	userID      string
	session     *models.Session
	members     models.MemberIndex
	cards       []models.SharedCard
	submissions []models.Submission
	online      map[string]struct{}
	pending     map[int]Proposal
	synced      bool
}

// NewSessionView creates an empty view for userID.
func NewSessionView(userID string) *SessionView {
	return &SessionView{
		userID:  userID,
		online:  make(map[string]struct{}),
		pending: make(map[int]Proposal),
	}
}

// Replace makes snapshot the confirmed state and drops every proposal.
func (v *SessionView) Replace(snapshot *models.SessionSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.session = snapshot.Session.Clone()
	v.members = models.IndexMembers(v.session.Members)
	v.cards = append([]models.SharedCard(nil), snapshot.SharedCards...)
	v.submissions = append([]models.Submission(nil), snapshot.Submissions...)
	v.pending = make(map[int]Proposal)
	v.synced = true
}

// Invalidate marks the view stale after the realtime channel dropped.
// Confirmed state stays readable but CanMutate reports false until the
// next Replace.
func (v *SessionView) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.synced = false
	v.online = make(map[string]struct{})
}

// CanMutate reports whether the view holds a snapshot taken after the
// current connection was established.
func (v *SessionView) CanMutate() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced && v.session != nil && v.session.Status != models.SessionStatusEnded
}

// Version returns the confirmed session version, 0 before any snapshot.
func (v *SessionView) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return 0
	}
	return v.session.Version
}

// Apply folds a realtime event into the view. It reports whether the
// event changed anything. Committed events at or below the current
// version are ignored; one that skips a version returns a *GapError.
func (v *SessionView) Apply(e *events.Event) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !e.Type.Committed() {
		return v.applyPresence(e)
	}
	if !v.synced || v.session == nil {
		return false, ErrNotSynced
	}
	if e.Version <= v.session.Version {
		return false, nil
	}
	if e.Version != v.session.Version+1 {
		return false, &GapError{Have: v.session.Version, Got: e.Version}
	}

	payload, err := events.ParsePayload(e)
	if err != nil {
		return false, err
	}
	switch p := payload.(type) {
	case events.SessionPayload:
		v.session = p.Session.Clone()
		v.members = models.IndexMembers(v.session.Members)

	case events.RoundPayload:
		r, ok := v.session.Round(p.Round.RoundIndex)
		if !ok {
			return false, &GapError{Have: v.session.Version, Got: e.Version}
		}
		*r = p.Round.Clone()
		delete(v.pending, p.Round.RoundIndex)

	case events.SubmissionPayload:
		v.submissions = append(v.submissions, submissionFromEvent(e, p))

	case events.SharedCardPayload:
		v.cards = append(v.cards, p.Card)
	}
	v.session.Version = e.Version
	return true, nil
}

func (v *SessionView) applyPresence(e *events.Event) (bool, error) {
	if e.Type != events.TypeUserJoined && e.Type != events.TypeUserLeft {
		return false, nil
	}
	payload, err := events.ParsePayload(e)
	if err != nil {
		return false, err
	}
	p, ok := payload.(events.PresencePayload)
	if !ok {
		return false, nil
	}
	if e.Type == events.TypeUserJoined {
		v.online[p.UserID] = struct{}{}
	} else {
		delete(v.online, p.UserID)
	}
	return true, nil
}

// Propose records an optimistic transition for roundIndex after checking
// it locally. Validation and authorization failures leave the view
// untouched.
func (v *SessionView) Propose(roundIndex int, to models.RoundStatus) (Proposal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.synced || v.session == nil {
		return Proposal{}, apperrors.New(apperrors.CodeSnapshotUnavailable, "session is not synced")
	}
	if v.session.Status != models.SessionStatusActive {
		return Proposal{}, apperrors.New(apperrors.CodeSessionNotActive, "session is not active")
	}
	r, ok := v.session.Round(roundIndex)
	if !ok {
		return Proposal{}, apperrors.New(apperrors.CodeRoundNotFound, "round not found")
	}
	if _, busy := v.pending[roundIndex]; busy {
		return Proposal{}, apperrors.New(apperrors.CodeRoundConflict, "a change to this round is already pending")
	}
	if err := round.ValidateTransition(r.Status, to, v.members.Lookup(v.userID)); err != nil {
		return Proposal{}, err
	}

	p := Proposal{RoundIndex: roundIndex, From: r.Status, To: to}
	v.pending[roundIndex] = p
	return p, nil
}

// Reject drops a proposal the server refused.
func (v *SessionView) Reject(p Proposal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.pending[p.RoundIndex]; ok && cur == p {
		delete(v.pending, p.RoundIndex)
	}
}

// Pending returns the proposal waiting on roundIndex, if any.
func (v *SessionView) Pending(roundIndex int) (Proposal, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.pending[roundIndex]
	return p, ok
}

// Session returns a copy of the session as the user should see it:
// confirmed state with pending proposals applied on top.
func (v *SessionView) Session() *models.Session {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return nil
	}
	out := v.session.Clone()
	for idx, p := range v.pending {
		if r, ok := out.Round(idx); ok {
			r.Status = p.To
		}
	}
	return out
}

// Confirmed returns a copy of the server-confirmed session.
func (v *SessionView) Confirmed() *models.Session {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session.Clone()
}

func (v *SessionView) SharedCards() []models.SharedCard {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.SharedCard(nil), v.cards...)
}

func (v *SessionView) Submissions() []models.Submission {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.Submission(nil), v.submissions...)
}

// Online returns the users with a live connection, sorted.
func (v *SessionView) Online() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.online))
	for id := range v.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var submissionKinds = map[events.Type]models.SubmissionKind{
	events.TypeVoteSubmitted:        models.SubmissionKindVote,
	events.TypeRevoteSubmitted:      models.SubmissionKindRevote,
	events.TypeExplanationSubmitted: models.SubmissionKindExplanation,
}

func submissionFromEvent(e *events.Event, p events.SubmissionPayload) models.Submission {
	kind := submissionKinds[e.Type]
	value := p.Vote
	if kind == models.SubmissionKindExplanation {
		value = p.Text
	}
	id, _ := uuid.Parse(p.SubmissionID)
	sessionID, _ := uuid.Parse(e.SessionID)
	return models.Submission{
		ID:         id,
		SessionID:  sessionID,
		RoundIndex: p.RoundIndex,
		UserID:     p.UserID,
		Kind:       kind,
		Value:      value,
		CreatedAt:  e.Timestamp,
	}
}
