package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/guard"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/memory"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.Event(nil), r.events...)
}

func (r *recorder) types() []events.Type {
	var out []events.Type
	for _, e := range r.snapshot() {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	coord *Coordinator
	store *memory.Store
	clock *clockwork.FakeClock
	pub   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(now)
	pub := &recorder{}
	coord := New(store, guard.New(store, clock, guard.DefaultDurations()), pub, clock, Config{})
	t.Cleanup(coord.Close)
	return &fixture{coord: coord, store: store, clock: clock, pub: pub}
}

func members() []models.Member {
	return []models.Member{
		{UserID: "fac", AssignedRole: models.AssignedRoleFacilitator, GroupRole: models.GroupRoleMember},
		{UserID: "tk", AssignedRole: models.AssignedRoleTimekeeper, GroupRole: models.GroupRoleMember},
		{UserID: "owner", AssignedRole: models.AssignedRoleScribe, GroupRole: models.GroupRoleOwner},
		{UserID: "m1", AssignedRole: models.AssignedRoleClarifier, GroupRole: models.GroupRoleMember},
	}
}

func (f *fixture) create(t *testing.T, rounds int) *models.Session {
	t.Helper()
	s, err := f.coord.CreateSession(t.Context(), "owner", CreateSessionParams{
		GroupID:    "group-1",
		ContentID:  "content-1",
		RoundCount: rounds,
		Prompts:    []string{"What is a monad?"},
		Members:    members(),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func (f *fixture) started(t *testing.T, rounds int) *models.Session {
	t.Helper()
	s := f.create(t, rounds)
	if _, err := f.coord.StartSession(t.Context(), s.ID, "fac"); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return s
}

func (f *fixture) advance(t *testing.T, id uuid.UUID, index int, from, to models.RoundStatus) models.Round {
	t.Helper()
	r, err := f.coord.AdvanceRound(t.Context(), AdvanceParams{
		SessionID: id, CallerID: "fac", RoundIndex: index, Expected: from, To: to,
	})
	if err != nil {
		t.Fatalf("AdvanceRound(%d %s->%s) error = %v", index, from, to, err)
	}
	return r
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("error code = %s want %s (err = %v)", got, want, err)
	}
}

func TestCreateSessionBuildsRounds(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 3)

	if s.Status != models.SessionStatusCreated || len(s.Rounds) != 3 {
		t.Fatalf("session = %s with %d rounds", s.Status, len(s.Rounds))
	}
	for i, r := range s.Rounds {
		if r.RoundIndex != i+1 || r.Status != models.RoundStatusCreated {
			t.Fatalf("round %d = %+v", i, r)
		}
	}
	if s.Rounds[0].Prompt != "What is a monad?" || s.Rounds[1].Prompt != "" {
		t.Fatalf("prompts = %q %q", s.Rounds[0].Prompt, s.Rounds[1].Prompt)
	}
	if len(f.pub.snapshot()) != 0 {
		t.Fatal("creating a session publishes nothing")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		params CreateSessionParams
		want   apperrors.Code
	}{
		{
			name:   "no rounds",
			caller: "owner",
			params: CreateSessionParams{GroupID: "g", ContentID: "c", Members: members()},
			want:   apperrors.CodeInvalidRoundCount,
		},
		{
			name:   "more prompts than rounds",
			caller: "owner",
			params: CreateSessionParams{GroupID: "g", ContentID: "c", RoundCount: 1, Prompts: []string{"a", "b"}, Members: members()},
			want:   apperrors.CodeInvalidRoundCount,
		},
		{
			name:   "unknown role",
			caller: "x",
			params: CreateSessionParams{GroupID: "g", ContentID: "c", RoundCount: 1, Members: []models.Member{
				{UserID: "x", AssignedRole: "JESTER", GroupRole: models.GroupRoleMember},
			}},
			want: apperrors.CodeInvalidRole,
		},
		{
			name:   "creator not a member",
			caller: "stranger",
			params: CreateSessionParams{GroupID: "g", ContentID: "c", RoundCount: 2, Members: members()},
			want:   apperrors.CodeNotMember,
		},
		{
			name:   "missing content",
			caller: "owner",
			params: CreateSessionParams{GroupID: "g", RoundCount: 2, Members: members()},
			want:   apperrors.CodeInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.coord.CreateSession(t.Context(), tt.caller, tt.params)
			assertCode(t, err, tt.want)
		})
	}
}

func TestStartSessionPublishesInOrder(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 2)

	got, err := f.coord.StartSession(t.Context(), s.ID, "owner")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if got.Status != models.SessionStatusActive || got.Rounds[0].Status != models.RoundStatusVoting {
		t.Fatalf("started session = %s round1 %s", got.Status, got.Rounds[0].Status)
	}
	if got.Version != 2 {
		t.Fatalf("version = %d want 2", got.Version)
	}

	published := f.pub.snapshot()
	if len(published) != 2 {
		t.Fatalf("published %d events want 2", len(published))
	}
	if published[0].Type != events.TypeSessionStarted || published[0].Version != 1 {
		t.Fatalf("first event = %s v%d", published[0].Type, published[0].Version)
	}
	if published[1].Type != events.TypeRoundAdvanced || published[1].Version != 2 {
		t.Fatalf("second event = %s v%d", published[1].Type, published[1].Version)
	}

	_, err = f.coord.StartSession(t.Context(), s.ID, "owner")
	assertCode(t, err, apperrors.CodeSessionNotCreated)
}

func TestStartSessionRequiresControl(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 1)

	_, err := f.coord.StartSession(t.Context(), s.ID, "m1")
	assertCode(t, err, apperrors.CodeNotAuthorized)
	if len(f.pub.snapshot()) != 0 {
		t.Fatal("rejected start must publish nothing")
	}
}

func TestAdvanceRoundHappyPath(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 2)
	f.clock.Advance(time.Minute)

	r := f.advance(t, s.ID, 1, models.RoundStatusVoting, models.RoundStatusDiscussing)
	if r.Status != models.RoundStatusDiscussing {
		t.Fatalf("status = %s", r.Status)
	}
	if want := now.Add(time.Minute + 5*time.Minute); !r.DeadlineAt.Equal(want) {
		t.Fatalf("deadline = %v want %v", r.DeadlineAt, want)
	}
	last := f.pub.snapshot()[2]
	if last.Type != events.TypeRoundAdvanced || last.Version != 3 {
		t.Fatalf("event = %s v%d", last.Type, last.Version)
	}
}

func TestAdvanceRoundCheckOrder(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 2)
	active := f.started(t, 2)

	tests := []struct {
		name string
		p    AdvanceParams
		want apperrors.Code
	}{
		{
			name: "unknown session",
			p:    AdvanceParams{SessionID: uuid.New(), CallerID: "fac", RoundIndex: 1, To: models.RoundStatusDiscussing},
			want: apperrors.CodeSessionNotFound,
		},
		{
			name: "unknown round",
			p:    AdvanceParams{SessionID: active.ID, CallerID: "fac", RoundIndex: 7, To: models.RoundStatusDiscussing},
			want: apperrors.CodeRoundNotFound,
		},
		{
			name: "session not started",
			p:    AdvanceParams{SessionID: created.ID, CallerID: "fac", RoundIndex: 1, To: models.RoundStatusVoting},
			want: apperrors.CodeSessionNotActive,
		},
		{
			name: "invalid edge wins over missing role",
			p:    AdvanceParams{SessionID: active.ID, CallerID: "m1", RoundIndex: 1, To: models.RoundStatusDone},
			want: apperrors.CodeInvalidTransition,
		},
		{
			name: "valid edge without role",
			p:    AdvanceParams{SessionID: active.ID, CallerID: "m1", RoundIndex: 1, To: models.RoundStatusDiscussing},
			want: apperrors.CodeNotAuthorized,
		},
		{
			name: "non member",
			p:    AdvanceParams{SessionID: active.ID, CallerID: "stranger", RoundIndex: 1, To: models.RoundStatusDiscussing},
			want: apperrors.CodeNotAuthorized,
		},
		{
			name: "later round while earlier open",
			p:    AdvanceParams{SessionID: active.ID, CallerID: "fac", RoundIndex: 2, To: models.RoundStatusVoting},
			want: apperrors.CodePreviousRoundOpen,
		},
	}
	before := len(f.pub.snapshot())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.AdvanceRound(t.Context(), tt.p)
			assertCode(t, err, tt.want)
		})
	}
	if after := len(f.pub.snapshot()); after != before {
		t.Fatalf("rejected advances published %d events", after-before)
	}
}

func TestAdvanceRoundRace(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)
	before := len(f.pub.snapshot())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.coord.AdvanceRound(context.Background(), AdvanceParams{
				SessionID: s.ID, CallerID: "fac", RoundIndex: 1,
				Expected: models.RoundStatusVoting, To: models.RoundStatusDiscussing,
			})
		}()
	}
	wg.Wait()

	var conflict *apperrors.Error
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		e, ok := apperrors.As(err)
		if !ok || e.Kind() != apperrors.KindConflict {
			t.Fatalf("unexpected error %v", err)
		}
		conflict = e
	}
	if successes != 1 || conflict == nil {
		t.Fatalf("successes = %d conflict = %v", successes, conflict)
	}
	if conflict.ActualRound == nil || conflict.ActualRound.Status != models.RoundStatusDiscussing {
		t.Fatalf("conflict round = %+v", conflict.ActualRound)
	}
	if got := len(f.pub.snapshot()) - before; got != 1 {
		t.Fatalf("published %d round events want 1", got)
	}
}

func TestAdvanceRoundRaceWithoutExpected(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)
	before := len(f.pub.snapshot())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.coord.AdvanceRound(context.Background(), AdvanceParams{
				SessionID: s.ID, CallerID: "fac", RoundIndex: 1, To: models.RoundStatusDiscussing,
			})
		}()
	}
	wg.Wait()

	successes := 0
	var conflict *apperrors.Error
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		e, ok := apperrors.As(err)
		if !ok || e.Code != apperrors.CodeRoundConflict {
			t.Fatalf("error = %v want %s", err, apperrors.CodeRoundConflict)
		}
		conflict = e
	}
	if successes != 1 || conflict == nil {
		t.Fatalf("successes = %d conflict = %v", successes, conflict)
	}
	if conflict.ActualRound == nil || conflict.ActualRound.Status != models.RoundStatusDiscussing {
		t.Fatalf("conflict round = %+v", conflict.ActualRound)
	}
	if got := len(f.pub.snapshot()) - before; got != 1 {
		t.Fatalf("published %d round events want 1", got)
	}
}

func TestAdvanceRoundWithoutExpectedSkippingPhase(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)

	_, err := f.coord.AdvanceRound(t.Context(), AdvanceParams{
		SessionID: s.ID, CallerID: "fac", RoundIndex: 1, To: models.RoundStatusExplaining,
	})
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestFullRoundLifecycleOpensNextRound(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 2)

	f.advance(t, s.ID, 1, models.RoundStatusVoting, models.RoundStatusDiscussing)
	f.advance(t, s.ID, 1, models.RoundStatusDiscussing, models.RoundStatusRevoting)
	f.advance(t, s.ID, 1, models.RoundStatusRevoting, models.RoundStatusDiscussing)
	f.advance(t, s.ID, 1, models.RoundStatusDiscussing, models.RoundStatusExplaining)
	done := f.advance(t, s.ID, 1, models.RoundStatusExplaining, models.RoundStatusDone)
	if done.DeadlineAt != nil {
		t.Fatalf("done round keeps deadline %v", done.DeadlineAt)
	}
	second := f.advance(t, s.ID, 2, models.RoundStatusCreated, models.RoundStatusVoting)
	if second.Status != models.RoundStatusVoting {
		t.Fatalf("round 2 = %s", second.Status)
	}

	_, err := f.coord.AdvanceRound(t.Context(), AdvanceParams{
		SessionID: s.ID, CallerID: "fac", RoundIndex: 1, To: models.RoundStatusVoting,
	})
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestSubmissions(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)

	sub, err := f.coord.SubmitVote(t.Context(), s.ID, "m1", 1, "B")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if sub.Kind != models.SubmissionKindVote || sub.UserID != "m1" {
		t.Fatalf("submission = %+v", sub)
	}

	_, err = f.coord.SubmitRevote(t.Context(), s.ID, "m1", 1, "C")
	assertCode(t, err, apperrors.CodeRoundNotAccepting)
	_, err = f.coord.SubmitVote(t.Context(), s.ID, "stranger", 1, "B")
	assertCode(t, err, apperrors.CodeNotMember)
	_, err = f.coord.SubmitVote(t.Context(), s.ID, "m1", 1, "  ")
	assertCode(t, err, apperrors.CodeEmptyContent)

	f.advance(t, s.ID, 1, models.RoundStatusVoting, models.RoundStatusDiscussing)
	f.advance(t, s.ID, 1, models.RoundStatusDiscussing, models.RoundStatusExplaining)
	if _, err := f.coord.SubmitExplanation(t.Context(), s.ID, "tk", 1, "because"); err != nil {
		t.Fatalf("SubmitExplanation() error = %v", err)
	}

	snap, err := f.coord.Snapshot(t.Context(), s.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Submissions) != 2 {
		t.Fatalf("submissions = %d want 2", len(snap.Submissions))
	}
	if snap.Session.Rounds[0].Status != models.RoundStatusExplaining {
		t.Fatal("submissions must not change round status")
	}

	want := []events.Type{
		events.TypeSessionStarted, events.TypeRoundAdvanced, events.TypeVoteSubmitted,
		events.TypeRoundAdvanced, events.TypeRoundAdvanced, events.TypeExplanationSubmitted,
	}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v want %v", got, want)
		}
	}
}

func TestSharedCards(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 1)

	for _, content := range []string{"first", "second"} {
		if _, err := f.coord.CreateSharedCard(t.Context(), s.ID, "m1", content); err != nil {
			t.Fatalf("CreateSharedCard(%q) error = %v", content, err)
		}
	}
	_, err := f.coord.CreateSharedCard(t.Context(), s.ID, "stranger", "nope")
	assertCode(t, err, apperrors.CodeNotMember)

	cards, err := f.coord.ListSharedCards(t.Context(), s.ID)
	if err != nil {
		t.Fatalf("ListSharedCards() error = %v", err)
	}
	if len(cards) != 2 || cards[0].Content != "first" || cards[1].Content != "second" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 1)

	_, err := f.coord.EndSession(t.Context(), s.ID, "owner")
	assertCode(t, err, apperrors.CodeSessionNotActive)

	_, err = f.coord.StartSession(t.Context(), s.ID, "owner")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	_, err = f.coord.EndSession(t.Context(), s.ID, "m1")
	assertCode(t, err, apperrors.CodeNotAuthorized)

	ended, err := f.coord.EndSession(t.Context(), s.ID, "owner")
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if ended.Status != models.SessionStatusEnded || ended.EndedAt == nil {
		t.Fatalf("ended = %s %v", ended.Status, ended.EndedAt)
	}

	_, err = f.coord.SubmitVote(t.Context(), s.ID, "m1", 1, "A")
	assertCode(t, err, apperrors.CodeSessionEnded)
	_, err = f.coord.CreateSharedCard(t.Context(), s.ID, "m1", "late")
	assertCode(t, err, apperrors.CodeSessionEnded)
}

func TestUpdatePromptAndAssignRole(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 2)

	r, err := f.coord.UpdatePrompt(t.Context(), s.ID, "fac", 2, "Explain functors")
	if err != nil {
		t.Fatalf("UpdatePrompt() error = %v", err)
	}
	if r.Prompt != "Explain functors" {
		t.Fatalf("prompt = %q", r.Prompt)
	}
	_, err = f.coord.UpdatePrompt(t.Context(), s.ID, "m1", 2, "x")
	assertCode(t, err, apperrors.CodeNotAuthorized)

	updated, err := f.coord.AssignRole(t.Context(), s.ID, "owner", "m1", models.AssignedRoleFacilitator)
	if err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}
	m, ok := updated.Member("m1")
	if !ok || m.AssignedRole != models.AssignedRoleFacilitator {
		t.Fatalf("member = %+v", m)
	}
	_, err = f.coord.AssignRole(t.Context(), s.ID, "owner", "ghost", models.AssignedRoleScribe)
	assertCode(t, err, apperrors.CodeMemberNotFound)

	// m1 is a facilitator now and may start the session.
	if _, err := f.coord.StartSession(t.Context(), s.ID, "m1"); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if got := f.pub.types(); got[0] != events.TypePromptUpdated || got[1] != events.TypeSessionUpdated {
		t.Fatalf("events = %v", got)
	}
}

func TestExtendDeadline(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)

	r, err := f.coord.ExtendDeadline(t.Context(), s.ID, "tk", 1, time.Minute)
	if err != nil {
		t.Fatalf("ExtendDeadline() error = %v", err)
	}
	if want := now.Add(3 * time.Minute); !r.DeadlineAt.Equal(want) {
		t.Fatalf("deadline = %v want %v", r.DeadlineAt, want)
	}
	if r.Status != models.RoundStatusVoting {
		t.Fatalf("status = %s", r.Status)
	}

	_, err = f.coord.ExtendDeadline(t.Context(), s.ID, "m1", 1, time.Minute)
	assertCode(t, err, apperrors.CodeNotAuthorized)
	_, err = f.coord.ExtendDeadline(t.Context(), s.ID, "tk", 1, 0)
	assertCode(t, err, apperrors.CodeInvalidArgument)

	// An expired deadline is extended from now.
	f.clock.Advance(10 * time.Minute)
	r, err = f.coord.ExtendDeadline(t.Context(), s.ID, "tk", 1, time.Minute)
	if err != nil {
		t.Fatalf("ExtendDeadline() error = %v", err)
	}
	if want := now.Add(11 * time.Minute); !r.DeadlineAt.Equal(want) {
		t.Fatalf("deadline = %v want %v", r.DeadlineAt, want)
	}
	if r.Status != models.RoundStatusVoting {
		t.Fatal("an expired deadline never advances the round")
	}
}

func TestSnapshotVersionMatchesLastEvent(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, 1)
	if _, err := f.coord.SubmitVote(t.Context(), s.ID, "fac", 1, "A"); err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if _, err := f.coord.CreateSharedCard(t.Context(), s.ID, "owner", "note"); err != nil {
		t.Fatalf("CreateSharedCard() error = %v", err)
	}

	snap, err := f.coord.Snapshot(t.Context(), s.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	published := f.pub.snapshot()
	if last := published[len(published)-1]; snap.Version() != last.Version {
		t.Fatalf("snapshot version %d, last event version %d", snap.Version(), last.Version)
	}
}

func TestCanJoin(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 1)

	if err := f.coord.CanJoin(t.Context(), s.ID, "m1"); err != nil {
		t.Fatalf("CanJoin(member) error = %v", err)
	}
	assertCode(t, f.coord.CanJoin(t.Context(), s.ID, "stranger"), apperrors.CodeNotMember)
	assertCode(t, f.coord.CanJoin(t.Context(), uuid.New(), "m1"), apperrors.CodeSessionNotFound)
}

func TestIdleActorIsReaped(t *testing.T) {
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(now)
	pub := &recorder{}
	coord := New(store, guard.New(store, clock, guard.DefaultDurations()), pub, clock, Config{IdleTimeout: time.Minute})
	defer coord.Close()
	f := &fixture{coord: coord, store: store, clock: clock, pub: pub}
	s := f.create(t, 1)

	if _, err := coord.Snapshot(t.Context(), s.ID); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := coord.activeActors(); got != 1 {
		t.Fatalf("active actors = %d want 1", got)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("actor timer not armed: %v", err)
	}
	clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for coord.activeActors() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle actor was not reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The session is served again by a fresh actor.
	if _, err := coord.Snapshot(t.Context(), s.ID); err != nil {
		t.Fatalf("Snapshot() after reap error = %v", err)
	}
}

func TestClosedCoordinatorRejects(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 1)
	f.coord.Close()

	_, err := f.coord.Snapshot(t.Context(), s.ID)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v want ErrClosed", err)
	}
}
