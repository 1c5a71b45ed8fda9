// Package storetest holds the behaviour every repository.Store must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("unknown session", func(t *testing.T) { testUnknownSession(t, newStore(t)) })
	t.Run("start session", func(t *testing.T) { testStartSession(t, newStore(t)) })
	t.Run("round compare and swap", func(t *testing.T) { testRoundSwap(t, newStore(t)) })
	t.Run("concurrent swaps commit once", func(t *testing.T) { testConcurrentSwap(t, newStore(t)) })
	t.Run("deadline swap", func(t *testing.T) { testDeadlineSwap(t, newStore(t)) })
	t.Run("prompt and roles", func(t *testing.T) { testPromptAndRoles(t, newStore(t)) })
	t.Run("append only records", func(t *testing.T) { testAppendOnly(t, newStore(t)) })
	t.Run("end session", func(t *testing.T) { testEndSession(t, newStore(t)) })
}

// NewSession builds an unsaved session with rounds 1..rounds.
func NewSession(rounds int) *models.Session {
	id := uuid.New()
	return &models.Session{
		ID:        id,
		GroupID:   "group-1",
		ContentID: "content-1",
		Status:    models.SessionStatusCreated,
		Rounds:    models.NewRounds(id, rounds, []string{"first prompt"}),
		Members: []models.Member{
			{UserID: "fac", AssignedRole: models.AssignedRoleFacilitator, GroupRole: models.GroupRoleMember},
			{UserID: "tk", AssignedRole: models.AssignedRoleTimekeeper, GroupRole: models.GroupRoleMember},
			{UserID: "owner", AssignedRole: models.AssignedRoleScribe, GroupRole: models.GroupRoleOwner},
		},
		CreatedAt: base,
	}
}

func create(t *testing.T, store repository.Store, rounds int) *models.Session {
	t.Helper()
	s := NewSession(rounds)
	if err := store.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func start(t *testing.T, store repository.Store, id uuid.UUID) repository.StartSwap {
	t.Helper()
	deadline := base.Add(2 * time.Minute)
	res, err := store.StartSession(context.Background(), repository.SessionStart{
		SessionID: id,
		At:        base,
		First: repository.RoundTransition{
			SessionID:  id,
			RoundIndex: 1,
			Expected:   models.RoundStatusCreated,
			Next:       models.RoundStatusVoting,
			StartedAt:  base,
			DeadlineAt: &deadline,
		},
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return res
}

func testCreateAndGet(t *testing.T, store repository.Store) {
	s := create(t, store, 4)
	got, err := store.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != models.SessionStatusCreated || got.Version != 0 {
		t.Fatalf("status/version = %s/%d want CREATED/0", got.Status, got.Version)
	}
	if len(got.Rounds) != 4 {
		t.Fatalf("rounds = %d want 4", len(got.Rounds))
	}
	for i, r := range got.Rounds {
		if r.RoundIndex != i+1 {
			t.Fatalf("round %d has index %d", i, r.RoundIndex)
		}
		if r.Status != models.RoundStatusCreated {
			t.Fatalf("round %d status = %s", r.RoundIndex, r.Status)
		}
	}
	if got.Rounds[0].Prompt != "first prompt" {
		t.Fatalf("prompt = %q", got.Rounds[0].Prompt)
	}
	if len(got.Members) != 3 {
		t.Fatalf("members = %d want 3", len(got.Members))
	}
	if m, ok := got.Member("owner"); !ok || m.GroupRole != models.GroupRoleOwner {
		t.Fatalf("owner member = %+v, %v", m, ok)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("created_at = %v want %v", got.CreatedAt, base)
	}
}

func testUnknownSession(t *testing.T, store repository.Store) {
	_, err := store.GetSession(context.Background(), uuid.New())
	if apperrors.CodeOf(err) != apperrors.CodeSessionNotFound {
		t.Fatalf("GetSession() error = %v want not found", err)
	}
	s := create(t, store, 1)
	_, err = store.SwapRoundStatus(context.Background(), repository.RoundTransition{
		SessionID:  s.ID,
		RoundIndex: 2,
		Expected:   models.RoundStatusCreated,
		Next:       models.RoundStatusVoting,
		StartedAt:  base,
	})
	if apperrors.CodeOf(err) != apperrors.CodeRoundNotFound {
		t.Fatalf("SwapRoundStatus() error = %v want round not found", err)
	}
}

func testStartSession(t *testing.T, store repository.Store) {
	s := create(t, store, 2)
	res := start(t, store, s.ID)
	if !res.Swapped {
		t.Fatal("first start should swap")
	}
	if res.Version != 2 {
		t.Fatalf("version = %d want 2", res.Version)
	}
	if res.Round.Status != models.RoundStatusVoting || res.Round.DeadlineAt == nil {
		t.Fatalf("round = %+v", res.Round)
	}

	again := start(t, store, s.ID)
	if again.Swapped {
		t.Fatal("second start must not swap")
	}
	if again.Status != models.SessionStatusActive || again.Version != 2 {
		t.Fatalf("second start = %+v", again)
	}

	got, err := store.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != models.SessionStatusActive || got.StartedAt == nil {
		t.Fatalf("session = %s started %v", got.Status, got.StartedAt)
	}
	if got.Rounds[1].Status != models.RoundStatusCreated {
		t.Fatalf("round 2 status = %s", got.Rounds[1].Status)
	}
}

func testRoundSwap(t *testing.T, store repository.Store) {
	s := create(t, store, 1)
	start(t, store, s.ID)

	deadline := base.Add(7 * time.Minute)
	swap := repository.RoundTransition{
		SessionID:  s.ID,
		RoundIndex: 1,
		Expected:   models.RoundStatusVoting,
		Next:       models.RoundStatusDiscussing,
		StartedAt:  base.Add(2 * time.Minute),
		DeadlineAt: &deadline,
	}
	res, err := store.SwapRoundStatus(context.Background(), swap)
	if err != nil {
		t.Fatalf("SwapRoundStatus() error = %v", err)
	}
	if !res.Swapped || res.Round.Status != models.RoundStatusDiscussing || res.Version != 3 {
		t.Fatalf("swap = %+v", res)
	}
	if res.Round.DeadlineAt == nil || !res.Round.DeadlineAt.Equal(deadline) {
		t.Fatalf("deadline = %v want %v", res.Round.DeadlineAt, deadline)
	}

	stale, err := store.SwapRoundStatus(context.Background(), swap)
	if err != nil {
		t.Fatalf("SwapRoundStatus() error = %v", err)
	}
	if stale.Swapped {
		t.Fatal("stale expectation must not swap")
	}
	if stale.Round.Status != models.RoundStatusDiscussing || stale.Version != 3 {
		t.Fatalf("stale = %+v", stale)
	}

	done := repository.RoundTransition{
		SessionID:  s.ID,
		RoundIndex: 1,
		Expected:   models.RoundStatusDiscussing,
		Next:       models.RoundStatusExplaining,
		StartedAt:  base.Add(5 * time.Minute),
	}
	res, err = store.SwapRoundStatus(context.Background(), done)
	if err != nil {
		t.Fatalf("SwapRoundStatus() error = %v", err)
	}
	if res.Round.DeadlineAt != nil {
		t.Fatalf("nil deadline should clear the old one, got %v", res.Round.DeadlineAt)
	}
}

func testConcurrentSwap(t *testing.T, store repository.Store) {
	s := create(t, store, 1)
	start(t, store, s.ID)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		swapped int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.SwapRoundStatus(context.Background(), repository.RoundTransition{
				SessionID:  s.ID,
				RoundIndex: 1,
				Expected:   models.RoundStatusVoting,
				Next:       models.RoundStatusDiscussing,
				StartedAt:  base,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Swapped {
				swapped++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("SwapRoundStatus() errors = %v", errs)
	}
	if swapped != 1 {
		t.Fatalf("swapped = %d want exactly 1", swapped)
	}
	got, err := store.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Version != 3 {
		t.Fatalf("version = %d want 3", got.Version)
	}
}

func testDeadlineSwap(t *testing.T, store repository.Store) {
	s := create(t, store, 1)
	start(t, store, s.ID)

	later := base.Add(10 * time.Minute)
	res, err := store.SwapRoundDeadline(context.Background(), repository.DeadlineChange{
		SessionID:  s.ID,
		RoundIndex: 1,
		Status:     models.RoundStatusVoting,
		DeadlineAt: later,
	})
	if err != nil {
		t.Fatalf("SwapRoundDeadline() error = %v", err)
	}
	if !res.Swapped || res.Round.DeadlineAt == nil || !res.Round.DeadlineAt.Equal(later) {
		t.Fatalf("deadline swap = %+v", res)
	}

	res, err = store.SwapRoundDeadline(context.Background(), repository.DeadlineChange{
		SessionID:  s.ID,
		RoundIndex: 1,
		Status:     models.RoundStatusDiscussing,
		DeadlineAt: later.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SwapRoundDeadline() error = %v", err)
	}
	if res.Swapped {
		t.Fatal("deadline change for a stale status must not apply")
	}
	if !res.Round.DeadlineAt.Equal(later) {
		t.Fatalf("deadline = %v want %v", res.Round.DeadlineAt, later)
	}
}

func testPromptAndRoles(t *testing.T, store repository.Store) {
	ctx := context.Background()
	s := create(t, store, 2)

	r, v, err := store.UpdateRoundPrompt(ctx, s.ID, 2, "second prompt")
	if err != nil {
		t.Fatalf("UpdateRoundPrompt() error = %v", err)
	}
	if r.Prompt != "second prompt" || v != 1 {
		t.Fatalf("prompt update = %+v v%d", r, v)
	}

	v, err = store.UpdateMemberRole(ctx, s.ID, "tk", models.AssignedRoleFacilitator)
	if err != nil {
		t.Fatalf("UpdateMemberRole() error = %v", err)
	}
	if v != 2 {
		t.Fatalf("version = %d want 2", v)
	}
	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if m, _ := got.Member("tk"); m.AssignedRole != models.AssignedRoleFacilitator {
		t.Fatalf("role = %s", m.AssignedRole)
	}

	_, err = store.UpdateMemberRole(ctx, s.ID, "ghost", models.AssignedRoleScribe)
	if apperrors.CodeOf(err) != apperrors.CodeMemberNotFound {
		t.Fatalf("UpdateMemberRole() error = %v want member not found", err)
	}
}

func testAppendOnly(t *testing.T, store repository.Store) {
	ctx := context.Background()
	s := create(t, store, 1)

	for i, value := range []string{"A", "B", "C"} {
		v, err := store.AppendSubmission(ctx, models.Submission{
			ID:         uuid.New(),
			SessionID:  s.ID,
			RoundIndex: 1,
			UserID:     "fac",
			Kind:       models.SubmissionKindVote,
			Value:      value,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendSubmission() error = %v", err)
		}
		if v != int64(i+1) {
			t.Fatalf("version = %d want %d", v, i+1)
		}
	}
	for i, content := range []string{"note one", "note two"} {
		if _, err := store.AppendSharedCard(ctx, models.SharedCard{
			ID:        uuid.New(),
			SessionID: s.ID,
			CreatedBy: "owner",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendSharedCard() error = %v", err)
		}
	}

	subs, err := store.ListSubmissions(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 3 || subs[0].Value != "A" || subs[2].Value != "C" {
		t.Fatalf("submissions = %+v", subs)
	}
	cards, err := store.ListSharedCards(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListSharedCards() error = %v", err)
	}
	if len(cards) != 2 || cards[0].Content != "note one" || cards[1].Content != "note two" {
		t.Fatalf("cards = %+v", cards)
	}

	_, err = store.AppendSubmission(ctx, models.Submission{
		ID:         uuid.New(),
		SessionID:  s.ID,
		RoundIndex: 9,
		UserID:     "fac",
		Kind:       models.SubmissionKindVote,
		Value:      "X",
		CreatedAt:  base,
	})
	if apperrors.CodeOf(err) != apperrors.CodeRoundNotFound {
		t.Fatalf("AppendSubmission() error = %v want round not found", err)
	}
}

func testEndSession(t *testing.T, store repository.Store) {
	ctx := context.Background()
	s := create(t, store, 1)

	res, err := store.SwapSessionStatus(ctx, repository.SessionTransition{
		SessionID: s.ID,
		Expected:  models.SessionStatusActive,
		Next:      models.SessionStatusEnded,
		At:        base,
	})
	if err != nil {
		t.Fatalf("SwapSessionStatus() error = %v", err)
	}
	if res.Swapped || res.Status != models.SessionStatusCreated {
		t.Fatalf("ending a CREATED session = %+v", res)
	}

	start(t, store, s.ID)
	res, err = store.SwapSessionStatus(ctx, repository.SessionTransition{
		SessionID: s.ID,
		Expected:  models.SessionStatusActive,
		Next:      models.SessionStatusEnded,
		At:        base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SwapSessionStatus() error = %v", err)
	}
	if !res.Swapped || res.Version != 3 {
		t.Fatalf("end = %+v", res)
	}
	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != models.SessionStatusEnded || got.EndedAt == nil || !got.EndedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("ended session = %s %v", got.Status, got.EndedAt)
	}
}
