package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/memory"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/storetest"
)

var start = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newGuard(t *testing.T) (*Guard, *memory.Store, *clockwork.FakeClock, *models.Session) {
	t.Helper()
	store := memory.NewStore()
	session := storetest.NewSession(2)
	if err := store.CreateSession(t.Context(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	clock := clockwork.NewFakeClockAt(start)
	return New(store, clock, DefaultDurations()), store, clock, session
}

func TestTryStartStampsDeadline(t *testing.T) {
	g, _, _, session := newGuard(t)

	res, err := g.TryStart(t.Context(), session.ID)
	if err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	if !res.Committed || res.Status != models.SessionStatusActive {
		t.Fatalf("result = %+v", res)
	}
	if res.Round.Status != models.RoundStatusVoting {
		t.Fatalf("round status = %s", res.Round.Status)
	}
	if !res.Round.StartedAt.Equal(start) {
		t.Fatalf("startedAt = %v want %v", res.Round.StartedAt, start)
	}
	want := start.Add(2 * time.Minute)
	if res.Round.DeadlineAt == nil || !res.Round.DeadlineAt.Equal(want) {
		t.Fatalf("deadlineAt = %v want %v", res.Round.DeadlineAt, want)
	}

	again, err := g.TryStart(t.Context(), session.ID)
	if err != nil {
		t.Fatalf("second TryStart() error = %v", err)
	}
	if again.Committed {
		t.Fatal("second start should not commit")
	}
}

func TestTryAdvanceUsesPhaseDuration(t *testing.T) {
	g, _, clock, session := newGuard(t)
	if _, err := g.TryStart(t.Context(), session.ID); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	clock.Advance(90 * time.Second)

	res, err := g.TryAdvance(t.Context(), session.ID, 1, models.RoundStatusVoting, models.RoundStatusDiscussing)
	if err != nil {
		t.Fatalf("TryAdvance() error = %v", err)
	}
	if !res.Committed {
		t.Fatal("expected commit")
	}
	now := start.Add(90 * time.Second)
	if !res.Round.StartedAt.Equal(now) {
		t.Fatalf("startedAt = %v want %v", res.Round.StartedAt, now)
	}
	if want := now.Add(5 * time.Minute); !res.Round.DeadlineAt.Equal(want) {
		t.Fatalf("deadlineAt = %v want %v", res.Round.DeadlineAt, want)
	}
	if res.Version != 3 {
		t.Fatalf("version = %d want 3", res.Version)
	}
}

func TestTryAdvanceToDoneClearsDeadline(t *testing.T) {
	g, _, _, session := newGuard(t)
	if _, err := g.TryStart(t.Context(), session.ID); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	steps := []struct{ from, to models.RoundStatus }{
		{models.RoundStatusVoting, models.RoundStatusDiscussing},
		{models.RoundStatusDiscussing, models.RoundStatusExplaining},
		{models.RoundStatusExplaining, models.RoundStatusDone},
	}
	var last Result
	for _, step := range steps {
		res, err := g.TryAdvance(t.Context(), session.ID, 1, step.from, step.to)
		if err != nil {
			t.Fatalf("TryAdvance(%s->%s) error = %v", step.from, step.to, err)
		}
		last = res
	}
	if last.Round.Status != models.RoundStatusDone || last.Round.DeadlineAt != nil {
		t.Fatalf("done round = %+v", last.Round)
	}
}

func TestTryAdvanceRace(t *testing.T) {
	g, _, _, session := newGuard(t)
	if _, err := g.TryStart(t.Context(), session.ID); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.TryAdvance(t.Context(), session.ID, 1, models.RoundStatusVoting, models.RoundStatusDiscussing)
			if err != nil {
				t.Errorf("TryAdvance() error = %v", err)
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	committed := 0
	for _, res := range results {
		if res.Committed {
			committed++
		}
		if res.Round.Status != models.RoundStatusDiscussing {
			t.Fatalf("round status = %s want DISCUSSING", res.Round.Status)
		}
	}
	if committed != 1 {
		t.Fatalf("committed = %d want 1", committed)
	}
}

func TestTryExtendGuardedByStatus(t *testing.T) {
	g, _, _, session := newGuard(t)
	if _, err := g.TryStart(t.Context(), session.ID); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	later := start.Add(10 * time.Minute)

	res, err := g.TryExtend(t.Context(), session.ID, 1, models.RoundStatusDiscussing, later)
	if err != nil {
		t.Fatalf("TryExtend() error = %v", err)
	}
	if res.Committed {
		t.Fatal("extend with the wrong status should not commit")
	}

	res, err = g.TryExtend(t.Context(), session.ID, 1, models.RoundStatusVoting, later)
	if err != nil {
		t.Fatalf("TryExtend() error = %v", err)
	}
	if !res.Committed || !res.Round.DeadlineAt.Equal(later) {
		t.Fatalf("result = %+v", res)
	}
}

func TestTryEnd(t *testing.T) {
	g, _, _, session := newGuard(t)

	swap, err := g.TryEnd(t.Context(), session.ID)
	if err != nil {
		t.Fatalf("TryEnd() error = %v", err)
	}
	if swap.Swapped || swap.Status != models.SessionStatusCreated {
		t.Fatalf("ending a created session = %+v", swap)
	}

	if _, err := g.TryStart(t.Context(), session.ID); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	swap, err = g.TryEnd(t.Context(), session.ID)
	if err != nil {
		t.Fatalf("TryEnd() error = %v", err)
	}
	if !swap.Swapped || swap.Status != models.SessionStatusEnded {
		t.Fatalf("ending an active session = %+v", swap)
	}
}

func TestDurationsFor(t *testing.T) {
	d := DefaultDurations()
	tests := []struct {
		status models.RoundStatus
		want   time.Duration
	}{
		{models.RoundStatusVoting, 2 * time.Minute},
		{models.RoundStatusDiscussing, 5 * time.Minute},
		{models.RoundStatusRevoting, 2 * time.Minute},
		{models.RoundStatusExplaining, 5 * time.Minute},
		{models.RoundStatusDone, 0},
		{models.RoundStatusCreated, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := d.For(tt.status); got != tt.want {
				t.Fatalf("For(%s) = %v want %v", tt.status, got, tt.want)
			}
		})
	}
}
