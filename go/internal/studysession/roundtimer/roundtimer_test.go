package roundtimer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
)

var start = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := start.Add(d)
	return &t
}

func TestRemaining(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)

	tests := []struct {
		name     string
		deadline *time.Time
		want     time.Duration
		wantOK   bool
		expired  bool
	}{
		{name: "no deadline", deadline: nil, want: 0, wantOK: false, expired: false},
		{name: "in the future", deadline: at(90 * time.Second), want: 90 * time.Second, wantOK: true},
		{name: "exactly now", deadline: at(0), want: 0, wantOK: true, expired: true},
		{name: "in the past", deadline: at(-time.Minute), want: 0, wantOK: true, expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Remaining(tt.deadline, clock)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Remaining() = %v, %v want %v, %v", got, ok, tt.want, tt.wantOK)
			}
			if e := Expired(tt.deadline, clock); e != tt.expired {
				t.Fatalf("Expired() = %v want %v", e, tt.expired)
			}
		})
	}
}

func next(t *testing.T, ch <-chan Tick) Tick {
	t.Helper()
	select {
	case tick, ok := <-ch:
		if !ok {
			t.Fatal("countdown closed early")
		}
		return tick
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
		return Tick{}
	}
}

func TestCountdownRunsToExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	r := models.Round{RoundIndex: 1, Status: models.RoundStatusVoting, DeadlineAt: at(3 * time.Second)}
	ctx := t.Context()

	ch := Countdown(ctx, clock, r, time.Second)
	if tick := next(t, ch); tick.Remaining != 3*time.Second || tick.Expired {
		t.Fatalf("first tick = %+v", tick)
	}
	for _, want := range []time.Duration{2 * time.Second, time.Second} {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
		if tick := next(t, ch); tick.Remaining != want || tick.Expired {
			t.Fatalf("tick = %+v want remaining %v", tick, want)
		}
	}
	clock.Advance(time.Second)
	if tick := next(t, ch); !tick.Expired || tick.Remaining != 0 {
		t.Fatalf("last tick = %+v, want expired", tick)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("countdown kept ticking after expiry")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown not closed after expiry")
	}
	if r.Status != models.RoundStatusVoting {
		t.Fatal("countdown changed the round")
	}
}

func TestCountdownStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	ctx, cancel := context.WithCancel(t.Context())
	ch := Countdown(ctx, clock, models.Round{DeadlineAt: at(time.Hour)}, time.Second)
	next(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("tick after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown not closed after cancel")
	}
}

func TestCountdownWithoutDeadline(t *testing.T) {
	ch := Countdown(t.Context(), clockwork.NewFakeClockAt(start), models.Round{}, time.Second)
	if _, ok := <-ch; ok {
		t.Fatal("countdown without a deadline produced a tick")
	}
}
