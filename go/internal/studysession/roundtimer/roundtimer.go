// Package roundtimer derives countdowns from server-issued round
// deadlines. It reads the local clock only and never changes a round;
// advancing past an expired deadline is left to the facilitator.
package roundtimer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
)

// Remaining returns how long is left until deadline, floored at zero. ok
// is false when the round phase has no deadline.
func Remaining(deadline *time.Time, clock clockwork.Clock) (left time.Duration, ok bool) {
	if deadline == nil {
		return 0, false
	}
	left = deadline.Sub(clock.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// Expired reports whether a deadline exists and has passed.
func Expired(deadline *time.Time, clock clockwork.Clock) bool {
	return deadline != nil && !clock.Now().Before(*deadline)
}

// Tick is one countdown update.
type Tick struct {
	Remaining time.Duration
	Expired   bool
}

// Countdown emits a Tick right away and then every interval until the
// deadline passes or ctx is done. The channel closes after the expired
// tick. A round without a deadline yields a closed channel.
func Countdown(ctx context.Context, clock clockwork.Clock, r models.Round, interval time.Duration) <-chan Tick {
	out := make(chan Tick, 1)
	if r.DeadlineAt == nil {
		close(out)
		return out
	}
	deadline := *r.DeadlineAt

	go func() {
		defer close(out)
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			left, _ := Remaining(&deadline, clock)
			tick := Tick{Remaining: left, Expired: left == 0}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
			if tick.Expired {
				return
			}

			select {
			case <-ticker.Chan():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
