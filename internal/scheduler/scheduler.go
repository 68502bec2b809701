// Package scheduler drives date-boundary transitions: CONFIRMED bookings are
// checked in on their start day and ACTIVE_STAY bookings checked out on
// their end day.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
)

type ledger interface {
	DueForClock(ctx context.Context, now time.Time) ([]booking.ClockDue, error)
	TransitionOnClock(ctx context.Context, a actor.Actor, id string, ev booking.ClockEvent) (*booking.Booking, error)
}

type Config struct {
	L        *logger.Logger
	Ledger   ledger
	Interval time.Duration
	Now      func() time.Time
}

type Scheduler struct {
	l        *logger.Logger
	ledger   ledger
	interval time.Duration
	now      func() time.Time
}

func New(conf Config) *Scheduler {
	interval := conf.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	now := conf.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Scheduler{
		l:        conf.L,
		ledger:   conf.Ledger,
		interval: interval,
		now:      now,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.l.LogErrorf("Scheduler tick failed: %v", err.Error())
			}
		}
	}
}

// Tick applies every transition due at the current time and returns how many
// were applied. A booking that moved on since it was listed is skipped.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.ledger.DueForClock(ctx, s.now())
	if err != nil {
		return 0, err
	}

	applied := 0

	for _, d := range due {
		if _, err := s.ledger.TransitionOnClock(ctx, actor.System(), d.BookingID, d.Event); err != nil {
			if errors.Is(err, apperr.ErrInvalidTransition) {
				continue
			}

			s.l.LogErrorf("Could not apply %s to booking %s: %v", d.Event, d.BookingID, err.Error())

			continue
		}

		applied++
	}

	if applied > 0 {
		s.l.LogInfo("Scheduler applied %d of %d due transitions", applied, len(due))
	}

	return applied, nil
}
