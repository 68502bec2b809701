package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
)

type fakeLedger struct {
	due     []booking.ClockDue
	fail    map[string]error
	applied []booking.ClockDue
	actors  []actor.Actor
	asked   time.Time
}

func (f *fakeLedger) DueForClock(_ context.Context, now time.Time) ([]booking.ClockDue, error) {
	f.asked = now

	return f.due, nil
}

func (f *fakeLedger) TransitionOnClock(_ context.Context, a actor.Actor, id string, ev booking.ClockEvent) (*booking.Booking, error) {
	if err := f.fail[id]; err != nil {
		return nil, err
	}

	f.applied = append(f.applied, booking.ClockDue{BookingID: id, Event: ev})
	f.actors = append(f.actors, a)

	//nolint:exhaustruct
	return &booking.Booking{ID: id}, nil
}

func TestTickAppliesDueTransitionsAsSystem(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	//nolint:exhaustruct
	ledger := &fakeLedger{
		due: []booking.ClockDue{
			{BookingID: "bk-1", Event: booking.ClockCheckIn},
			{BookingID: "bk-2", Event: booking.ClockCheckOut},
			{BookingID: "bk-3", Event: booking.ClockCheckIn},
			{BookingID: "bk-4", Event: booking.ClockCheckOut},
		},
		fail: map[string]error{
			"bk-3": &apperr.TransitionError{From: "CANCELLED", To: "ACTIVE_STAY", Event: "CHECK_IN"},
			"bk-4": errors.New("storage unavailable"),
		},
	}

	s := New(Config{L: logger.Discard(), Ledger: ledger, Interval: time.Second, Now: func() time.Time { return now }})

	applied, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if applied != 2 || len(ledger.applied) != 2 {
		t.Fatalf("applied = %d (%v), want bk-1 and bk-2", applied, ledger.applied)
	}

	if !ledger.asked.Equal(now) {
		t.Fatalf("DueForClock asked for %v, want %v", ledger.asked, now)
	}

	for _, a := range ledger.actors {
		if !a.IsSystem() {
			t.Fatalf("transition applied by %+v, want the system actor", a)
		}
	}
}

func TestRunStopsWithContext(t *testing.T) {
	//nolint:exhaustruct
	s := New(Config{L: logger.Discard(), Ledger: &fakeLedger{}, Interval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after the context ended")
	}
}
