package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
)

func TestStamperTimestampsStrictlyIncrease(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStamper(func() time.Time { return frozen })
	a := actor.Actor{ID: "guest-1", Name: "Aline", Role: actor.RoleGuest}

	const n = 100

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		entries = make([]Entry, 0, n)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			e := s.Entry(a, ActionBookingCreated, "draft")

			mu.Lock()
			entries = append(entries, e)
			mu.Unlock()
		}()
	}

	wg.Wait()

	seenTS := make(map[time.Time]struct{}, n)
	seenID := make(map[string]struct{}, n)

	for _, e := range entries {
		seenTS[e.Timestamp] = struct{}{}
		seenID[e.ID] = struct{}{}
	}

	if len(seenTS) != n || len(seenID) != n {
		t.Fatalf("distinct timestamps %d, ids %d; want %d each", len(seenTS), len(seenID), n)
	}
}

func TestStamperSurvivesClockStepBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStamper(func() time.Time { return now })
	a := actor.System()

	first := s.Entry(a, ActionCheckIn, "x")
	now = now.Add(-time.Hour)
	second := s.Entry(a, ActionCheckOut, "y")

	if !second.Timestamp.After(first.Timestamp) {
		t.Fatalf("second %v not after first %v", second.Timestamp, first.Timestamp)
	}
}

func TestEntryRecordsOperator(t *testing.T) {
	s := NewStamper(nil)

	adminEntry := s.Entry(actor.Actor{ID: "admin-1", Name: "Ops", Role: actor.RoleAdmin}, ActionDisputeResolved, "refund: %s", "no water").ForBooking("bk-1")
	if adminEntry.OperatorID != "admin-1" || adminEntry.BookingID != "bk-1" || adminEntry.Details != "refund: no water" {
		t.Fatalf("entry = %+v", adminEntry)
	}

	guestEntry := s.Entry(actor.Actor{ID: "guest-1", Name: "Aline", Role: actor.RoleGuest}, ActionDisputeFiled, "x").ForProfile("guest-1")
	if guestEntry.OperatorID != "" || guestEntry.ProfileID != "guest-1" {
		t.Fatalf("entry = %+v", guestEntry)
	}
}

type sliceStorage []Entry

func (s sliceStorage) QueryAuditEntries(_ context.Context, filter Filter) ([]Entry, error) {
	var out []Entry

	for _, e := range s {
		if filter.Match(e) {
			out = append(out, e)
		}
	}

	return out, nil
}

func TestLogQuery(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	//nolint:exhaustruct
	log := NewLog(sliceStorage{
		{ID: "e-3", BookingID: "bk-1", ActorID: "host-1", Action: ActionBookingApproved, Timestamp: base.Add(2 * time.Minute)},
		{ID: "e-1", BookingID: "bk-1", ActorID: "guest-1", Action: ActionBookingCreated, Timestamp: base},
		{ID: "e-2", BookingID: "bk-2", ActorID: "guest-2", Action: ActionBookingCreated, Timestamp: base.Add(time.Minute)},
		{ID: "e-4", BookingID: "bk-1", ActorID: "system", Action: ActionCheckIn, Timestamp: base.Add(3 * time.Minute)},
	})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"everything in order", Filter{}, []string{"e-1", "e-2", "e-3", "e-4"}},
		{"by booking", Filter{BookingID: "bk-1"}, []string{"e-1", "e-3", "e-4"}},
		{"by actor", Filter{ActorID: "guest-2"}, []string{"e-2"}},
		{"by action", Filter{Action: ActionBookingCreated}, []string{"e-1", "e-2"}},
		{"inclusive range", Filter{From: base.Add(time.Minute), To: base.Add(2 * time.Minute)}, []string{"e-2", "e-3"}},
		{"limit", Filter{BookingID: "bk-1", Limit: 2}, []string{"e-1", "e-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}

			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}

			if len(ids) != len(tt.want) {
				t.Fatalf("Query() = %v, want %v", ids, tt.want)
			}

			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("Query() = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestLogQueryRejectsBadFilter(t *testing.T) {
	log := NewLog(sliceStorage{})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	//nolint:exhaustruct
	_, err := log.Query(context.Background(), Filter{From: base, To: base.Add(-time.Second)})
	if !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("Query() error = %v, want ValidationFailed", err)
	}
}
