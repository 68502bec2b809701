package postgres

import (
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/trust"
)

func TestBookingRowKeepsReviews(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	//nolint:exhaustruct
	b := &booking.Booking{
		ID:      "bk-1",
		GuestID: "guest-1",
		HostID:  "host-1",
		Status:  booking.StatusCompleted,
		Dates: booking.Dates{
			Start: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
		},
		TotalPrice: 62000,
		HostReview: &booking.StructuredReview{
			Role:        actor.RoleHost,
			Host:        &booking.HostAnswers{WouldHostAgain: true, RespectedRules: true},
			SubmittedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	row, err := toBookingRow(b)
	if err != nil {
		t.Fatalf("toBookingRow: %v", err)
	}

	if row.Status != string(booking.StatusCompleted) || !row.StartDate.Equal(b.Dates.Start) {
		t.Fatalf("indexed columns not set: %+v", row)
	}

	if row.GuestReview != nil {
		t.Fatalf("expected no guest review column, got %s", row.GuestReview)
	}

	got, err := row.toBooking()
	if err != nil {
		t.Fatalf("toBooking: %v", err)
	}

	if got.GuestReview != nil {
		t.Fatalf("guest review appeared from nowhere: %+v", got.GuestReview)
	}

	if got.HostReview == nil || got.HostReview.Host == nil || !got.HostReview.Host.WouldHostAgain {
		t.Fatalf("host review lost: %+v", got.HostReview)
	}

	if got.TotalPrice != 62000 || got.Status != booking.StatusCompleted {
		t.Fatalf("payload lost fields: %+v", got)
	}
}

func TestProfileRowMirrorsFlags(t *testing.T) {
	t.Parallel()

	//nolint:exhaustruct
	p := &trust.Profile{
		ParticipantID:    "guest-1",
		Level:            trust.LevelVerified,
		Badges:           trust.BadgeSet{trust.BadgeIDVerified},
		DisputeOffenses:  2,
		FlaggedForReview: true,
	}

	row, err := toProfileRow(p)
	if err != nil {
		t.Fatalf("toProfileRow: %v", err)
	}

	if row.Level != int(trust.LevelVerified) || !row.Flagged {
		t.Fatalf("columns not mirrored: %+v", row)
	}

	got, err := row.toProfile()
	if err != nil {
		t.Fatalf("toProfile: %v", err)
	}

	if got.DisputeOffenses != 2 || len(got.Badges) != 1 {
		t.Fatalf("profile payload lost fields: %+v", got)
	}
}

func TestAuditRowKeepsOperator(t *testing.T) {
	t.Parallel()

	stamper := audit.NewStamper(nil)
	e := stamper.Entry(actor.Actor{ID: "op-1", Name: "Ops", Role: actor.RoleAdmin}, audit.ActionDisputeResolved, "resolved %s", "bk-1").
		ForBooking("bk-1")

	got := toAuditRow(e).toEntry()
	if got != e {
		t.Fatalf("entry changed on the way through: %+v != %+v", got, e)
	}
}
