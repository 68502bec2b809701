package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/trust"
)

func newDB() *DB {
	return New(Config{L: logger.Discard()})
}

func saveBooking(t *testing.T, ctx context.Context, db *DB, b *booking.Booking) {
	t.Helper()

	trxCtx, err := db.BeginTransaction(ctx, "")
	if err != nil {
		t.Fatalf("BeginTransaction() error = %v", err)
	}

	if err := db.SaveBooking(trxCtx, b); err != nil {
		t.Fatalf("SaveBooking() error = %v", err)
	}

	if err := db.CommitTransaction(trxCtx); err != nil {
		t.Fatalf("CommitTransaction() error = %v", err)
	}
}

func TestWritesAreInvisibleUntilCommit(t *testing.T) {
	db := newDB()
	ctx := context.Background()

	trxCtx, err := db.BeginTransaction(ctx, "")
	if err != nil {
		t.Fatalf("BeginTransaction() error = %v", err)
	}

	//nolint:exhaustruct
	if err := db.SaveBooking(trxCtx, &booking.Booking{ID: "bk-1", Status: booking.StatusDraft}); err != nil {
		t.Fatalf("SaveBooking() error = %v", err)
	}

	if _, err := db.GetBooking(ctx, "bk-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetBooking() before commit error = %v, want NotFound", err)
	}

	if err := db.CommitTransaction(trxCtx); err != nil {
		t.Fatalf("CommitTransaction() error = %v", err)
	}

	if _, err := db.GetBooking(ctx, "bk-1"); err != nil {
		t.Fatalf("GetBooking() after commit error = %v", err)
	}
}

func TestRollbackDiscardsEveryStagedWrite(t *testing.T) {
	db := newDB()
	ctx := context.Background()

	trxCtx, _ := db.BeginTransaction(ctx, "")

	//nolint:exhaustruct
	_ = db.SaveBooking(trxCtx, &booking.Booking{ID: "bk-1"})
	//nolint:exhaustruct
	_ = db.SaveProfile(trxCtx, &trust.Profile{ParticipantID: "guest-1"})
	//nolint:exhaustruct
	_ = db.AppendAuditEntry(trxCtx, audit.Entry{ID: "e-1", BookingID: "bk-1"})

	if err := db.RollbackTransaction(trxCtx); err != nil {
		t.Fatalf("RollbackTransaction() error = %v", err)
	}

	if _, err := db.GetBooking(ctx, "bk-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetBooking() error = %v, want NotFound", err)
	}

	if _, err := db.GetProfile(ctx, "guest-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetProfile() error = %v, want NotFound", err)
	}

	//nolint:exhaustruct
	entries, _ := db.QueryAuditEntries(ctx, audit.Filter{})
	if len(entries) != 0 {
		t.Fatalf("audit entries after rollback = %d, want 0", len(entries))
	}

	if err := db.CommitTransaction(trxCtx); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("CommitTransaction() after rollback error = %v, want ErrTransactionNotFound", err)
	}
}

func TestWritesWithoutTransactionAreRejected(t *testing.T) {
	db := newDB()

	//nolint:exhaustruct
	err := db.SaveBooking(context.Background(), &booking.Booking{ID: "bk-1"})
	if !errors.Is(err, ErrTransactionIDNotFoundInCtx) {
		t.Fatalf("SaveBooking() error = %v, want ErrTransactionIDNotFoundInCtx", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	db := newDB()
	ctx := context.Background()

	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-1", Status: booking.StatusDraft})

	b, _ := db.GetBooking(ctx, "bk-1")
	b.Status = booking.StatusCancelled

	stored, _ := db.GetBooking(ctx, "bk-1")
	if stored.Status != booking.StatusDraft {
		t.Fatalf("stored status = %s, want DRAFT", stored.Status)
	}
}

func TestIdempotencyKeyIsBoundOnCommit(t *testing.T) {
	db := newDB()
	ctx := booking.NewContextWithIdempotencyKey(context.Background(), "key-1")

	if _, err := db.GetBookingByIdempotencyKey(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetBookingByIdempotencyKey() error = %v, want NotFound", err)
	}

	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-1"})
	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-2"})

	b, err := db.GetBookingByIdempotencyKey(ctx)
	if err != nil {
		t.Fatalf("GetBookingByIdempotencyKey() error = %v", err)
	}

	if b.ID != "bk-1" {
		t.Fatalf("booking id = %s, want bk-1", b.ID)
	}
}

func TestListBookingsByStatus(t *testing.T) {
	db := newDB()
	ctx := context.Background()

	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-2", Status: booking.StatusActiveStay})
	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-1", Status: booking.StatusConfirmed})
	//nolint:exhaustruct
	saveBooking(t, ctx, db, &booking.Booking{ID: "bk-3", Status: booking.StatusDraft})

	got, err := db.ListBookingsByStatus(ctx, booking.StatusConfirmed, booking.StatusActiveStay)
	if err != nil {
		t.Fatalf("ListBookingsByStatus() error = %v", err)
	}

	if len(got) != 2 || got[0].ID != "bk-1" || got[1].ID != "bk-2" {
		t.Fatalf("ListBookingsByStatus() = %v, want bk-1 and bk-2", got)
	}
}

func TestQueryAuditEntries(t *testing.T) {
	db := newDB()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	trxCtx, _ := db.BeginTransaction(ctx, "")

	//nolint:exhaustruct
	entries := []audit.Entry{
		{ID: "e-1", BookingID: "bk-1", ActorID: "guest-1", Action: audit.ActionBookingCreated, Timestamp: base},
		{ID: "e-2", BookingID: "bk-2", ActorID: "guest-2", Action: audit.ActionBookingCreated, Timestamp: base.Add(time.Minute)},
		{ID: "e-3", BookingID: "bk-1", ActorID: "host-1", Action: audit.ActionBookingApproved, Timestamp: base.Add(2 * time.Minute)},
	}

	for _, e := range entries {
		_ = db.AppendAuditEntry(trxCtx, e)
	}

	_ = db.CommitTransaction(trxCtx)

	//nolint:exhaustruct
	got, err := db.QueryAuditEntries(ctx, audit.Filter{BookingID: "bk-1"})
	if err != nil {
		t.Fatalf("QueryAuditEntries() error = %v", err)
	}

	if len(got) != 2 || got[0].ID != "e-1" || got[1].ID != "e-3" {
		t.Fatalf("QueryAuditEntries() = %v, want e-1 and e-3", got)
	}
}
