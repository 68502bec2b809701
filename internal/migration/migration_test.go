package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/migration"
	"github.com/avstrong/staytrust/internal/storage/memory"
	"github.com/avstrong/staytrust/internal/trust"
)

func TestUpSeedsListingsAndProfiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := memory.New(memory.Config{L: logger.Discard()})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := migration.Up(ctx, logger.Discard(), db, now); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	for _, want := range migration.DemoListings() {
		got, err := db.GetListing(ctx, want.ID)
		if err != nil {
			t.Fatalf("GetListing(%s) error = %v", want.ID, err)
		}

		if *got != *want {
			t.Errorf("GetListing(%s) = %+v, want %+v", want.ID, got, want)
		}
	}

	for _, id := range []string{migration.DemoHostID, migration.DemoGuestID, migration.DemoNewGuestID} {
		p, err := db.GetProfile(ctx, id)
		if err != nil {
			t.Fatalf("GetProfile(%s) error = %v", id, err)
		}

		if !p.Badges.Equal(trust.RecomputeBadges(p.Flags)) {
			t.Errorf("profile %s seeded with stale badges %v", id, p.Badges)
		}
	}
}

func TestUpRunsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := memory.New(memory.Config{L: logger.Discard()})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := migration.Up(ctx, logger.Discard(), db, now); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}

	p, err := db.GetProfile(ctx, migration.DemoNewGuestID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	p.DisputeOffenses = 1
	if err := saveProfile(ctx, db, p); err != nil {
		t.Fatalf("saveProfile() error = %v", err)
	}

	if err := migration.Up(ctx, logger.Discard(), db, now.Add(time.Hour)); err != nil {
		t.Fatalf("second Up() error = %v", err)
	}

	p, err = db.GetProfile(ctx, migration.DemoNewGuestID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	if p.DisputeOffenses != 1 {
		t.Fatalf("second run overwrote the profile: %+v", p)
	}
}

func saveProfile(ctx context.Context, db *memory.DB, p *trust.Profile) error {
	trxCtx, err := db.BeginTransaction(ctx, "")
	if err != nil {
		return err
	}

	if err := db.SaveProfile(trxCtx, p); err != nil {
		_ = db.RollbackTransaction(trxCtx)

		return err
	}

	return db.CommitTransaction(trxCtx)
}

func TestDemoHostIsTrusted(t *testing.T) {
	t.Parallel()

	for _, p := range migration.DemoProfiles(time.Now()) {
		if p.ParticipantID != migration.DemoHostID {
			continue
		}

		if p.Level != trust.LevelTrusted {
			t.Fatalf("demo host level = %d, want %d", p.Level, trust.LevelTrusted)
		}

		return
	}

	t.Fatal("demo host profile missing")
}
