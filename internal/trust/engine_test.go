package trust_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/lock"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/storage/memory"
	"github.com/avstrong/staytrust/internal/trust"
	"github.com/avstrong/staytrust/internal/verification"
)

var (
	guest = actor.Actor{ID: "guest-1", Name: "Aline", Role: actor.RoleGuest}
	admin = actor.Actor{ID: "admin-1", Name: "Ops", Role: actor.RoleAdmin}
)

func newEngine(t *testing.T) (*trust.Engine, *verification.Registry, *audit.Log) {
	t.Helper()

	l := logger.Discard()
	db := memory.New(memory.Config{L: l})
	registry := verification.NewRegistry()
	now := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	engine := trust.NewEngine(trust.Config{
		L:        l,
		Storage:  db,
		Locks:    lock.NewKeyed(time.Second),
		Stamper:  audit.NewStamper(now),
		Identity: registry,
		Phone:    registry,
		Vouch:    registry,
		Now:      now,
	})

	if _, err := engine.CreateProfile(context.Background(), actor.System(), guest.ID, guest.Name); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	return engine, registry, audit.NewLog(db)
}

func TestCreateProfileIsIdempotent(t *testing.T) {
	engine, _, log := newEngine(t)
	ctx := context.Background()

	p, err := engine.CreateProfile(ctx, actor.System(), guest.ID, "Someone Else")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	if p.DisplayName != guest.Name || p.Level != trust.LevelBasic {
		t.Fatalf("profile = %+v, want the original level-1 profile", p)
	}

	//nolint:exhaustruct
	entries, _ := log.Query(ctx, audit.Filter{Action: audit.ActionProfileCreated})
	if len(entries) != 1 {
		t.Fatalf("PROFILE_CREATED entries = %d, want 1", len(entries))
	}

	_, err = engine.CreateProfile(ctx, actor.System(), " ", "x")
	if !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("CreateProfile() with empty id error = %v, want ValidationFailed", err)
	}
}

func TestProfileNotFound(t *testing.T) {
	engine, _, _ := newEngine(t)

	if _, err := engine.Profile(context.Background(), "nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Profile() error = %v, want NotFound", err)
	}

	_, err := engine.RecomputeBadges(context.Background(), admin, "nobody")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("RecomputeBadges() error = %v, want NotFound", err)
	}
}

func TestAdvanceVerificationNeedsConfirmedEvidence(t *testing.T) {
	engine, registry, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.AdvanceVerificationLevel(ctx, guest, guest.ID, trust.EvidenceIdentityDocument)
	if inputErr := apperr.IsInputError(err); inputErr == nil || len(inputErr.Fields()["evidenceKind"]) == 0 {
		t.Fatalf("AdvanceVerificationLevel() error = %v, want ValidationFailed on evidenceKind", err)
	}

	registry.RecordDocumentStored(guest.ID)

	p, err := engine.AdvanceVerificationLevel(ctx, guest, guest.ID, trust.EvidenceIdentityDocument)
	if err != nil {
		t.Fatalf("AdvanceVerificationLevel() error = %v", err)
	}

	if p.Level != trust.LevelVerified || !p.Badges.Has(trust.BadgeIDVerified) {
		t.Fatalf("profile = level %d badges %v, want level 2 with ID_VERIFIED", p.Level, p.Badges)
	}

	stranger := actor.Actor{ID: "guest-2", Name: "Other", Role: actor.RoleGuest}

	_, err = engine.AdvanceVerificationLevel(ctx, stranger, guest.ID, trust.EvidencePhone)
	if !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("AdvanceVerificationLevel() by another participant error = %v, want ValidationFailed", err)
	}
}

func TestReachesTrustedWithPhoneDocumentAndVouch(t *testing.T) {
	engine, registry, _ := newEngine(t)
	ctx := context.Background()

	registry.RecordPhoneVerified(guest.ID)
	registry.RecordDocumentStored(guest.ID)
	registry.RecordVouch(guest.ID, "pastor@nyamirambo")

	for _, kind := range []trust.EvidenceKind{trust.EvidencePhone, trust.EvidenceCommunityVouch, trust.EvidenceIdentityDocument} {
		if _, err := engine.AdvanceVerificationLevel(ctx, guest, guest.ID, kind); err != nil {
			t.Fatalf("AdvanceVerificationLevel(%s) error = %v", kind, err)
		}
	}

	p, _ := engine.Profile(ctx, guest.ID)
	if p.Level != trust.LevelTrusted {
		t.Fatalf("level = %d, want 3", p.Level)
	}

	if p.Flags.CommunityReference != "pastor@nyamirambo" || !p.Badges.Has(trust.BadgeCommunityVouched) {
		t.Fatalf("vouch not recorded: %+v", p)
	}
}

func TestHostReviewsMoveRecommendationRate(t *testing.T) {
	engine, _, _ := newEngine(t)
	ctx := context.Background()

	p, err := engine.ApplyReviewOutcome(ctx, actor.System(), guest.ID, "bk-1", true)
	if err != nil {
		t.Fatalf("ApplyReviewOutcome() error = %v", err)
	}

	if p.Flags.HostRecommendationRate != 100 || !p.Badges.Has(trust.BadgeHostRecommended) {
		t.Fatalf("profile = %+v, want rate 100 with HOST_RECOMMENDED", p.Flags)
	}

	for i, want := range []int{80, 60} {
		p, err = engine.ApplyReviewOutcome(ctx, actor.System(), guest.ID, fmt.Sprintf("bk-2%d", i), false)
		if err != nil {
			t.Fatalf("ApplyReviewOutcome() error = %v", err)
		}

		if p.Flags.HostRecommendationRate != want {
			t.Fatalf("rate = %d, want %d", p.Flags.HostRecommendationRate, want)
		}
	}

	if p.Badges.Has(trust.BadgeHostRecommended) {
		t.Fatal("HOST_RECOMMENDED kept at rate 60")
	}

	p, _ = engine.ApplyReviewOutcome(ctx, actor.System(), guest.ID, "bk-3", true)
	if p.Flags.HostRecommendationRate != 100 {
		t.Fatalf("rate = %d, want full reset to 100", p.Flags.HostRecommendationRate)
	}
}

func TestRepeatOffensesFlagWithoutDemotion(t *testing.T) {
	engine, registry, _ := newEngine(t)
	ctx := context.Background()

	registry.RecordDocumentStored(guest.ID)

	if _, err := engine.AdvanceVerificationLevel(ctx, admin, guest.ID, trust.EvidenceIdentityDocument); err != nil {
		t.Fatalf("AdvanceVerificationLevel() error = %v", err)
	}

	p, _ := engine.RecordDisputeOffense(ctx, admin, guest.ID, "bk-1")
	if p.FlaggedForReview {
		t.Fatal("flagged after a single offense")
	}

	p, _ = engine.RecordDisputeOffense(ctx, admin, guest.ID, "bk-2")
	if !p.FlaggedForReview || p.DisputeOffenses != 2 {
		t.Fatalf("profile = %+v, want two offenses and flagged", p)
	}

	if p.Level != trust.LevelVerified {
		t.Fatalf("level = %d, offenses must not demote", p.Level)
	}
}

func TestConcurrentReviewOutcomesAreSerialized(t *testing.T) {
	engine, _, log := newEngine(t)
	ctx := context.Background()

	const reviews = 20

	var wg sync.WaitGroup

	for i := 0; i < reviews; i++ {
		i := i
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := engine.ApplyReviewOutcome(ctx, actor.System(), guest.ID, fmt.Sprintf("bk-%d", i), true); err != nil {
				t.Errorf("ApplyReviewOutcome() error = %v", err)
			}
		}()
	}

	wg.Wait()

	p, _ := engine.Profile(ctx, guest.ID)
	if p.Flags.CompletedStays != reviews {
		t.Fatalf("completed stays = %d, want %d", p.Flags.CompletedStays, reviews)
	}

	//nolint:exhaustruct
	entries, _ := log.Query(ctx, audit.Filter{Action: audit.ActionReviewOutcomeApplied})
	if len(entries) != reviews {
		t.Fatalf("REVIEW_OUTCOME_APPLIED entries = %d, want %d", len(entries), reviews)
	}

	for i := 1; i < len(entries); i++ {
		if !entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Fatalf("audit timestamps not strictly increasing at %d", i)
		}
	}
}

func TestOutcomesCountOncePerBooking(t *testing.T) {
	engine, _, log := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.ApplyReviewOutcome(ctx, actor.System(), guest.ID, "bk-1", false); err != nil {
			t.Fatalf("ApplyReviewOutcome() error = %v", err)
		}

		if _, err := engine.RecordDisputeOffense(ctx, admin, guest.ID, "bk-1"); err != nil {
			t.Fatalf("RecordDisputeOffense() error = %v", err)
		}
	}

	p, _ := engine.Profile(ctx, guest.ID)
	if p.Flags.CompletedStays != 1 || p.Flags.HostRecommendationRate != 0 {
		t.Fatalf("flags = %+v, want one stay counted once", p.Flags)
	}

	if p.DisputeOffenses != 1 || p.FlaggedForReview {
		t.Fatalf("offenses = %d flagged = %t, want one offense, not flagged", p.DisputeOffenses, p.FlaggedForReview)
	}

	//nolint:exhaustruct
	entries, _ := log.Query(ctx, audit.Filter{Action: audit.ActionReviewOutcomeApplied})
	if len(entries) != 1 {
		t.Fatalf("REVIEW_OUTCOME_APPLIED entries = %d, want 1", len(entries))
	}
}

func TestOnlyParticipantOrOperatorRecomputesBadges(t *testing.T) {
	engine, _, log := newEngine(t)
	ctx := context.Background()

	stranger := actor.Actor{ID: "guest-9", Name: "Nosy", Role: actor.RoleGuest}

	_, err := engine.RecomputeBadges(ctx, stranger, guest.ID)
	if inputErr := apperr.IsInputError(err); inputErr == nil || len(inputErr.Fields()["actor"]) == 0 {
		t.Fatalf("RecomputeBadges() error = %v, want ValidationFailed on actor", err)
	}

	//nolint:exhaustruct
	entries, _ := log.Query(ctx, audit.Filter{Action: audit.ActionBadgesRecomputed})
	if len(entries) != 0 {
		t.Fatalf("BADGES_RECOMPUTED entries = %d after a rejected call, want 0", len(entries))
	}

	for _, a := range []actor.Actor{guest, admin} {
		if _, err := engine.RecomputeBadges(ctx, a, guest.ID); err != nil {
			t.Fatalf("RecomputeBadges(%s) error = %v", a.ID, err)
		}
	}
}
