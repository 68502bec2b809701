package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/lock"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/storage"
)

// offenseThreshold is the number of upheld disputes after which a profile
// is queued for manual review.
const offenseThreshold = 2

// errUnchanged tells mutate to return the profile as stored.
var errUnchanged = errors.New("profile unchanged")

type IdentityStore interface {
	DocumentStored(ctx context.Context, participantID string) (bool, error)
}

type PhoneVerifier interface {
	PhoneVerified(ctx context.Context, participantID string) (bool, error)
}

type VouchConfirmer interface {
	ConfirmVouch(ctx context.Context, participantID string) (confirmed bool, contact string, err error)
}

type storageReader interface {
	GetProfile(ctx context.Context, participantID string) (*Profile, error)
}

type storageWriter interface {
	storage.Transactor
	SaveProfile(ctx context.Context, profile *Profile) error
	AppendAuditEntry(ctx context.Context, entry audit.Entry) error
}

type profileStorage interface {
	storageReader
	storageWriter
}

type Config struct {
	L        *logger.Logger
	Storage  profileStorage
	Locks    lock.Locker
	Stamper  *audit.Stamper
	Identity IdentityStore
	Phone    PhoneVerifier
	Vouch    VouchConfirmer
	Now      func() time.Time
}

type Engine struct {
	l        *logger.Logger
	storage  profileStorage
	locks    lock.Locker
	stamper  *audit.Stamper
	identity IdentityStore
	phone    PhoneVerifier
	vouch    VouchConfirmer
	now      func() time.Time
}

func NewEngine(conf Config) *Engine {
	now := conf.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		l:        conf.L,
		storage:  conf.Storage,
		locks:    conf.Locks,
		stamper:  conf.Stamper,
		identity: conf.Identity,
		phone:    conf.Phone,
		vouch:    conf.Vouch,
		now:      now,
	}
}

func (e *Engine) Profile(ctx context.Context, participantID string) (*Profile, error) {
	p, err := e.storage.GetProfile(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", participantID, err)
	}

	return p, nil
}

// CreateProfile registers a participant at level 1. Registering an existing
// participant returns the stored profile unchanged.
func (e *Engine) CreateProfile(ctx context.Context, a actor.Actor, participantID, displayName string) (*Profile, error) {
	participantID = strings.TrimSpace(participantID)

	inputErr := apperr.NewInputError()
	if participantID == "" {
		inputErr.AddError("participantId", "provide participantId")
	}

	if strings.TrimSpace(displayName) == "" {
		inputErr.AddError("displayName", "provide displayName")
	}

	if err := inputErr.OrNil(); err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, lock.ProfileKey(participantID))
	if err != nil {
		return nil, fmt.Errorf("lock profile %s: %w", participantID, err)
	}
	defer release()

	existing, err := e.storage.GetProfile(ctx, participantID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("get profile %s: %w", participantID, err)
	}

	now := e.now()
	p := &Profile{
		ParticipantID: participantID,
		DisplayName:   strings.TrimSpace(displayName),
		Level:         LevelBasic,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.Badges = RecomputeBadges(p.Flags)

	entry := e.stamper.Entry(a, audit.ActionProfileCreated, "profile created at level %d", p.Level).ForProfile(participantID)
	if err := e.persist(ctx, p, entry); err != nil {
		return nil, err
	}

	return p, nil
}

// RecomputeBadges re-derives and stores the badge set of a profile. Only the
// participant or an operator may ask for it.
func (e *Engine) RecomputeBadges(ctx context.Context, a actor.Actor, participantID string) (BadgeSet, error) {
	if a.ID != participantID && !a.IsAdmin() && !a.IsSystem() {
		return nil, apperr.Invalid("actor", "only the participant or an operator can recompute badges")
	}

	p, err := e.mutate(ctx, a, participantID, audit.ActionBadgesRecomputed, func(p *Profile) (string, error) {
		fresh := RecomputeBadges(p.Flags)

		return fmt.Sprintf("badges %v (stale: %t)", fresh, !fresh.Equal(p.Badges)), nil
	})
	if err != nil {
		return nil, err
	}

	return p.Badges, nil
}

// AdvanceVerificationLevel asks the matching collaborator to confirm the
// evidence and records it on the profile.
func (e *Engine) AdvanceVerificationLevel(ctx context.Context, a actor.Actor, participantID string, kind EvidenceKind) (*Profile, error) {
	if a.ID != participantID && !a.IsAdmin() && !a.IsSystem() {
		return nil, apperr.Invalid("actor", "only the participant or an operator can submit verification evidence")
	}

	contact, err := e.confirmEvidence(ctx, participantID, kind)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, a, participantID, audit.ActionVerificationAdvanced, func(p *Profile) (string, error) {
		before := p.Level
		*p = AdvanceVerificationLevel(*p, kind, contact)

		return fmt.Sprintf("%s evidence accepted, level %d -> %d", kind, before, p.Level), nil
	})
}

func (e *Engine) confirmEvidence(ctx context.Context, participantID string, kind EvidenceKind) (string, error) {
	var (
		ok      bool
		contact string
		err     error
	)

	switch kind {
	case EvidencePhone:
		ok, err = e.phone.PhoneVerified(ctx, participantID)
	case EvidenceIdentityDocument:
		ok, err = e.identity.DocumentStored(ctx, participantID)
	case EvidenceCommunityVouch:
		ok, contact, err = e.vouch.ConfirmVouch(ctx, participantID)
		ok = ok && strings.TrimSpace(contact) != ""
	case EvidenceSafetyPledge:
		ok = true
	default:
		return "", apperr.Invalid("evidenceKind", fmt.Sprintf("unknown evidence kind '%s'", kind))
	}

	if err != nil {
		return "", fmt.Errorf("confirm %s evidence for %s: %w", kind, participantID, err)
	}

	if !ok {
		return "", apperr.Invalid("evidenceKind", fmt.Sprintf("%s evidence was not confirmed", kind))
	}

	return contact, nil
}

// ApplyReviewOutcome folds the host review of bookingID into the guest's
// profile. Repeated calls for the same booking leave the profile as is.
func (e *Engine) ApplyReviewOutcome(ctx context.Context, a actor.Actor, guestID, bookingID string, wouldHostAgain bool) (*Profile, error) {
	return e.mutate(ctx, a, guestID, audit.ActionReviewOutcomeApplied, func(p *Profile) (string, error) {
		if contains(p.ReviewedBookings, bookingID) {
			return "", errUnchanged
		}

		before := p.Flags.HostRecommendationRate
		*p = ApplyReviewOutcome(*p, wouldHostAgain)
		p.ReviewedBookings = append(p.ReviewedBookings, bookingID)

		return fmt.Sprintf("booking %s: wouldHostAgain=%t, rate %d -> %d, completed stays %d",
			bookingID, wouldHostAgain, before, p.Flags.HostRecommendationRate, p.Flags.CompletedStays), nil
	})
}

// RecordDisputeOffense counts an upheld dispute against a participant, once
// per booking. It never lowers the verification level.
func (e *Engine) RecordDisputeOffense(ctx context.Context, a actor.Actor, participantID, bookingID string) (*Profile, error) {
	return e.mutate(ctx, a, participantID, audit.ActionOffenseRecorded, func(p *Profile) (string, error) {
		if contains(p.OffenseBookings, bookingID) {
			return "", errUnchanged
		}

		p.DisputeOffenses++
		p.OffenseBookings = append(p.OffenseBookings, bookingID)
		if p.DisputeOffenses >= offenseThreshold {
			p.FlaggedForReview = true
		}

		return fmt.Sprintf("booking %s: offenses %d, flagged %t", bookingID, p.DisputeOffenses, p.FlaggedForReview), nil
	})
}

func (e *Engine) mutate(
	ctx context.Context,
	a actor.Actor,
	participantID string,
	action audit.Action,
	fn func(p *Profile) (string, error),
) (*Profile, error) {
	release, err := e.locks.Acquire(ctx, lock.ProfileKey(participantID))
	if err != nil {
		return nil, fmt.Errorf("lock profile %s: %w", participantID, err)
	}
	defer release()

	p, err := e.storage.GetProfile(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", participantID, err)
	}

	detail, err := fn(p)
	if errors.Is(err, errUnchanged) {
		return p, nil
	}

	if err != nil {
		return nil, err
	}

	p.Badges = RecomputeBadges(p.Flags)
	p.UpdatedAt = e.now()

	entry := e.stamper.Entry(a, action, "%s", detail).ForProfile(participantID)
	if err := e.persist(ctx, p, entry); err != nil {
		return nil, err
	}

	return p, nil
}

func (e *Engine) persist(ctx context.Context, p *Profile, entry audit.Entry) error {
	return storage.InTransaction(ctx, e.l, e.storage, "profile", func(ctx context.Context) error {
		if err := e.storage.SaveProfile(ctx, p); err != nil {
			return fmt.Errorf("save profile %s to storage: %w", p.ParticipantID, err)
		}

		if err := e.storage.AppendAuditEntry(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		return nil
	})
}
