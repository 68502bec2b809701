// Package trust owns participant verification levels and the badges derived
// from them.
package trust

import (
	"sort"
	"strings"
	"time"
)

type Level int

const (
	LevelBasic    Level = 1
	LevelVerified Level = 2
	LevelTrusted  Level = 3
)

type Badge string

const (
	BadgePhoneVerified    Badge = "PHONE_VERIFIED"
	BadgeIDVerified       Badge = "ID_VERIFIED"
	BadgeExperiencedGuest Badge = "EXPERIENCED_GUEST"
	BadgeHostRecommended  Badge = "HOST_RECOMMENDED"
	BadgeSafetyPledge     Badge = "SAFETY_PLEDGE"
	BadgeCommunityVouched Badge = "COMMUNITY_VOUCHED"
)

// recommendedRate is the hostRecommendationRate from which a guest with at
// least one completed stay earns BadgeHostRecommended.
const recommendedRate = 80

const (
	reviewPenalty = 20
	maxRate       = 100
)

type BadgeSet []Badge

func (s BadgeSet) Has(b Badge) bool {
	for _, have := range s {
		if have == b {
			return true
		}
	}

	return false
}

func (s BadgeSet) Equal(other BadgeSet) bool {
	if len(s) != len(other) {
		return false
	}

	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}

	return true
}

// Flags are the observable facts badges are derived from.
type Flags struct {
	PhoneVerified          bool   `json:"phone_verified"`
	IdentityDocumentStored bool   `json:"identity_document_stored"`
	CompletedStays         int    `json:"completed_stays"`
	HostRecommendationRate int    `json:"host_recommendation_rate"`
	SafetyPledgeAccepted   bool   `json:"safety_pledge_accepted"`
	CommunityReference     string `json:"community_reference,omitempty"`
}

type Profile struct {
	ParticipantID    string    `json:"participant_id"`
	DisplayName      string    `json:"display_name"`
	Level            Level     `json:"verification_level"`
	Flags            Flags     `json:"flags"`
	Badges           BadgeSet  `json:"badges"`
	DisputeOffenses  int       `json:"dispute_offenses"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	// ReviewedBookings and OffenseBookings hold the bookings already folded
	// into Flags and DisputeOffenses.
	ReviewedBookings []string  `json:"reviewed_bookings,omitempty"`
	OffenseBookings  []string  `json:"offense_bookings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Badges = append(BadgeSet(nil), p.Badges...)
	cp.ReviewedBookings = append([]string(nil), p.ReviewedBookings...)
	cp.OffenseBookings = append([]string(nil), p.OffenseBookings...)

	return &cp
}

func contains(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}

	return false
}

// RecomputeBadges is a pure function of f; the result is sorted so equal
// inputs always give byte-identical sets.
func RecomputeBadges(f Flags) BadgeSet {
	badges := make(BadgeSet, 0, 6) //nolint:gomnd

	if f.PhoneVerified {
		badges = append(badges, BadgePhoneVerified)
	}

	if f.IdentityDocumentStored {
		badges = append(badges, BadgeIDVerified)
	}

	if f.CompletedStays > 0 {
		badges = append(badges, BadgeExperiencedGuest)

		if f.HostRecommendationRate >= recommendedRate {
			badges = append(badges, BadgeHostRecommended)
		}
	}

	if f.SafetyPledgeAccepted {
		badges = append(badges, BadgeSafetyPledge)
	}

	if strings.TrimSpace(f.CommunityReference) != "" {
		badges = append(badges, BadgeCommunityVouched)
	}

	sort.Slice(badges, func(i, j int) bool { return badges[i] < badges[j] })

	return badges
}

// ApplyReviewOutcome folds an accepted host review of a guest into the
// guest's profile. A positive review resets the rate to 100; a negative one
// steps it down by 20, never below 0.
func ApplyReviewOutcome(p Profile, wouldHostAgain bool) Profile {
	p.Flags.CompletedStays++

	if wouldHostAgain {
		p.Flags.HostRecommendationRate = maxRate
	} else {
		p.Flags.HostRecommendationRate = max(0, p.Flags.HostRecommendationRate-reviewPenalty)
	}

	p.Badges = RecomputeBadges(p.Flags)

	return p
}

type EvidenceKind string

const (
	EvidencePhone            EvidenceKind = "PHONE"
	EvidenceIdentityDocument EvidenceKind = "IDENTITY_DOCUMENT"
	EvidenceCommunityVouch   EvidenceKind = "COMMUNITY_VOUCH"
	EvidenceSafetyPledge     EvidenceKind = "SAFETY_PLEDGE"
)

func ParseEvidenceKind(raw string) (EvidenceKind, bool) {
	switch k := EvidenceKind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case EvidencePhone, EvidenceIdentityDocument, EvidenceCommunityVouch, EvidenceSafetyPledge:
		return k, true
	default:
		return "", false
	}
}

// AdvanceVerificationLevel records accepted evidence. Levels only ratchet up:
// identity documents and community vouches lift a profile to level 2, and a
// profile holding phone, document and vouch together reaches level 3.
func AdvanceVerificationLevel(p Profile, kind EvidenceKind, contact string) Profile {
	switch kind {
	case EvidencePhone:
		p.Flags.PhoneVerified = true
	case EvidenceIdentityDocument:
		p.Flags.IdentityDocumentStored = true
		p.Level = max(p.Level, LevelVerified)
	case EvidenceCommunityVouch:
		p.Flags.CommunityReference = contact
		p.Level = max(p.Level, LevelVerified)
	case EvidenceSafetyPledge:
		p.Flags.SafetyPledgeAccepted = true
	}

	if p.Flags.PhoneVerified && p.Flags.IdentityDocumentStored && p.Flags.CommunityReference != "" {
		p.Level = max(p.Level, LevelTrusted)
	}

	p.Badges = RecomputeBadges(p.Flags)

	return p
}

type RiskClass string

const (
	RiskStandard  RiskClass = "STANDARD"
	RiskHighTouch RiskClass = "HIGH_TOUCH"
)

const (
	stepUpNights    = 5
	stepUpPartySize = 3
)

// ClassifyListingType maps a listing type to its risk class. Shared and
// family-hosted stays put the guest inside the host's household.
func ClassifyListingType(listingType string) RiskClass {
	switch strings.ToUpper(listingType) {
	case "SHARED_ROOM", "FAMILY_HOMESTAY":
		return RiskHighTouch
	default:
		return RiskStandard
	}
}

type Stay struct {
	Nights    int
	PartySize int
}

// RequiresStepUp reports whether the guest must verify further before the
// booking may leave the summary step.
func RequiresStepUp(stay Stay, p Profile, risk RiskClass) bool {
	if risk == RiskHighTouch && !p.Flags.PhoneVerified && !p.Flags.IdentityDocumentStored {
		return true
	}

	return (stay.Nights > stepUpNights || stay.PartySize > stepUpPartySize) && p.Level < LevelVerified
}
