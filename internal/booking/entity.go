package booking

import (
	"math"
	"strings"
	"time"

	"github.com/avstrong/staytrust/internal/actor"
)

type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingPayment  Status = "PENDING_PAYMENT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusConfirmed       Status = "CONFIRMED"
	StatusActiveStay      Status = "ACTIVE_STAY"
	StatusCompleted       Status = "COMPLETED"
	StatusDisputed        Status = "DISPUTED"
	StatusCancelled       Status = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentMobileMoney   PaymentMethod = "MOBILE_MONEY"
	PaymentAirtelMoney   PaymentMethod = "AIRTEL_MONEY"
	PaymentBankTransfer  PaymentMethod = "BANK_TRANSFER"
	PaymentCashOnArrival PaymentMethod = "CASH_ON_ARRIVAL"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case PaymentMobileMoney, PaymentAirtelMoney, PaymentBankTransfer, PaymentCashOnArrival:
		return m, true
	default:
		return "", false
	}
}

type DisputeOutcome string

const (
	OutcomeRefund  DisputeOutcome = "REFUND"
	OutcomePayHost DisputeOutcome = "PAY_HOST"
)

type ClockEvent string

const (
	ClockCheckIn  ClockEvent = "CHECK_IN"
	ClockCheckOut ClockEvent = "CHECK_OUT"
)

type ListingType string

const (
	ListingEntirePlace    ListingType = "ENTIRE_PLACE"
	ListingPrivateRoom    ListingType = "PRIVATE_ROOM"
	ListingSharedRoom     ListingType = "SHARED_ROOM"
	ListingFamilyHomestay ListingType = "FAMILY_HOMESTAY"
)

// Listing is read from the listing catalog; the core never edits it.
type Listing struct {
	ID          string      `json:"id"`
	HostID      string      `json:"host_id"`
	HostName    string      `json:"host_name"`
	Title       string      `json:"title"`
	Type        ListingType `json:"type"`
	NightlyRate int64       `json:"nightly_rate"`
	Currency    string      `json:"currency"`
	MaxGuests   int         `json:"max_guests"`
}

// Dates are calendar days in UTC.
type Dates struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (d Dates) Normalize() Dates {
	return Dates{
		Start: d.Start.UTC().Truncate(24 * time.Hour), //nolint:gomnd
		End:   d.End.UTC().Truncate(24 * time.Hour),   //nolint:gomnd
	}
}

func (d Dates) Nights() int {
	return int(math.Ceil(d.End.Sub(d.Start).Hours() / 24)) //nolint:gomnd
}

type GuestAnswers struct {
	FeltSafe        bool `json:"felt_safe"`
	AccurateListing bool `json:"accurate_listing"`
	WouldReturn     bool `json:"would_return"`
}

type HostAnswers struct {
	WouldHostAgain bool `json:"would_host_again"`
	RespectedRules bool `json:"respected_rules"`
	SafetyConcerns bool `json:"safety_concerns"`
}

// StructuredReview is immutable once attached to a booking.
type StructuredReview struct {
	Role        actor.Role    `json:"role"`
	Guest       *GuestAnswers `json:"guest,omitempty"`
	Host        *HostAnswers  `json:"host,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

func (r *StructuredReview) clone() *StructuredReview {
	if r == nil {
		return nil
	}

	cp := *r

	if r.Guest != nil {
		g := *r.Guest
		cp.Guest = &g
	}

	if r.Host != nil {
		h := *r.Host
		cp.Host = &h
	}

	return &cp
}

type Evidence struct {
	ID          string     `json:"id"`
	SubmittedBy actor.Role `json:"submitted_by"`
	ActorID     string     `json:"actor_id"`
	Note        string     `json:"note"`
	Reference   string     `json:"reference,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Booking struct {
	ID        string `json:"id"`
	ListingID string `json:"listing_id"`
	GuestID   string `json:"guest_id"`
	HostID    string `json:"host_id"`
	HostName  string `json:"host_name"`
	Dates     Dates  `json:"dates"`
	PartySize int    `json:"party_size"`

	NightlyRate int64  `json:"nightly_rate"`
	ServiceFee  int64  `json:"service_fee"`
	TotalPrice  int64  `json:"total_price"`
	Currency    string `json:"currency"`

	PaymentMethod        PaymentMethod `json:"payment_method,omitempty"`
	GuestPaymentSent     bool          `json:"guest_payment_sent"`
	HostPaymentConfirmed bool          `json:"host_payment_confirmed"`
	PaymentIssue         string        `json:"payment_issue,omitempty"`
	PayoutReleased       bool          `json:"payout_released"`
	PayoutReleasedAt     *time.Time    `json:"payout_released_at,omitempty"`

	Status Status `json:"status"`

	RulesAcknowledged bool   `json:"rules_acknowledged"`
	GuestRequest      string `json:"guest_request,omitempty"`

	// Reviews are only exposed through the review exchange.
	GuestReview *StructuredReview `json:"-"`
	HostReview  *StructuredReview `json:"-"`

	DisputeReason      string         `json:"dispute_reason,omitempty"`
	DisputeInitiatedBy actor.Role     `json:"dispute_initiated_by,omitempty"`
	DisputeResolution  string         `json:"dispute_resolution,omitempty"`
	DisputeOutcome     DisputeOutcome `json:"dispute_outcome,omitempty"`
	DisputeResolvedBy  string         `json:"dispute_resolved_by,omitempty"`
	Evidence           []Evidence     `json:"evidence,omitempty"`

	SafetyCheckPerformed bool  `json:"safety_check_performed"`
	SafetyCheckSatisfied *bool `json:"safety_check_satisfied,omitempty"`

	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Clone deep-copies b so callers can mutate it without touching stored state.
func (b *Booking) Clone() *Booking {
	cp := *b
	cp.GuestReview = b.GuestReview.clone()
	cp.HostReview = b.HostReview.clone()
	cp.Evidence = append([]Evidence(nil), b.Evidence...)

	if b.SafetyCheckSatisfied != nil {
		v := *b.SafetyCheckSatisfied
		cp.SafetyCheckSatisfied = &v
	}

	if b.PayoutReleasedAt != nil {
		v := *b.PayoutReleasedAt
		cp.PayoutReleasedAt = &v
	}

	return &cp
}

func (b *Booking) Nights() int {
	return b.Dates.Nights()
}

// RoleOf reports how participantID relates to the booking.
func (b *Booking) RoleOf(participantID string) (actor.Role, bool) {
	switch participantID {
	case b.GuestID:
		return actor.RoleGuest, true
	case b.HostID:
		return actor.RoleHost, true
	default:
		return "", false
	}
}

func (b *Booking) ReviewBy(role actor.Role) *StructuredReview {
	switch role {
	case actor.RoleGuest:
		return b.GuestReview
	case actor.RoleHost:
		return b.HostReview
	default:
		return nil
	}
}

type CreateInput struct {
	ListingID string `json:"listing_id"`
	GuestID   string `json:"guest_id"`
	Dates     Dates  `json:"dates"`
	PartySize int    `json:"party_size"`
}
