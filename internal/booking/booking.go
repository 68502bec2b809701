package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/lock"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/notify"
	"github.com/avstrong/staytrust/internal/pricing"
	"github.com/avstrong/staytrust/internal/storage"
	"github.com/avstrong/staytrust/internal/trust"
)

const (
	maxGuestRequestLen = 500
	maxCommentLen      = 2000
)

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storageReader interface {
	GetBooking(ctx context.Context, id string) (*Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context) (*Booking, error)
	GetListing(ctx context.Context, id string) (*Listing, error)
	ListBookingsByStatus(ctx context.Context, statuses ...Status) ([]*Booking, error)
}

type storageWriter interface {
	storage.Transactor
	SaveBooking(ctx context.Context, booking *Booking) error
	AppendAuditEntry(ctx context.Context, entry audit.Entry) error
}

type bookingStorage interface {
	storageReader
	storageWriter
}

type profileReader interface {
	Profile(ctx context.Context, participantID string) (*trust.Profile, error)
}

type Config struct {
	L           *logger.Logger
	Storage     bookingStorage
	IDGenerator idGenerator
	Profiles    profileReader
	Pricing     pricing.Policy
	Locks       lock.Locker
	Stamper     *audit.Stamper
	Publisher   notify.Publisher
	Tracer      trace.Tracer
	Now         func() time.Time
}

// Manager is the booking ledger: the only component allowed to change a
// booking's status.
type Manager struct {
	l           *logger.Logger
	storage     bookingStorage
	idGenerator idGenerator
	profiles    profileReader
	pricing     pricing.Policy
	locks       lock.Locker
	stamper     *audit.Stamper
	publisher   notify.Publisher
	tracer      trace.Tracer
	now         func() time.Time
}

func New(conf Config) *Manager {
	now := conf.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	tracer := conf.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("booking")
	}

	return &Manager{
		l:           conf.L,
		storage:     conf.Storage,
		idGenerator: conf.IDGenerator,
		profiles:    conf.Profiles,
		pricing:     conf.Pricing,
		locks:       conf.Locks,
		stamper:     conf.Stamper,
		publisher:   conf.Publisher,
		tracer:      tracer,
		now:         now,
	}
}

func (m *Manager) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour) //nolint:gomnd
}

func (in *CreateInput) validate(today time.Time) error {
	inputErr := apperr.NewInputError()

	if strings.TrimSpace(in.ListingID) == "" {
		inputErr.AddError("listingId", "provide listingId")
	}

	if strings.TrimSpace(in.GuestID) == "" {
		inputErr.AddError("guestId", "provide guestId")
	}

	if in.PartySize < 1 {
		inputErr.AddError("partySize", "partySize must be at least 1")
	}

	validateDates(inputErr, in.Dates, today)

	return inputErr.OrNil()
}

func validateDates(inputErr *apperr.InputError, d Dates, today time.Time) {
	if d.Start.IsZero() || d.End.IsZero() {
		inputErr.AddError("dates", "provide start and end dates")

		return
	}

	if d.Start.Before(today) {
		inputErr.AddError("dates.start", "start must not be in the past")
	}

	if !d.End.After(d.Start) {
		inputErr.AddError("dates.end", "end must be after start")
	}
}

func (m *Manager) quote(listing *Listing, d Dates) (pricing.Quote, error) {
	q, err := m.pricing.Quote(listing.NightlyRate, d.Nights(), listing.Currency)
	if err != nil {
		if errors.Is(err, pricing.ErrNonPositiveRate) || errors.Is(err, pricing.ErrNonPositiveNights) {
			return pricing.Quote{}, apperr.Invalid("totalPrice", err.Error())
		}

		return pricing.Quote{}, fmt.Errorf("quote listing %s: %w", listing.ID, err)
	}

	return q, nil
}

func (b *Booking) applyQuote(q pricing.Quote) {
	b.NightlyRate = q.NightlyRate
	b.ServiceFee = q.ServiceFee
	b.TotalPrice = q.Total
	b.Currency = q.Currency
}

func (b *Booking) apply(ev Event) error {
	next, err := Next(b.Status, ev)
	if err != nil {
		return err
	}

	b.Status = next

	return nil
}

// CreateBooking opens a DRAFT booking. When ctx carries an idempotency key,
// a retry by the same guest with the same key returns the booking created the
// first time. Keys are scoped per guest.
//
//nolint:funlen,cyclop // linear validation
func (m *Manager) CreateBooking(ctx context.Context, a actor.Actor, input CreateInput) (_ *Booking, err error) {
	ctx, span := m.tracer.Start(ctx, "booking.CreateBooking")
	defer func() { endSpan(span, err) }()

	input.Dates = input.Dates.Normalize()
	if err := input.validate(m.today()); err != nil {
		return nil, err
	}

	if a.ID != input.GuestID && !a.IsAdmin() {
		return nil, apperr.Invalid("actor", "bookings are created by the guest")
	}

	if key, ok := IdempotencyKeyFromContext(ctx); ok {
		key = guestScopedKey(input.GuestID, key)
		ctx = NewContextWithIdempotencyKey(ctx, key)

		release, err := m.locks.Acquire(ctx, "idempotency:"+key)
		if err != nil {
			return nil, fmt.Errorf("lock idempotency key: %w", err)
		}
		defer release()

		existing, err := m.storage.GetBookingByIdempotencyKey(ctx)
		if err == nil {
			if existing.GuestID != input.GuestID || existing.ListingID != input.ListingID {
				return nil, apperr.Invalid("idempotencyKey", "key was already used for another booking request")
			}

			return existing, nil
		}

		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("get booking by idempotency key: %w", err)
		}
	}

	listing, err := m.storage.GetListing(ctx, input.ListingID)
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", input.ListingID, err)
	}

	if listing.HostID == input.GuestID {
		return nil, apperr.Invalid("guestId", "hosts cannot book their own listing")
	}

	if listing.MaxGuests > 0 && input.PartySize > listing.MaxGuests {
		return nil, apperr.Invalid("partySize", fmt.Sprintf("listing sleeps at most %d guests", listing.MaxGuests))
	}

	if _, err := m.profiles.Profile(ctx, input.GuestID); err != nil {
		return nil, fmt.Errorf("guest profile: %w", err)
	}

	q, err := m.quote(listing, input.Dates)
	if err != nil {
		return nil, err
	}

	id, err := m.idGenerator.GetID(ctx)
	if err != nil {
		return nil, ErrNextID
	}

	now := m.now()

	//nolint:exhaustruct
	b := &Booking{
		ID:        id,
		ListingID: listing.ID,
		GuestID:   input.GuestID,
		HostID:    listing.HostID,
		HostName:  listing.HostName,
		Dates:     input.Dates,
		PartySize: input.PartySize,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.applyQuote(q)

	entry := m.stamper.Entry(a, audit.ActionBookingCreated, "draft for listing %s, %d nights, total %d %s",
		listing.ID, b.Nights(), b.TotalPrice, b.Currency).ForBooking(b.ID)

	if err := m.persist(ctx, b, entry); err != nil {
		return nil, err
	}

	m.publish(ctx, b, entry)

	return b, nil
}

func (m *Manager) Booking(ctx context.Context, id string) (*Booking, error) {
	b, err := m.storage.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}

	return b, nil
}

// ChangeDates moves a DRAFT booking and reprices it.
func (m *Manager) ChangeDates(ctx context.Context, a actor.Actor, id string, dates Dates) (*Booking, error) {
	return m.mutate(ctx, a, id, "ChangeDates", func(b *Booking) (audit.Action, string, error) {
		if err := requireGuest(b, a); err != nil {
			return "", "", err
		}

		if err := requireStatus(b, "CHANGE_DATES", StatusDraft); err != nil {
			return "", "", err
		}

		dates = dates.Normalize()

		inputErr := apperr.NewInputError()
		validateDates(inputErr, dates, m.today())

		if err := inputErr.OrNil(); err != nil {
			return "", "", err
		}

		b.Dates = dates
		if err := m.reprice(ctx, b); err != nil {
			return "", "", err
		}

		return audit.ActionDatesChanged, fmt.Sprintf("dates %s..%s, total %d %s",
			dates.Start.Format(time.DateOnly), dates.End.Format(time.DateOnly), b.TotalPrice, b.Currency), nil
	})
}

func (m *Manager) reprice(ctx context.Context, b *Booking) error {
	listing, err := m.storage.GetListing(ctx, b.ListingID)
	if err != nil {
		return fmt.Errorf("get listing %s: %w", b.ListingID, err)
	}

	q, err := m.quote(listing, b.Dates)
	if err != nil {
		return err
	}

	b.applyQuote(q)

	return nil
}

// AcknowledgeRulesAndProceed moves a DRAFT booking past the summary step.
// The price is recomputed from the listing first and guests who need
// step-up verification are held back.
func (m *Manager) AcknowledgeRulesAndProceed(
	ctx context.Context,
	a actor.Actor,
	id string,
	acknowledged bool,
	guestRequest string,
) (*Booking, error) {
	return m.mutate(ctx, a, id, "AcknowledgeRulesAndProceed", func(b *Booking) (audit.Action, string, error) {
		if err := requireGuest(b, a); err != nil {
			return "", "", err
		}

		if _, err := Next(b.Status, EventConfirmDetails); err != nil {
			return "", "", err
		}

		inputErr := apperr.NewInputError()

		if !acknowledged {
			inputErr.AddError("rulesAcknowledged", "house rules must be acknowledged")
		}

		if len(guestRequest) > maxGuestRequestLen {
			inputErr.AddError("guestRequest", fmt.Sprintf("guestRequest must not exceed %d characters", maxGuestRequestLen))
		}

		if !b.Dates.End.After(b.Dates.Start) {
			inputErr.AddError("dates.end", "end must be after start")
		}

		if err := inputErr.OrNil(); err != nil {
			return "", "", err
		}

		if err := m.reprice(ctx, b); err != nil {
			return "", "", err
		}

		stepUp, err := m.stepUpRequired(ctx, b)
		if err != nil {
			return "", "", err
		}

		if stepUp {
			return "", "", apperr.Invalid("verification", "additional verification is required before continuing")
		}

		b.RulesAcknowledged = true
		b.GuestRequest = strings.TrimSpace(guestRequest)

		if err := b.apply(EventConfirmDetails); err != nil {
			return "", "", err
		}

		return audit.ActionRulesAcknowledged, fmt.Sprintf("rules acknowledged, total %d %s (%d x %d + %d)",
			b.TotalPrice, b.Currency, b.NightlyRate, b.Nights(), b.ServiceFee), nil
	})
}

// StepUpRequired tells the booking flow whether the guest has to verify
// further before leaving the summary step.
func (m *Manager) StepUpRequired(ctx context.Context, id string) (bool, error) {
	b, err := m.Booking(ctx, id)
	if err != nil {
		return false, err
	}

	return m.stepUpRequired(ctx, b)
}

func (m *Manager) stepUpRequired(ctx context.Context, b *Booking) (bool, error) {
	listing, err := m.storage.GetListing(ctx, b.ListingID)
	if err != nil {
		return false, fmt.Errorf("get listing %s: %w", b.ListingID, err)
	}

	profile, err := m.profiles.Profile(ctx, b.GuestID)
	if err != nil {
		return false, fmt.Errorf("guest profile: %w", err)
	}

	stay := trust.Stay{Nights: b.Nights(), PartySize: b.PartySize}

	return trust.RequiresStepUp(stay, *profile, trust.ClassifyListingType(string(listing.Type))), nil
}

func (m *Manager) SelectPaymentMethod(ctx context.Context, a actor.Actor, id string, method PaymentMethod) (*Booking, error) {
	return m.mutate(ctx, a, id, "SelectPaymentMethod", func(b *Booking) (audit.Action, string, error) {
		if err := requireGuest(b, a); err != nil {
			return "", "", err
		}

		if err := requireStatus(b, "SELECT_PAYMENT_METHOD", StatusPendingPayment); err != nil {
			return "", "", err
		}

		if _, ok := ParsePaymentMethod(string(method)); !ok {
			return "", "", apperr.Invalid("paymentMethod", fmt.Sprintf("unsupported payment method '%s'", method))
		}

		b.PaymentMethod = method

		return audit.ActionPaymentMethodSelected, fmt.Sprintf("payment method %s", method), nil
	})
}

// MarkGuestPaymentSent records the guest's off-platform payment. From
// PENDING_PAYMENT it completes the payment step; on a PENDING_APPROVAL
// booking with an open payment issue it is the guest's retry.
func (m *Manager) MarkGuestPaymentSent(ctx context.Context, a actor.Actor, id string) (*Booking, error) {
	return m.mutate(ctx, a, id, "MarkGuestPaymentSent", func(b *Booking) (audit.Action, string, error) {
		if err := requireGuest(b, a); err != nil {
			return "", "", err
		}

		if b.Status == StatusPendingApproval && b.PaymentIssue != "" {
			previous := b.PaymentIssue
			b.PaymentIssue = ""
			b.GuestPaymentSent = true

			return audit.ActionGuestPaymentSent, fmt.Sprintf("payment re-sent after host report: %s", previous), nil
		}

		if _, err := Next(b.Status, EventCompletePayment); err != nil {
			return "", "", err
		}

		inputErr := apperr.NewInputError()

		if b.PaymentMethod == "" {
			inputErr.AddError("paymentMethod", "select a payment method first")
		}

		if b.TotalPrice <= 0 {
			inputErr.AddError("totalPrice", "totalPrice must be positive")
		}

		if err := inputErr.OrNil(); err != nil {
			return "", "", err
		}

		b.GuestPaymentSent = true

		if err := b.apply(EventCompletePayment); err != nil {
			return "", "", err
		}

		return audit.ActionGuestPaymentSent, fmt.Sprintf("guest sent %d %s via %s", b.TotalPrice, b.Currency, b.PaymentMethod), nil
	})
}

func (m *Manager) ConfirmHostPaymentReceived(ctx context.Context, a actor.Actor, id string) (*Booking, error) {
	return m.mutate(ctx, a, id, "ConfirmHostPaymentReceived", func(b *Booking) (audit.Action, string, error) {
		if err := requireHost(b, a); err != nil {
			return "", "", err
		}

		if err := b.apply(EventApprove); err != nil {
			return "", "", err
		}

		b.HostPaymentConfirmed = true
		b.PaymentIssue = ""

		return audit.ActionHostPaymentConfirmed, fmt.Sprintf("host confirmed %d %s received", b.TotalPrice, b.Currency), nil
	})
}

// Approve accepts a PENDING_APPROVAL booking on behalf of the host or the
// system's auto-accept.
func (m *Manager) Approve(ctx context.Context, a actor.Actor, id string) (*Booking, error) {
	return m.mutate(ctx, a, id, "Approve", func(b *Booking) (audit.Action, string, error) {
		if err := requireAny(func() error { return requireHost(b, a) }, isSystemOrOperator(a)); err != nil {
			return "", "", err
		}

		if _, err := Next(b.Status, EventApprove); err != nil {
			return "", "", err
		}

		if b.PaymentIssue != "" {
			return "", "", apperr.Invalid("paymentIssue", "the open payment issue must be settled first")
		}

		if err := b.apply(EventApprove); err != nil {
			return "", "", err
		}

		return audit.ActionBookingApproved, "booking approved", nil
	})
}

// RecordPaymentIssue stores the host's report that money did not arrive.
// The status is unchanged; approval is blocked until the guest re-sends or
// the host confirms.
func (m *Manager) RecordPaymentIssue(ctx context.Context, a actor.Actor, id, reason string) (*Booking, error) {
	return m.mutate(ctx, a, id, "RecordPaymentIssue", func(b *Booking) (audit.Action, string, error) {
		if err := requireHost(b, a); err != nil {
			return "", "", err
		}

		if err := requireStatus(b, "REPORT_PAYMENT_NOT_RECEIVED", StatusPendingApproval); err != nil {
			return "", "", err
		}

		reason = strings.TrimSpace(reason)
		if reason == "" {
			return "", "", apperr.Invalid("reason", "provide a reason")
		}

		b.PaymentIssue = reason
		b.GuestPaymentSent = false

		return audit.ActionPaymentNotReceived, fmt.Sprintf("host reports payment not received: %s", reason), nil
	})
}

// TransitionOnClock applies a date-boundary event from the scheduler.
func (m *Manager) TransitionOnClock(ctx context.Context, a actor.Actor, id string, ev ClockEvent) (*Booking, error) {
	return m.mutate(ctx, a, id, "TransitionOnClock", func(b *Booking) (audit.Action, string, error) {
		if err := isSystemOrOperator(a)(); err != nil {
			return "", "", err
		}

		today := m.today()

		switch ev {
		case ClockCheckIn:
			if _, err := Next(b.Status, EventCheckIn); err != nil {
				return "", "", err
			}

			if today.Before(b.Dates.Start) {
				return "", "", apperr.Invalid("event", fmt.Sprintf("check-in date %s not reached", b.Dates.Start.Format(time.DateOnly)))
			}

			if err := b.apply(EventCheckIn); err != nil {
				return "", "", err
			}

			return audit.ActionCheckIn, "stay started", nil
		case ClockCheckOut:
			if _, err := Next(b.Status, EventCheckOut); err != nil {
				return "", "", err
			}

			if today.Before(b.Dates.End) {
				return "", "", apperr.Invalid("event", fmt.Sprintf("check-out date %s not reached", b.Dates.End.Format(time.DateOnly)))
			}

			if err := b.apply(EventCheckOut); err != nil {
				return "", "", err
			}

			if !b.SafetyCheckPerformed {
				m.l.LogWarn("Booking %s completed without a safety check", b.ID)

				return audit.ActionCheckOut, "stay completed; safety check was not performed", nil
			}

			return audit.ActionCheckOut, "stay completed", nil
		default:
			return "", "", apperr.Invalid("event", fmt.Sprintf("unknown clock event '%s'", ev))
		}
	})
}

// RecordSafetyCheck stores the guest's one safety check of an active stay.
// An unsatisfied check opens a dispute in the same step, using
// autoDisputeReason.
func (m *Manager) RecordSafetyCheck(
	ctx context.Context,
	a actor.Actor,
	id string,
	satisfied bool,
	autoDisputeReason string,
) (*Booking, error) {
	return m.mutate(ctx, a, id, "RecordSafetyCheck", func(b *Booking) (audit.Action, string, error) {
		if err := requireGuest(b, a); err != nil {
			return "", "", err
		}

		if err := requireStatus(b, "SAFETY_CHECK", StatusActiveStay); err != nil {
			return "", "", err
		}

		if b.SafetyCheckPerformed {
			return "", "", apperr.Invalid("safetyCheckPerformed", "safety check was already performed")
		}

		b.SafetyCheckPerformed = true
		b.SafetyCheckSatisfied = &satisfied

		if satisfied {
			return audit.ActionSafetyCheckPassed, "guest reports feeling safe", nil
		}

		autoDisputeReason = strings.TrimSpace(autoDisputeReason)
		if autoDisputeReason == "" {
			return "", "", apperr.Invalid("reason", "a failed safety check needs a dispute reason")
		}

		if err := b.apply(EventReportIssue); err != nil {
			return "", "", err
		}

		b.DisputeReason = autoDisputeReason
		b.DisputeInitiatedBy = actor.RoleGuest

		return audit.ActionSafetyCheckFailed, fmt.Sprintf("safety check failed, dispute opened: %s", autoDisputeReason), nil
	})
}

// ReportIssue moves a CONFIRMED or ACTIVE_STAY booking into DISPUTED.
// Parties report for themselves; the system or an operator may report on
// behalf of either party.
func (m *Manager) ReportIssue(ctx context.Context, a actor.Actor, id string, initiator actor.Role, reason string) (*Booking, error) {
	return m.mutate(ctx, a, id, "ReportIssue", func(b *Booking) (audit.Action, string, error) {
		if initiator != actor.RoleGuest && initiator != actor.RoleHost {
			return "", "", apperr.Invalid("initiator", "disputes are initiated by the guest or the host")
		}

		if role, ok := b.RoleOf(a.ID); ok {
			if role != initiator {
				return "", "", apperr.Invalid("initiator", fmt.Sprintf("actor is the %s of this booking", strings.ToLower(string(role))))
			}
		} else if err := isSystemOrOperator(a)(); err != nil {
			return "", "", err
		}

		if _, err := Next(b.Status, EventReportIssue); err != nil {
			return "", "", err
		}

		reason = strings.TrimSpace(reason)
		if reason == "" {
			return "", "", apperr.Invalid("disputeReason", "provide a dispute reason")
		}

		if err := b.apply(EventReportIssue); err != nil {
			return "", "", err
		}

		b.DisputeReason = reason
		b.DisputeInitiatedBy = initiator

		return audit.ActionDisputeFiled, fmt.Sprintf("dispute filed by %s: %s", initiator, reason), nil
	})
}

// ResolveDispute applies an operator's binding decision. A dispute is
// resolved once; repeating the call fails with ErrAlreadyResolved.
func (m *Manager) ResolveDispute(ctx context.Context, a actor.Actor, id string, outcome DisputeOutcome, note string) (*Booking, error) {
	return m.mutate(ctx, a, id, "ResolveDispute", func(b *Booking) (audit.Action, string, error) {
		if err := requireOperator(a); err != nil {
			return "", "", err
		}

		if b.DisputeResolution != "" {
			return "", "", fmt.Errorf("booking %s resolved as %s: %w", b.ID, b.DisputeOutcome, apperr.ErrAlreadyResolved)
		}

		var ev Event

		switch outcome {
		case OutcomeRefund:
			ev = EventResolveForGuest
		case OutcomePayHost:
			ev = EventResolveForHost
		default:
			return "", "", apperr.Invalid("outcome", fmt.Sprintf("unknown outcome '%s'", outcome))
		}

		if _, err := Next(b.Status, ev); err != nil {
			return "", "", err
		}

		note = strings.TrimSpace(note)
		if note == "" {
			return "", "", apperr.Invalid("decisionNote", "operators must justify the decision")
		}

		if err := b.apply(ev); err != nil {
			return "", "", err
		}

		b.DisputeResolution = note
		b.DisputeOutcome = outcome
		b.DisputeResolvedBy = a.ID

		return audit.ActionDisputeResolved, fmt.Sprintf("resolved %s: %s", outcome, note), nil
	})
}

// AddEvidence attaches a statement or document reference to an open dispute.
func (m *Manager) AddEvidence(ctx context.Context, a actor.Actor, id, note, reference string) (*Booking, error) {
	return m.mutate(ctx, a, id, "AddEvidence", func(b *Booking) (audit.Action, string, error) {
		role, isParty := b.RoleOf(a.ID)
		if !isParty {
			if err := requireOperator(a); err != nil {
				return "", "", err
			}

			role = a.Role
		}

		if err := requireStatus(b, "ADD_EVIDENCE", StatusDisputed); err != nil {
			return "", "", err
		}

		note = strings.TrimSpace(note)
		if note == "" {
			return "", "", apperr.Invalid("note", "provide an evidence note")
		}

		evidenceID, err := m.idGenerator.GetID(ctx)
		if err != nil {
			return "", "", ErrNextID
		}

		b.Evidence = append(b.Evidence, Evidence{
			ID:          evidenceID,
			SubmittedBy: role,
			ActorID:     a.ID,
			Note:        note,
			Reference:   strings.TrimSpace(reference),
			CreatedAt:   m.now(),
		})

		return audit.ActionEvidenceAdded, fmt.Sprintf("evidence %s added by %s", evidenceID, role), nil
	})
}

func (m *Manager) Cancel(ctx context.Context, a actor.Actor, id, reason string) (*Booking, error) {
	return m.mutate(ctx, a, id, "Cancel", func(b *Booking) (audit.Action, string, error) {
		if _, isParty := b.RoleOf(a.ID); !isParty {
			if err := requireOperator(a); err != nil {
				return "", "", err
			}
		}

		if err := b.apply(EventCancel); err != nil {
			return "", "", err
		}

		b.CancellationReason = strings.TrimSpace(reason)

		return audit.ActionBookingCancelled, fmt.Sprintf("cancelled: %s", b.CancellationReason), nil
	})
}

// ReleasePayout flips PayoutReleased once for a COMPLETED booking.
func (m *Manager) ReleasePayout(ctx context.Context, a actor.Actor, id string) (*Booking, error) {
	return m.mutate(ctx, a, id, "ReleasePayout", func(b *Booking) (audit.Action, string, error) {
		if err := requireAny(func() error { return requireHost(b, a) }, isSystemOrOperator(a)); err != nil {
			return "", "", err
		}

		if b.PayoutReleased {
			return "", "", fmt.Errorf("booking %s: %w", b.ID, apperr.ErrAlreadyReleased)
		}

		if err := requireStatus(b, "RELEASE_PAYOUT", StatusCompleted); err != nil {
			return "", "", err
		}

		now := m.now()
		b.PayoutReleased = true
		b.PayoutReleasedAt = &now

		return audit.ActionPayoutReleased, fmt.Sprintf("payout of %d %s released to host %s", b.TotalPrice-b.ServiceFee, b.Currency, b.HostID), nil
	})
}

// AttachReview stores a party's review of a COMPLETED stay. Each role
// reviews once.
func (m *Manager) AttachReview(ctx context.Context, a actor.Actor, id string, review StructuredReview) (*Booking, error) {
	return m.mutate(ctx, a, id, "AttachReview", func(b *Booking) (audit.Action, string, error) {
		role, ok := b.RoleOf(a.ID)
		if !ok {
			return "", "", apperr.Invalid("actor", "only the guest or the host can review this stay")
		}

		if err := requireStatus(b, "SUBMIT_REVIEW", StatusCompleted); err != nil {
			return "", "", err
		}

		if b.ReviewBy(role) != nil {
			return "", "", fmt.Errorf("%s review of booking %s: %w", strings.ToLower(string(role)), b.ID, apperr.ErrAlreadyReviewed)
		}

		review.Role = role
		if err := review.validate(); err != nil {
			return "", "", err
		}

		review.Comment = strings.TrimSpace(review.Comment)
		review.SubmittedAt = m.now()

		if role == actor.RoleGuest {
			b.GuestReview = &review
		} else {
			b.HostReview = &review
		}

		return audit.ActionReviewSubmitted, fmt.Sprintf("%s review submitted", strings.ToLower(string(role))), nil
	})
}

func (r *StructuredReview) validate() error {
	inputErr := apperr.NewInputError()

	switch r.Role {
	case actor.RoleGuest:
		if r.Guest == nil || r.Host != nil {
			inputErr.AddError("answers", "guests answer feltSafe, accurateListing and wouldReturn")
		}
	case actor.RoleHost:
		if r.Host == nil || r.Guest != nil {
			inputErr.AddError("answers", "hosts answer wouldHostAgain, respectedRules and safetyConcerns")
		}
	default:
		inputErr.AddError("role", "reviews are written by guests or hosts")
	}

	if len(r.Comment) > maxCommentLen {
		inputErr.AddError("comment", fmt.Sprintf("comment must not exceed %d characters", maxCommentLen))
	}

	return inputErr.OrNil()
}

type ClockDue struct {
	BookingID string
	Event     ClockEvent
}

// DueForClock lists bookings whose check-in or check-out day has come.
func (m *Manager) DueForClock(ctx context.Context, now time.Time) ([]ClockDue, error) {
	bookings, err := m.storage.ListBookingsByStatus(ctx, StatusConfirmed, StatusActiveStay)
	if err != nil {
		return nil, fmt.Errorf("list bookings for clock: %w", err)
	}

	today := now.UTC().Truncate(24 * time.Hour) //nolint:gomnd

	var due []ClockDue

	for _, b := range bookings {
		switch {
		case b.Status == StatusConfirmed && !today.Before(b.Dates.Start):
			due = append(due, ClockDue{BookingID: b.ID, Event: ClockCheckIn})
		case b.Status == StatusActiveStay && !today.Before(b.Dates.End):
			due = append(due, ClockDue{BookingID: b.ID, Event: ClockCheckOut})
		}
	}

	return due, nil
}

// mutate runs fn on a fresh copy of the booking under the booking's lock.
// Nothing is written when fn fails.
func (m *Manager) mutate(
	ctx context.Context,
	a actor.Actor,
	id string,
	op string,
	fn func(b *Booking) (audit.Action, string, error),
) (_ *Booking, err error) {
	ctx, span := m.tracer.Start(ctx, "booking."+op, trace.WithAttributes(
		attribute.String("booking.id", id),
		attribute.String("actor.id", a.ID),
	))
	defer func() { endSpan(span, err) }()

	release, err := m.locks.Acquire(ctx, lock.BookingKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}
	defer release()

	b, err := m.storage.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}

	from := b.Status

	action, detail, err := fn(b)
	if err != nil {
		return nil, err
	}

	b.UpdatedAt = m.now()

	if from != b.Status {
		detail = fmt.Sprintf("%s -> %s: %s", from, b.Status, detail)
	}

	entry := m.stamper.Entry(a, action, "%s", detail).ForBooking(b.ID)

	if err := m.persist(ctx, b, entry); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("booking.status", string(b.Status)))
	m.publish(ctx, b, entry)

	return b, nil
}

func (m *Manager) persist(ctx context.Context, b *Booking, entry audit.Entry) error {
	return storage.InTransaction(ctx, m.l, m.storage, "booking", func(ctx context.Context) error {
		if err := m.storage.SaveBooking(ctx, b); err != nil {
			return fmt.Errorf("save booking %s to storage: %w", b.ID, err)
		}

		if err := m.storage.AppendAuditEntry(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		return nil
	})
}

func (m *Manager) publish(ctx context.Context, b *Booking, entry audit.Entry) {
	if m.publisher == nil {
		return
	}

	event := notify.Event{
		ID:         entry.ID,
		Type:       strings.ToLower(string(entry.Action)),
		BookingID:  b.ID,
		Status:     string(b.Status),
		GuestID:    b.GuestID,
		HostID:     b.HostID,
		ActorID:    entry.ActorID,
		Detail:     entry.Details,
		OccurredAt: entry.Timestamp,
	}

	if err := m.publisher.Publish(ctx, event); err != nil {
		m.l.LogErrorf("Could not publish %s for booking %s: %v", event.Type, b.ID, err.Error())
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
