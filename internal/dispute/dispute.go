// Package dispute is the operator-facing side of the booking lifecycle:
// filing and resolving disputes, evidence, safety checks and payment
// mismatches. Status changes are delegated to the booking ledger.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/trust"
)

const (
	// SafetyCheckReason is filed on the guest's behalf when the in-stay
	// safety check fails.
	SafetyCheckReason = "Guest reported not feeling safe during the in-stay safety check"

	paymentNotReceivedPrefix = "Payment not received: "
)

type ledger interface {
	Booking(ctx context.Context, id string) (*booking.Booking, error)
	ReportIssue(ctx context.Context, a actor.Actor, id string, initiator actor.Role, reason string) (*booking.Booking, error)
	ResolveDispute(ctx context.Context, a actor.Actor, id string, outcome booking.DisputeOutcome, note string) (*booking.Booking, error)
	AddEvidence(ctx context.Context, a actor.Actor, id, note, reference string) (*booking.Booking, error)
	RecordSafetyCheck(ctx context.Context, a actor.Actor, id string, satisfied bool, autoDisputeReason string) (*booking.Booking, error)
	RecordPaymentIssue(ctx context.Context, a actor.Actor, id, reason string) (*booking.Booking, error)
}

type offenseRecorder interface {
	RecordDisputeOffense(ctx context.Context, a actor.Actor, participantID, bookingID string) (*trust.Profile, error)
}

type Config struct {
	L        *logger.Logger
	Ledger   ledger
	Offenses offenseRecorder
}

type Service struct {
	l        *logger.Logger
	ledger   ledger
	offenses offenseRecorder
}

func NewService(conf Config) *Service {
	return &Service{
		l:        conf.L,
		ledger:   conf.Ledger,
		offenses: conf.Offenses,
	}
}

// FileDispute opens a dispute. Parties may leave initiator empty and file as
// themselves; operators must name the party they file for.
func (s *Service) FileDispute(ctx context.Context, a actor.Actor, bookingID string, initiator actor.Role, reason string) (*booking.Booking, error) {
	if initiator == "" {
		b, err := s.ledger.Booking(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		role, ok := b.RoleOf(a.ID)
		if !ok {
			return nil, apperr.Invalid("initiator", "name the party the dispute is filed for")
		}

		initiator = role
	}

	return s.ledger.ReportIssue(ctx, a, bookingID, initiator, reason)
}

// ResolveDispute applies the operator's decision and counts an offense
// against the party found at fault: the host when the guest is refunded, the
// guest when a host-initiated dispute ends in the host's favour.
func (s *Service) ResolveDispute(
	ctx context.Context,
	operator actor.Actor,
	bookingID string,
	outcome booking.DisputeOutcome,
	note string,
) (*booking.Booking, error) {
	b, err := s.ledger.ResolveDispute(ctx, operator, bookingID, outcome, note)
	if errors.Is(err, apperr.ErrAlreadyResolved) {
		stored, getErr := s.ledger.Booking(ctx, bookingID)
		if getErr != nil {
			return nil, err
		}

		if recordErr := s.recordOffense(ctx, operator, stored); recordErr != nil {
			return nil, errors.Join(err, recordErr)
		}

		return nil, err
	}

	if err != nil {
		return nil, err
	}

	if err := s.recordOffense(ctx, operator, b); err != nil {
		return nil, err
	}

	return b, nil
}

// recordOffense counts the resolved dispute against the party at fault. The
// engine counts each booking once, so a repeated resolve attempt completes an
// offense whose first recording failed.
func (s *Service) recordOffense(ctx context.Context, operator actor.Actor, b *booking.Booking) error {
	atFault := atFaultParty(b)
	if atFault == "" {
		return nil
	}

	if _, err := s.offenses.RecordDisputeOffense(ctx, operator, atFault, b.ID); err != nil {
		s.l.LogErrorf("Dispute on booking %s resolved but offense for %s not recorded: %v", b.ID, atFault, err.Error())

		return fmt.Errorf("record offense for %s: %w", atFault, err)
	}

	return nil
}

func atFaultParty(b *booking.Booking) string {
	switch {
	case b.DisputeOutcome == booking.OutcomeRefund:
		return b.HostID
	case b.DisputeOutcome == booking.OutcomePayHost && b.DisputeInitiatedBy == actor.RoleHost:
		return b.GuestID
	default:
		return ""
	}
}

func (s *Service) AddEvidence(ctx context.Context, a actor.Actor, bookingID, note, reference string) (*booking.Booking, error) {
	return s.ledger.AddEvidence(ctx, a, bookingID, note, reference)
}

// PerformSafetyCheck records the guest's answer. A guest who does not feel
// safe does not have to explain: the dispute is filed with a fixed reason.
func (s *Service) PerformSafetyCheck(ctx context.Context, guest actor.Actor, bookingID string, satisfied bool) (*booking.Booking, error) {
	b, err := s.ledger.RecordSafetyCheck(ctx, guest, bookingID, satisfied, SafetyCheckReason)
	if err != nil {
		return nil, err
	}

	if !satisfied {
		s.l.LogWarn("Safety check failed for booking %s, dispute opened", b.ID)
	}

	return b, nil
}

// ReportPaymentNotReceived handles a host who cannot find the guest's
// payment. Before approval it is a payment issue the guest can settle by
// paying again; once the booking is confirmed it becomes a dispute.
func (s *Service) ReportPaymentNotReceived(ctx context.Context, host actor.Actor, bookingID, reason string) (*booking.Booking, error) {
	b, err := s.ledger.Booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if host.ID != b.HostID {
		return nil, apperr.Invalid("actor", fmt.Sprintf("only the host of booking %s can do this", b.ID))
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "provide a reason")
	}

	switch b.Status {
	case booking.StatusPendingApproval:
		return s.ledger.RecordPaymentIssue(ctx, host, bookingID, reason)
	case booking.StatusConfirmed, booking.StatusActiveStay:
		return s.ledger.ReportIssue(ctx, host, bookingID, actor.RoleHost, paymentNotReceivedPrefix+reason)
	default:
		return nil, &apperr.TransitionError{From: string(b.Status), To: "", Event: "REPORT_PAYMENT_NOT_RECEIVED"}
	}
}
