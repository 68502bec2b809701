// Package review runs the double-blind review exchange of a completed stay.
// Each party's review is stored the moment it is submitted; its content is
// revealed to the counterpart only once both parties have submitted.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/trust"
)

type ledger interface {
	Booking(ctx context.Context, id string) (*booking.Booking, error)
	AttachReview(ctx context.Context, a actor.Actor, id string, review booking.StructuredReview) (*booking.Booking, error)
}

type outcomeApplier interface {
	ApplyReviewOutcome(ctx context.Context, a actor.Actor, guestID, bookingID string, wouldHostAgain bool) (*trust.Profile, error)
}

type Config struct {
	L      *logger.Logger
	Ledger ledger
	Trust  outcomeApplier
}

type Coordinator struct {
	l      *logger.Logger
	ledger ledger
	trust  outcomeApplier
}

func NewCoordinator(conf Config) *Coordinator {
	return &Coordinator{
		l:      conf.L,
		ledger: conf.Ledger,
		trust:  conf.Trust,
	}
}

// Exchange is one viewer's picture of a booking's reviews. A counterpart's
// review stays nil until Revealed, while its existence is always reported.
type Exchange struct {
	BookingID      string                    `json:"booking_id"`
	Viewer         actor.Role                `json:"viewer"`
	GuestSubmitted bool                      `json:"guest_submitted"`
	HostSubmitted  bool                      `json:"host_submitted"`
	Revealed       bool                      `json:"revealed"`
	Guest          *booking.StructuredReview `json:"guest_review,omitempty"`
	Host           *booking.StructuredReview `json:"host_review,omitempty"`
}

// SubmitReview stores a's review of the stay. The reviewer's role comes from
// their relation to the booking. A host review also feeds the guest's trust
// profile; when that step fails, the host's resubmission completes it and
// still reports AlreadyReviewed.
func (c *Coordinator) SubmitReview(ctx context.Context, a actor.Actor, bookingID string, review booking.StructuredReview) (*Exchange, error) {
	b, err := c.ledger.AttachReview(ctx, a, bookingID, review)
	if errors.Is(err, apperr.ErrAlreadyReviewed) {
		stored, getErr := c.ledger.Booking(ctx, bookingID)
		if getErr != nil {
			return nil, err
		}

		if applyErr := c.applyHostOutcome(ctx, a, stored); applyErr != nil {
			return nil, errors.Join(err, applyErr)
		}

		return nil, err
	}

	if err != nil {
		return nil, err
	}

	if err := c.applyHostOutcome(ctx, a, b); err != nil {
		return nil, err
	}

	return exchangeFor(b, a)
}

// applyHostOutcome feeds the stored host review into the guest's profile
// when a is the booking's host. The engine counts each booking once.
func (c *Coordinator) applyHostOutcome(ctx context.Context, a actor.Actor, b *booking.Booking) error {
	if role, _ := b.RoleOf(a.ID); role != actor.RoleHost || b.HostReview == nil || b.HostReview.Host == nil {
		return nil
	}

	wouldHostAgain := b.HostReview.Host.WouldHostAgain

	if _, err := c.trust.ApplyReviewOutcome(ctx, a, b.GuestID, b.ID, wouldHostAgain); err != nil {
		c.l.LogErrorf("Host review of booking %s stored but guest profile %s not updated: %v", b.ID, b.GuestID, err.Error())

		return fmt.Errorf("apply review outcome to guest %s: %w", b.GuestID, err)
	}

	return nil
}

// Reviews returns the exchange as viewer may see it. Operators see both
// reviews regardless of the reveal state.
func (c *Coordinator) Reviews(ctx context.Context, viewer actor.Actor, bookingID string) (*Exchange, error) {
	b, err := c.ledger.Booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	return exchangeFor(b, viewer)
}

func exchangeFor(b *booking.Booking, viewer actor.Actor) (*Exchange, error) {
	role, isParty := b.RoleOf(viewer.ID)

	if !isParty {
		if !viewer.IsAdmin() {
			return nil, apperr.Invalid("actor", "only the parties or an operator can read these reviews")
		}

		role = actor.RoleAdmin
	}

	//nolint:exhaustruct
	ex := &Exchange{
		BookingID:      b.ID,
		Viewer:         role,
		GuestSubmitted: b.GuestReview != nil,
		HostSubmitted:  b.HostReview != nil,
	}
	ex.Revealed = ex.GuestSubmitted && ex.HostSubmitted

	if ex.Revealed || role == actor.RoleAdmin || role == actor.RoleGuest {
		ex.Guest = b.GuestReview
	}

	if ex.Revealed || role == actor.RoleAdmin || role == actor.RoleHost {
		ex.Host = b.HostReview
	}

	return ex, nil
}
