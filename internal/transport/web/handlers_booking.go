package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
)

const maxIdempotencyKeyLen = 128

type stepUpResponse struct {
	BookingID      string `json:"booking_id"`
	StepUpRequired bool   `json:"step_up_required"`
}

// bookingMutation is the common shape of handlers that run one ledger
// operation against the booking named in the path.
type bookingMutation func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error)

func (s *Server) serveMutation(w http.ResponseWriter, r *http.Request, op bookingMutation) {
	b, err := op(r.Context(), currentActor(r), chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := currentActor(r)

	var req createBookingRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	guestID := req.GuestID
	if guestID == "" {
		guestID = a.ID
	}

	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		if len(key) > maxIdempotencyKeyLen {
			s.writeError(w, r, apperr.Invalid("idempotencyKey", fmt.Sprintf("use at most %d characters", maxIdempotencyKeyLen)))

			return
		}

		ctx = booking.NewContextWithIdempotencyKey(ctx, key)
	}

	b, err := s.svc.Bookings.CreateBooking(ctx, a, booking.CreateInput{
		ListingID: req.ListingID,
		GuestID:   guestID,
		Dates:     req.toDates(),
		PartySize: req.PartySize,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	a := currentActor(r)

	b, err := s.svc.Bookings.Booking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if _, isParty := b.RoleOf(a.ID); !isParty && !a.IsAdmin() {
		s.writeError(w, r, apperr.Invalid("actor", "only the parties or an operator can read this booking"))

		return
	}

	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) changeDatesHandler(w http.ResponseWriter, r *http.Request) {
	var req datesRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Bookings.ChangeDates(ctx, a, id, req.toDates())
	})
}

func (s *Server) proceedHandler(w http.ResponseWriter, r *http.Request) {
	var req proceedRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Bookings.AcknowledgeRulesAndProceed(ctx, a, id, req.Acknowledged, req.GuestRequest)
	})
}

func (s *Server) stepUpHandler(w http.ResponseWriter, r *http.Request) {
	a := currentActor(r)
	id := chi.URLParam(r, "bookingID")

	b, err := s.svc.Bookings.Booking(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if a.ID != b.GuestID && !a.IsAdmin() {
		s.writeError(w, r, apperr.Invalid("actor", "only the guest or an operator can check step-up"))

		return
	}

	required, err := s.svc.Bookings.StepUpRequired(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, stepUpResponse{BookingID: id, StepUpRequired: required})
}

func (s *Server) selectPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	method, ok := booking.ParsePaymentMethod(req.Method)
	if !ok {
		s.writeError(w, r, apperr.Invalid("method", "unknown payment method '"+req.Method+"'"))

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Bookings.SelectPaymentMethod(ctx, a, id, method)
	})
}

func (s *Server) paymentSentHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMutation(w, r, s.svc.Bookings.MarkGuestPaymentSent)
}

func (s *Server) paymentReceivedHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMutation(w, r, s.svc.Bookings.ConfirmHostPaymentReceived)
}

func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMutation(w, r, s.svc.Bookings.Approve)
}

func (s *Server) releasePayoutHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMutation(w, r, s.svc.Bookings.ReleasePayout)
}

func (s *Server) clockHandler(w http.ResponseWriter, r *http.Request) {
	var req clockRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Bookings.TransitionOnClock(ctx, a, id, booking.ClockEvent(req.Event))
	})
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Bookings.Cancel(ctx, a, id, req.Reason)
	})
}
