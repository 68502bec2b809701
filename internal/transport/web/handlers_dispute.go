package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/booking"
)

func (s *Server) fileDisputeHandler(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Disputes.FileDispute(ctx, a, id, actor.ParseRole(req.Initiator), req.Reason)
	})
}

func (s *Server) addEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	var req evidenceRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Disputes.AddEvidence(ctx, a, id, req.Note, req.Reference)
	})
}

func (s *Server) resolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Disputes.ResolveDispute(ctx, a, id, booking.DisputeOutcome(req.Outcome), req.Note)
	})
}

func (s *Server) safetyCheckHandler(w http.ResponseWriter, r *http.Request) {
	var req safetyCheckRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Disputes.PerformSafetyCheck(ctx, a, id, *req.Satisfied)
	})
}

func (s *Server) paymentNotReceivedHandler(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.serveMutation(w, r, func(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error) {
		return s.svc.Disputes.ReportPaymentNotReceived(ctx, a, id, req.Reason)
	})
}

func (s *Server) submitReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	//nolint:exhaustruct
	review := booking.StructuredReview{Guest: req.Guest, Host: req.Host, Comment: req.Comment}

	ex, err := s.svc.Reviews.SubmitReview(r.Context(), currentActor(r), chi.URLParam(r, "bookingID"), review)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) getReviewsHandler(w http.ResponseWriter, r *http.Request) {
	ex, err := s.svc.Reviews.Reviews(r.Context(), currentActor(r), chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, ex)
}
