package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r chi.Router) {
	r.Use(s.traceMiddleware(), s.loggerMiddleware(), s.recoverMiddleware())

	r.Get(s.conf.LivenessEndpoint, s.livenessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware())

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", s.createBookingHandler)

			r.Route("/{bookingID}", func(r chi.Router) {
				r.Get("/", s.getBookingHandler)
				r.Put("/dates", s.changeDatesHandler)
				r.Post("/proceed", s.proceedHandler)
				r.Get("/step-up", s.stepUpHandler)
				r.Post("/payment-method", s.selectPaymentMethodHandler)
				r.Post("/payment-sent", s.paymentSentHandler)
				r.Post("/payment-received", s.paymentReceivedHandler)
				r.Post("/payment-not-received", s.paymentNotReceivedHandler)
				r.Post("/approve", s.approveHandler)
				r.Post("/safety-check", s.safetyCheckHandler)
				r.Post("/cancel", s.cancelHandler)
				r.Post("/payout", s.releasePayoutHandler)
				r.Post("/reviews", s.submitReviewHandler)
				r.Get("/reviews", s.getReviewsHandler)
				r.Post("/dispute", s.fileDisputeHandler)
				r.Post("/dispute/evidence", s.addEvidenceHandler)

				r.Group(func(r chi.Router) {
					r.Use(s.requireOperator())
					r.Post("/dispute/resolve", s.resolveDisputeHandler)
					r.Post("/clock", s.clockHandler)
				})
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Post("/", s.createProfileHandler)
			r.Get("/{participantID}", s.getProfileHandler)
			r.Post("/{participantID}/badges", s.recomputeBadgesHandler)
			r.Post("/{participantID}/verification", s.advanceVerificationHandler)

			if s.svc.Verification != nil {
				r.With(s.requireOperator()).Put("/{participantID}/verification-facts", s.recordVerificationFactsHandler)
			}
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireOperator())
			r.Get("/audit", s.queryAuditHandler)
		})
	})
}
