package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/trust"
)

type badgesResponse struct {
	ParticipantID string         `json:"participant_id"`
	Badges        trust.BadgeSet `json:"badges"`
}

func (s *Server) createProfileHandler(w http.ResponseWriter, r *http.Request) {
	a := currentActor(r)

	var req createProfileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	participantID := req.ParticipantID
	if participantID == "" {
		participantID = a.ID
	}

	if participantID != a.ID && !a.IsAdmin() {
		s.writeError(w, r, apperr.Invalid("actor", "participants register their own profile"))

		return
	}

	displayName := req.DisplayName
	if displayName == "" && participantID == a.ID {
		displayName = a.Name
	}

	p, err := s.svc.Trust.CreateProfile(r.Context(), a, participantID, displayName)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Trust.Profile(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) recomputeBadgesHandler(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	badges, err := s.svc.Trust.RecomputeBadges(r.Context(), currentActor(r), participantID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, badgesResponse{ParticipantID: participantID, Badges: badges})
}

func (s *Server) advanceVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req evidenceKindRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	kind, ok := trust.ParseEvidenceKind(req.Kind)
	if !ok {
		s.writeError(w, r, apperr.Invalid("kind", "unknown evidence kind '"+req.Kind+"'"))

		return
	}

	p, err := s.svc.Trust.AdvanceVerificationLevel(r.Context(), currentActor(r), chi.URLParam(r, "participantID"), kind)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, p)
}

// recordVerificationFactsHandler lets operators record what the identity,
// phone and vouch providers confirmed. A missing vouch contact leaves the
// existing vouch untouched.
func (s *Server) recordVerificationFactsHandler(w http.ResponseWriter, r *http.Request) {
	var req verificationFactsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	participantID := chi.URLParam(r, "participantID")

	if req.DocumentStored {
		s.svc.Verification.RecordDocumentStored(participantID)
	}

	if req.PhoneVerified {
		s.svc.Verification.RecordPhoneVerified(participantID)
	}

	if contact := strings.TrimSpace(req.VouchContact); contact != "" {
		s.svc.Verification.RecordVouch(participantID, contact)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) queryAuditHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	entries, err := s.svc.Audit.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	inputErr := apperr.NewInputError()

	//nolint:exhaustruct
	filter := audit.Filter{
		BookingID: q.Get("booking_id"),
		ActorID:   q.Get("actor_id"),
		Action:    audit.Action(strings.ToUpper(q.Get("action"))),
	}

	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			inputErr.AddError(name, "use RFC 3339 timestamps")

			continue
		}

		*dst = ts
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			inputErr.AddError("limit", "limit must be a number")
		}

		filter.Limit = limit
	}

	return filter, inputErr.OrNil()
}
