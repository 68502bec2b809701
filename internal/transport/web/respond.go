package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/lock"
)

type errorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	From    string              `json:"from,omitempty"`
	To      string              `json:"to,omitempty"`
	Event   string              `json:"event,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	//nolint:exhaustruct
	s.writeJSON(w, status, errorBody{Error: http.StatusText(status), Message: msg})
}

// writeError maps core error kinds onto HTTP statuses. Actor checks surface
// as 403, every other validation failure as 400.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	//nolint:exhaustruct
	body := errorBody{Error: apperr.Kind(err), Message: err.Error()}

	var status int

	switch {
	case errors.Is(err, apperr.ErrValidationFailed):
		status = http.StatusBadRequest

		if inputErr := apperr.IsInputError(err); inputErr != nil {
			body.Fields = inputErr.Fields()

			if _, ok := body.Fields["actor"]; ok && inputErr.FieldsCount() == 1 {
				status = http.StatusForbidden
			}
		}
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidTransition):
		status = http.StatusConflict

		if transitionErr := apperr.IsTransitionError(err); transitionErr != nil {
			body.From, body.To, body.Event = transitionErr.From, transitionErr.To, transitionErr.Event
		}
	case errors.Is(err, apperr.ErrAlreadyReviewed),
		errors.Is(err, apperr.ErrAlreadyResolved),
		errors.Is(err, apperr.ErrAlreadyReleased):
		status = http.StatusConflict
	case errors.Is(err, lock.ErrTimeout):
		status = http.StatusServiceUnavailable
		body.Error = "Busy"
	default:
		s.l.LogErrorf("Could not handle %s %s: %v", r.Method, r.URL.Path, err.Error())
		s.writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))

		return
	}

	s.writeJSON(w, status, body)
}
