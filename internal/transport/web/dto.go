package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
)

const maxBodyBytes = 1 << 20

// Request bodies are checked for shape here. Emptiness of free-text fields
// and lifecycle rules stay with the core so their error order is preserved.

type datesRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end"   validate:"required,datetime=2006-01-02"`
}

func (d datesRequest) toDates() booking.Dates {
	start, _ := time.Parse(time.DateOnly, d.Start)
	end, _ := time.Parse(time.DateOnly, d.End)

	return booking.Dates{Start: start, End: end}
}

type createBookingRequest struct {
	ListingID string `json:"listing_id" validate:"required,max=64"`
	GuestID   string `json:"guest_id"   validate:"omitempty,max=64"`
	PartySize int    `json:"party_size" validate:"max=64"`
	datesRequest
}

type proceedRequest struct {
	Acknowledged bool   `json:"acknowledged"`
	GuestRequest string `json:"guest_request" validate:"max=1000"`
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type clockRequest struct {
	Event string `json:"event" validate:"required,oneof=CHECK_IN CHECK_OUT"`
}

type safetyCheckRequest struct {
	Satisfied *bool `json:"satisfied" validate:"required"`
}

type disputeRequest struct {
	Initiator string `json:"initiator" validate:"omitempty,oneof=GUEST HOST"`
	Reason    string `json:"reason"    validate:"max=2000"`
}

type evidenceRequest struct {
	Note      string `json:"note"      validate:"max=2000"`
	Reference string `json:"reference" validate:"max=512"`
}

type resolveRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=REFUND PAY_HOST"`
	Note    string `json:"note"    validate:"max=2000"`
}

type reviewRequest struct {
	Guest   *booking.GuestAnswers `json:"guest"`
	Host    *booking.HostAnswers  `json:"host"`
	Comment string                `json:"comment"`
}

type createProfileRequest struct {
	ParticipantID string `json:"participant_id" validate:"omitempty,max=64"`
	DisplayName   string `json:"display_name"   validate:"max=255"`
}

type evidenceKindRequest struct {
	Kind string `json:"kind" validate:"required"`
}

type verificationFactsRequest struct {
	DocumentStored bool   `json:"document_stored"`
	PhoneVerified  bool   `json:"phone_verified"`
	VouchContact   string `json:"vouch_contact" validate:"omitempty,max=255"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// decode reads the JSON body into dst and validates it. The error is an
// *apperr.InputError.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}

	if err := s.validate.Struct(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return apperr.Invalid("body", err.Error())
		}

		inputErr := apperr.NewInputError()
		for _, fe := range validationErrs {
			inputErr.AddError(fe.Field(), fmt.Sprintf("failed '%s' check", tagMessage(fe)))
		}

		return inputErr
	}

	return nil
}

func tagMessage(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}

	return fe.Tag() + "=" + fe.Param()
}
