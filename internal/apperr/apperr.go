// Package apperr holds the error kinds shared by the booking core. Every
// error returned across a package boundary matches exactly one of the
// sentinels below through errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyReviewed   = errors.New("already reviewed")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrAlreadyReleased   = errors.New("payout already released")
	ErrValidationFailed  = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
)

// TransitionError reports a status change outside the transition table.
type TransitionError struct {
	From  string
	To    string
	Event string
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid transition: %s is not allowed on %s booking", e.Event, e.From)
	}

	return fmt.Sprintf("invalid transition: cannot move booking from %s to %s via %s", e.From, e.To, e.Event)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func IsTransitionError(err error) *TransitionError {
	if err == nil {
		return nil
	}

	var transitionErr *TransitionError

	if errors.As(err, &transitionErr) {
		return transitionErr
	}

	return nil
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InputError collects validation messages per offending field.
type InputError struct {
	fields map[string][]string
}

func NewInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

// Invalid is a shortcut for a single-field InputError.
func Invalid(field, msg string) *InputError {
	inputErr := NewInputError()
	inputErr.AddError(field, msg)

	return inputErr
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) FieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) AddError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

// OrNil returns nil when no field was recorded, so callers can end a
// validation block with `return inputErr.OrNil()`.
func (ie *InputError) OrNil() error {
	if ie.FieldsCount() == 0 {
		return nil
	}

	return ie
}

func (ie *InputError) Error() string {
	keys := make([]string, 0, len(ie.fields))
	for k := range ie.fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(ie.fields[k], "; ")))
	}

	return "validation failed: " + strings.Join(parts, ", ")
}

func (ie *InputError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}

// Kind names the sentinel err matches, for transport-level reporting.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrAlreadyReviewed):
		return "AlreadyReviewed"
	case errors.Is(err, ErrAlreadyResolved):
		return "AlreadyResolved"
	case errors.Is(err, ErrAlreadyReleased):
		return "AlreadyReleased"
	case errors.Is(err, ErrValidationFailed):
		return "ValidationFailed"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return ""
	}
}
