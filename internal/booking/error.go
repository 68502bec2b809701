package booking

import (
	"errors"
	"fmt"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
)

var ErrNextID = errors.New("get next id from generator")

// requireStatus guards operations that belong to a lifecycle step without
// changing the status themselves.
func requireStatus(b *Booking, op string, allowed ...Status) error {
	for _, s := range allowed {
		if b.Status == s {
			return nil
		}
	}

	return &apperr.TransitionError{From: string(b.Status), To: "", Event: op}
}

func requireGuest(b *Booking, a actor.Actor) error {
	if a.ID != b.GuestID {
		return apperr.Invalid("actor", fmt.Sprintf("only the guest of booking %s can do this", b.ID))
	}

	return nil
}

func requireHost(b *Booking, a actor.Actor) error {
	if a.ID != b.HostID {
		return apperr.Invalid("actor", fmt.Sprintf("only the host of booking %s can do this", b.ID))
	}

	return nil
}

func requireOperator(a actor.Actor) error {
	if !a.IsAdmin() {
		return apperr.Invalid("actor", "only an operator can do this")
	}

	return nil
}

// requireAny passes when at least one check passes and otherwise returns
// the first failure.
func requireAny(checks ...func() error) error {
	var first error

	for _, check := range checks {
		err := check()
		if err == nil {
			return nil
		}

		if first == nil {
			first = err
		}
	}

	return first
}

func isSystemOrOperator(a actor.Actor) func() error {
	return func() error {
		if a.IsAdmin() || a.IsSystem() {
			return nil
		}

		return apperr.Invalid("actor", "only the system or an operator can do this")
	}
}
