package booking

import "github.com/avstrong/staytrust/internal/apperr"

type Event string

const (
	EventConfirmDetails  Event = "CONFIRM_DETAILS"
	EventCompletePayment Event = "COMPLETE_PAYMENT"
	EventApprove         Event = "APPROVE"
	EventCheckIn         Event = "CHECK_IN"
	EventCheckOut        Event = "CHECK_OUT"
	EventReportIssue     Event = "REPORT_ISSUE"
	EventResolveForGuest Event = "RESOLVE_FOR_GUEST"
	EventResolveForHost  Event = "RESOLVE_FOR_HOST"
	EventCancel          Event = "CANCEL"
)

type rule struct {
	from []Status
	to   Status
}

// transitions is the whole lifecycle; anything not listed is rejected.
var transitions = map[Event]rule{
	EventConfirmDetails:  {from: []Status{StatusDraft}, to: StatusPendingPayment},
	EventCompletePayment: {from: []Status{StatusPendingPayment}, to: StatusPendingApproval},
	EventApprove:         {from: []Status{StatusPendingApproval}, to: StatusConfirmed},
	EventCheckIn:         {from: []Status{StatusConfirmed}, to: StatusActiveStay},
	EventCheckOut:        {from: []Status{StatusActiveStay}, to: StatusCompleted},
	EventReportIssue:     {from: []Status{StatusConfirmed, StatusActiveStay}, to: StatusDisputed},
	EventResolveForGuest: {from: []Status{StatusDisputed}, to: StatusCancelled},
	EventResolveForHost:  {from: []Status{StatusDisputed}, to: StatusCompleted},
	EventCancel:          {from: []Status{StatusPendingApproval, StatusConfirmed}, to: StatusCancelled},
}

// Next returns the status reached by applying ev to from.
func Next(from Status, ev Event) (Status, error) {
	r, ok := transitions[ev]
	if !ok {
		return "", &apperr.TransitionError{From: string(from), To: "", Event: string(ev)}
	}

	for _, allowed := range r.from {
		if allowed == from {
			return r.to, nil
		}
	}

	return "", &apperr.TransitionError{From: string(from), To: string(r.to), Event: string(ev)}
}

// CanReach reports whether some event moves from into to.
func CanReach(from, to Status) bool {
	for ev := range transitions {
		if next, err := Next(from, ev); err == nil && next == to {
			return true
		}
	}

	return false
}
