package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/apperr"
)

type Action string

const (
	ActionBookingCreated        Action = "BOOKING_CREATED"
	ActionDatesChanged          Action = "DATES_CHANGED"
	ActionRulesAcknowledged     Action = "RULES_ACKNOWLEDGED"
	ActionPaymentMethodSelected Action = "PAYMENT_METHOD_SELECTED"
	ActionGuestPaymentSent      Action = "GUEST_PAYMENT_SENT"
	ActionHostPaymentConfirmed  Action = "HOST_PAYMENT_CONFIRMED"
	ActionPaymentNotReceived    Action = "PAYMENT_NOT_RECEIVED"
	ActionBookingApproved       Action = "BOOKING_APPROVED"
	ActionCheckIn               Action = "CHECK_IN"
	ActionCheckOut              Action = "CHECK_OUT"
	ActionSafetyCheckPassed     Action = "SAFETY_CHECK_PASSED"
	ActionSafetyCheckFailed     Action = "SAFETY_CHECK_FAILED"
	ActionDisputeFiled          Action = "DISPUTE_FILED"
	ActionEvidenceAdded         Action = "DISPUTE_EVIDENCE_ADDED"
	ActionDisputeResolved       Action = "DISPUTE_RESOLVED"
	ActionBookingCancelled      Action = "BOOKING_CANCELLED"
	ActionPayoutReleased        Action = "PAYOUT_RELEASED"
	ActionReviewSubmitted       Action = "REVIEW_SUBMITTED"

	ActionProfileCreated       Action = "PROFILE_CREATED"
	ActionBadgesRecomputed     Action = "BADGES_RECOMPUTED"
	ActionVerificationAdvanced Action = "VERIFICATION_ADVANCED"
	ActionReviewOutcomeApplied Action = "REVIEW_OUTCOME_APPLIED"
	ActionOffenseRecorded      Action = "DISPUTE_OFFENSE_RECORDED"
)

// Entry is write-once: storages append it and never touch it again.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	BookingID  string    `json:"booking_id,omitempty"`
	ProfileID  string    `json:"profile_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Action     Action    `json:"action"`
	Details    string    `json:"details"`
	OperatorID string    `json:"operator_id,omitempty"`
}

// Stamper hands out entries with unique ids and strictly increasing
// timestamps, even when the wall clock stalls or steps back.
type Stamper struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	//nolint:exhaustruct
	return &Stamper{now: now}
}

func (s *Stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}

	s.last = ts

	return ts
}

func (s *Stamper) Entry(a actor.Actor, action Action, format string, args ...any) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: s.next(),
		ActorID:   a.ID,
		ActorName: a.Name,
		Action:    action,
		Details:   fmt.Sprintf(format, args...),
	}

	if a.IsAdmin() {
		e.OperatorID = a.ID
	}

	return e
}

func (e Entry) ForBooking(id string) Entry {
	e.BookingID = id

	return e
}

func (e Entry) ForProfile(id string) Entry {
	e.ProfileID = id

	return e
}

type Filter struct {
	BookingID string
	ActorID   string
	Action    Action
	From      time.Time
	To        time.Time
	Limit     int
}

func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return apperr.Invalid("to", "to must not be before from")
	}

	if f.Limit < 0 {
		return apperr.Invalid("limit", "limit must not be negative")
	}

	return nil
}

// Match reports whether e passes every non-empty criterion. The time range
// is inclusive on both ends.
func (f Filter) Match(e Entry) bool {
	if f.BookingID != "" && e.BookingID != f.BookingID {
		return false
	}

	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}

	if f.Action != "" && e.Action != f.Action {
		return false
	}

	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}

	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}

	return true
}

type storage interface {
	QueryAuditEntries(ctx context.Context, filter Filter) ([]Entry, error)
}

// Log is the read side of the audit trail.
type Log struct {
	storage storage
}

func NewLog(storage storage) *Log {
	return &Log{storage: storage}
}

func (l *Log) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entries, err := l.storage.QueryAuditEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit entries from storage: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	return entries, nil
}
