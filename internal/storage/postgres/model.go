package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/trust"
)

type listingRow struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	HostID      string `gorm:"type:varchar(64);index"`
	HostName    string `gorm:"type:varchar(255)"`
	Title       string `gorm:"type:varchar(255)"`
	Type        string `gorm:"type:varchar(32)"`
	NightlyRate int64
	Currency    string `gorm:"type:varchar(3)"`
	MaxGuests   int
}

func (listingRow) TableName() string { return "listings" }

func toListingRow(l *booking.Listing) listingRow {
	return listingRow{
		ID:          l.ID,
		HostID:      l.HostID,
		HostName:    l.HostName,
		Title:       l.Title,
		Type:        string(l.Type),
		NightlyRate: l.NightlyRate,
		Currency:    l.Currency,
		MaxGuests:   l.MaxGuests,
	}
}

func (r listingRow) toListing() *booking.Listing {
	return &booking.Listing{
		ID:          r.ID,
		HostID:      r.HostID,
		HostName:    r.HostName,
		Title:       r.Title,
		Type:        booking.ListingType(r.Type),
		NightlyRate: r.NightlyRate,
		Currency:    r.Currency,
		MaxGuests:   r.MaxGuests,
	}
}

// bookingRow keeps reviews in their own columns because the booking's JSON
// form leaves them out.
type bookingRow struct {
	ID             string  `gorm:"primaryKey;type:varchar(64)"`
	ListingID      string  `gorm:"type:varchar(64);index"`
	GuestID        string  `gorm:"type:varchar(64);index"`
	HostID         string  `gorm:"type:varchar(64);index"`
	Status         string  `gorm:"type:varchar(32);index"`
	StartDate      time.Time
	EndDate        time.Time
	IdempotencyKey *string        `gorm:"type:varchar(255);uniqueIndex"`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	GuestReview    datatypes.JSON `gorm:"type:jsonb"`
	HostReview     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (bookingRow) TableName() string { return "bookings" }

func toBookingRow(b *booking.Booking) (bookingRow, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return bookingRow{}, fmt.Errorf("marshal booking %s: %w", b.ID, err)
	}

	guestReview, err := marshalReview(b.GuestReview)
	if err != nil {
		return bookingRow{}, err
	}

	hostReview, err := marshalReview(b.HostReview)
	if err != nil {
		return bookingRow{}, err
	}

	//nolint:exhaustruct
	return bookingRow{
		ID:          b.ID,
		ListingID:   b.ListingID,
		GuestID:     b.GuestID,
		HostID:      b.HostID,
		Status:      string(b.Status),
		StartDate:   b.Dates.Start,
		EndDate:     b.Dates.End,
		Payload:     payload,
		GuestReview: guestReview,
		HostReview:  hostReview,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}, nil
}

func marshalReview(r *booking.StructuredReview) (datatypes.JSON, error) {
	if r == nil {
		return nil, nil
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal review: %w", err)
	}

	return raw, nil
}

func unmarshalReview(raw datatypes.JSON) (*booking.StructuredReview, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var r booking.StructuredReview
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal review: %w", err)
	}

	return &r, nil
}

func (r *bookingRow) toBooking() (*booking.Booking, error) {
	var b booking.Booking
	if err := json.Unmarshal(r.Payload, &b); err != nil {
		return nil, fmt.Errorf("unmarshal booking %s: %w", r.ID, err)
	}

	var err error

	if b.GuestReview, err = unmarshalReview(r.GuestReview); err != nil {
		return nil, err
	}

	if b.HostReview, err = unmarshalReview(r.HostReview); err != nil {
		return nil, err
	}

	return &b, nil
}

type profileRow struct {
	ParticipantID string `gorm:"primaryKey;type:varchar(64)"`
	Level         int
	Flagged       bool           `gorm:"index"`
	Payload       datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt     time.Time
}

func (profileRow) TableName() string { return "trust_profiles" }

func toProfileRow(p *trust.Profile) (profileRow, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return profileRow{}, fmt.Errorf("marshal profile %s: %w", p.ParticipantID, err)
	}

	return profileRow{
		ParticipantID: p.ParticipantID,
		Level:         int(p.Level),
		Flagged:       p.FlaggedForReview,
		Payload:       payload,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func (r *profileRow) toProfile() (*trust.Profile, error) {
	var p trust.Profile
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", r.ParticipantID, err)
	}

	return &p, nil
}

// auditRow carries Seq because Postgres timestamps stop at microseconds
// while the stamper may space entries a nanosecond apart.
type auditRow struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	Seq        int64     `gorm:"autoIncrement;not null;index"`
	Timestamp  time.Time `gorm:"index"`
	BookingID  string    `gorm:"type:varchar(64);index"`
	ProfileID  string    `gorm:"type:varchar(64);index"`
	ActorID    string    `gorm:"type:varchar(64);index"`
	ActorName  string    `gorm:"type:varchar(255)"`
	Action     string    `gorm:"type:varchar(64);index"`
	Details    string    `gorm:"type:text"`
	OperatorID string    `gorm:"type:varchar(64)"`
}

func (auditRow) TableName() string { return "audit_entries" }

func toAuditRow(e audit.Entry) auditRow {
	//nolint:exhaustruct
	return auditRow{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		BookingID:  e.BookingID,
		ProfileID:  e.ProfileID,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		Action:     string(e.Action),
		Details:    e.Details,
		OperatorID: e.OperatorID,
	}
}

func (r auditRow) toEntry() audit.Entry {
	return audit.Entry{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		BookingID:  r.BookingID,
		ProfileID:  r.ProfileID,
		ActorID:    r.ActorID,
		ActorName:  r.ActorName,
		Action:     audit.Action(r.Action),
		Details:    r.Details,
		OperatorID: r.OperatorID,
	}
}
