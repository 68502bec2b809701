package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/trust"
)

type Config struct {
	L *logger.Logger
}

type DB struct {
	mu                     sync.Mutex
	l                      *logger.Logger
	listings               map[string]*booking.Listing
	bookings               map[string]*booking.Booking
	profiles               map[string]*trust.Profile
	auditEntries           []audit.Entry
	transactions           map[string]*transaction
	nextTrxID              int64
	bookingIdempotencyKeys map[string]string
}

func New(conf Config) *DB {
	//nolint:exhaustruct
	return &DB{
		l:                      conf.L,
		listings:               make(map[string]*booking.Listing),
		bookings:               make(map[string]*booking.Booking),
		profiles:               make(map[string]*trust.Profile),
		transactions:           make(map[string]*transaction),
		bookingIdempotencyKeys: make(map[string]string),
	}
}

func (db *DB) SaveListings(ctx context.Context, listings []*booking.Listing) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	for _, listing := range listings {
		cp := *listing
		trx.listingModifications[listing.ID] = &cp
	}

	return nil
}

func (db *DB) GetListing(_ context.Context, id string) (*booking.Listing, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	listing, ok := db.listings[id]
	if !ok {
		return nil, apperr.NotFound("listing", id)
	}

	cp := *listing

	return &cp, nil
}

// SaveBooking stages a copy of b. When ctx carries an idempotency key the key
// is bound to the booking on commit.
func (db *DB) SaveBooking(ctx context.Context, b *booking.Booking) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	trx.bookingModifications[b.ID] = b.Clone()

	if key, ok := booking.IdempotencyKeyFromContext(ctx); ok {
		if _, bound := db.bookingIdempotencyKeys[key]; !bound {
			trx.idempotencyKeys[key] = b.ID
		}
	}

	return nil
}

func (db *DB) GetBooking(_ context.Context, id string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking", id)
	}

	return b.Clone(), nil
}

func (db *DB) GetBookingByIdempotencyKey(ctx context.Context) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok {
		return nil, apperr.NotFound("idempotency key", "")
	}

	id, exists := db.bookingIdempotencyKeys[key]
	if !exists {
		return nil, apperr.NotFound("idempotency key", key)
	}

	b, exists := db.bookings[id]
	if !exists {
		return nil, apperr.NotFound("booking", id)
	}

	return b.Clone(), nil
}

func (db *DB) ListBookingsByStatus(_ context.Context, statuses ...booking.Status) ([]*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	wanted := make(map[booking.Status]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}

	var result []*booking.Booking

	for _, b := range db.bookings {
		if _, ok := wanted[b.Status]; ok {
			result = append(result, b.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (db *DB) SaveProfile(ctx context.Context, p *trust.Profile) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	trx.profileModifications[p.ParticipantID] = p.Clone()

	return nil
}

func (db *DB) GetProfile(_ context.Context, participantID string) (*trust.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[participantID]
	if !ok {
		return nil, apperr.NotFound("profile", participantID)
	}

	return p.Clone(), nil
}

func (db *DB) AppendAuditEntry(ctx context.Context, entry audit.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	trx.auditEntries = append(trx.auditEntries, entry)

	return nil
}

func (db *DB) QueryAuditEntries(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []audit.Entry

	for _, e := range db.auditEntries {
		if filter.Match(e) {
			result = append(result, e)
		}
	}

	return result, nil
}
