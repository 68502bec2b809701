package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/trust"
)

var (
	ErrTransactionIDNotFoundInCtx = errors.New("no transaction id found in ctx")
	ErrTransactionNotFound        = errors.New("transaction not found")
)

type contextKey string

const transactionKey contextKey = "storageTransactionID"

func withTransactionID(ctx context.Context, trxID string) context.Context {
	return context.WithValue(ctx, transactionKey, trxID)
}

func transactionIDFromContext(ctx context.Context) (string, bool) {
	trxID, ok := ctx.Value(transactionKey).(string)

	return trxID, ok && trxID != ""
}

// transaction stages writes; nothing becomes visible before commit.
type transaction struct {
	id                   string
	bookingModifications map[string]*booking.Booking
	profileModifications map[string]*trust.Profile
	listingModifications map[string]*booking.Listing
	idempotencyKeys      map[string]string
	auditEntries         []audit.Entry
}

func (db *DB) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trxID := fmt.Sprintf("trx-%d", db.nextTrxID)
	db.nextTrxID++

	//nolint:exhaustruct
	db.transactions[trxID] = &transaction{
		id:                   trxID,
		bookingModifications: make(map[string]*booking.Booking),
		profileModifications: make(map[string]*trust.Profile),
		listingModifications: make(map[string]*booking.Listing),
		idempotencyKeys:      make(map[string]string),
	}

	return withTransactionID(ctx, trxID), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	for id, listing := range trx.listingModifications {
		db.listings[id] = listing
	}

	for id, b := range trx.bookingModifications {
		db.bookings[id] = b
	}

	for key, id := range trx.idempotencyKeys {
		db.bookingIdempotencyKeys[key] = id
	}

	for id, p := range trx.profileModifications {
		db.profiles[id] = p
	}

	db.auditEntries = append(db.auditEntries, trx.auditEntries...)

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	return nil
}

// transaction must be called with db.mu held.
func (db *DB) transaction(ctx context.Context) (*transaction, error) {
	trxID, ok := transactionIDFromContext(ctx)
	if !ok {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}
