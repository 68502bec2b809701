// Package postgres stores bookings, profiles and the audit trail in Postgres
// through gorm. Bookings and profiles keep their indexed columns next to a
// JSONB copy of the whole record.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/storage"
	"github.com/avstrong/staytrust/internal/trust"
)

var ErrTransactionNotFoundInCtx = errors.New("no transaction found in ctx")

type contextKey string

const transactionKey contextKey = "postgresTransaction"

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string, maxConns int) (*gorm.DB, error) {
	//nolint:exhaustruct
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2) //nolint:gomnd
	}

	sqlDB.SetConnMaxIdleTime(15 * time.Minute) //nolint:gomnd
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second) //nolint:gomnd
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

type Config struct {
	L  *logger.Logger
	DB *gorm.DB
}

type DB struct {
	l  *logger.Logger
	db *gorm.DB
}

func New(conf Config) *DB {
	return &DB{l: conf.L, db: conf.DB}
}

// Migrate creates or updates the tables.
func (d *DB) Migrate(ctx context.Context) error {
	//nolint:exhaustruct
	if err := d.db.WithContext(ctx).AutoMigrate(&listingRow{}, &bookingRow{}, &profileRow{}, &auditRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}

	return sqlDB.Close()
}

func isolation(level string) sql.IsolationLevel {
	if level == storage.LevelReadCommitted {
		return sql.LevelReadCommitted
	}

	return sql.LevelDefault
}

func (d *DB) BeginTransaction(ctx context.Context, level string) (context.Context, error) {
	//nolint:exhaustruct
	tx := d.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: isolation(level)})
	if tx.Error != nil {
		return ctx, fmt.Errorf("begin transaction: %w", tx.Error)
	}

	return context.WithValue(ctx, transactionKey, tx), nil
}

func (d *DB) CommitTransaction(ctx context.Context) error {
	tx, ok := ctx.Value(transactionKey).(*gorm.DB)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	return tx.Commit().Error
}

func (d *DB) RollbackTransaction(ctx context.Context) error {
	tx, ok := ctx.Value(transactionKey).(*gorm.DB)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	return tx.Rollback().Error
}

// conn returns the transaction carried by ctx, or the pool.
func (d *DB) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(transactionKey).(*gorm.DB); ok {
		return tx
	}

	return d.db.WithContext(ctx)
}

func (d *DB) SaveListings(ctx context.Context, listings []*booking.Listing) error {
	rows := make([]listingRow, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, toListingRow(l))
	}

	if len(rows) == 0 {
		return nil
	}

	//nolint:exhaustruct
	err := d.conn(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save listings: %w", err)
	}

	return nil
}

func (d *DB) GetListing(ctx context.Context, id string) (*booking.Listing, error) {
	var row listingRow

	if err := d.conn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "listing", id)
	}

	return row.toListing(), nil
}

// SaveBooking upserts b. The idempotency key from ctx is written on insert
// and never overwritten.
func (d *DB) SaveBooking(ctx context.Context, b *booking.Booking) error {
	row, err := toBookingRow(b)
	if err != nil {
		return err
	}

	if key, ok := booking.IdempotencyKeyFromContext(ctx); ok {
		row.IdempotencyKey = &key
	}

	//nolint:exhaustruct
	err = d.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "start_date", "end_date", "payload", "guest_review", "host_review", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save booking %s: %w", b.ID, err)
	}

	return nil
}

func (d *DB) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow

	if err := d.conn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "booking", id)
	}

	return row.toBooking()
}

func (d *DB) GetBookingByIdempotencyKey(ctx context.Context) (*booking.Booking, error) {
	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok {
		return nil, apperr.NotFound("idempotency key", "")
	}

	var row bookingRow

	if err := d.conn(ctx).Where("idempotency_key = ?", key).Take(&row).Error; err != nil {
		return nil, notFound(err, "idempotency key", key)
	}

	return row.toBooking()
}

func (d *DB) ListBookingsByStatus(ctx context.Context, statuses ...booking.Status) ([]*booking.Booking, error) {
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}

	var rows []bookingRow

	if err := d.conn(ctx).Where("status IN ?", raw).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list bookings by status: %w", err)
	}

	result := make([]*booking.Booking, 0, len(rows))

	for i := range rows {
		b, err := rows[i].toBooking()
		if err != nil {
			return nil, err
		}

		result = append(result, b)
	}

	return result, nil
}

func (d *DB) SaveProfile(ctx context.Context, p *trust.Profile) error {
	row, err := toProfileRow(p)
	if err != nil {
		return err
	}

	if err := d.conn(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save profile %s: %w", p.ParticipantID, err)
	}

	return nil
}

func (d *DB) GetProfile(ctx context.Context, participantID string) (*trust.Profile, error) {
	var row profileRow

	if err := d.conn(ctx).Where("participant_id = ?", participantID).Take(&row).Error; err != nil {
		return nil, notFound(err, "profile", participantID)
	}

	return row.toProfile()
}

func (d *DB) AppendAuditEntry(ctx context.Context, entry audit.Entry) error {
	row := toAuditRow(entry)

	if err := d.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit entry %s: %w", entry.ID, err)
	}

	return nil
}

func (d *DB) QueryAuditEntries(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	q := d.conn(ctx).Model(&auditRow{}) //nolint:exhaustruct

	if filter.BookingID != "" {
		q = q.Where("booking_id = ?", filter.BookingID)
	}

	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}

	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}

	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From)
	}

	if !filter.To.IsZero() {
		q = q.Where("timestamp <= ?", filter.To)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []auditRow

	if err := q.Order("timestamp, seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}

	return entries, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}

	return fmt.Errorf("get %s %s: %w", entity, id, err)
}
