package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nonvi/booking-core/internal/models"
)

// ErrDuplicateTransaction is returned when a hold already exists for a gateway transaction
var ErrDuplicateTransaction = errors.New("hold already exists for gateway transaction")

// BookingHoldRepository handles booking hold database operations.
// Every method honours a transaction carried in ctx.
type BookingHoldRepository struct {
	db DB
}

// NewBookingHoldRepository creates a new BookingHoldRepository
func NewBookingHoldRepository(db DB) *BookingHoldRepository {
	return &BookingHoldRepository{db: db}
}

const holdColumns = `
	id, gateway_transaction_id, kind, user_id, payload, amount,
	travel_date, travel_time, departure_station_id, seat_count, created_at`

// Create inserts a new hold
func (r *BookingHoldRepository) Create(ctx context.Context, hold *models.BookingHold) error {
	query := `
		INSERT INTO booking_holds (` + holdColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		hold.ID, hold.GatewayTransactionID, hold.Kind, hold.UserID, hold.Payload, hold.Amount,
		hold.TravelDate, hold.TravelTime, hold.DepartureStationID, hold.SeatCount, hold.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("failed to create booking hold: %w", err)
	}
	return nil
}

// GetByTransactionID returns the hold for a gateway transaction, or nil, nil when absent
func (r *BookingHoldRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.BookingHold, error) {
	query := `SELECT ` + holdColumns + ` FROM booking_holds WHERE gateway_transaction_id = $1`

	var hold models.BookingHold
	err := querier(ctx, r.db).GetContext(ctx, &hold, query, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking hold: %w", err)
	}
	return &hold, nil
}

// TakeByTransactionID deletes the hold for a gateway transaction and returns it.
// Lookup and delete are one statement, so two concurrent callers can never both
// receive the same hold. Returns nil, nil when no hold exists.
func (r *BookingHoldRepository) TakeByTransactionID(ctx context.Context, transactionID string) (*models.BookingHold, error) {
	query := `
		DELETE FROM booking_holds
		WHERE gateway_transaction_id = $1
		RETURNING ` + holdColumns

	var hold models.BookingHold
	err := querier(ctx, r.db).GetContext(ctx, &hold, query, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take booking hold: %w", err)
	}
	return &hold, nil
}

// SumHeldSeats totals the seats of transport holds for a slot created at or after since
func (r *BookingHoldRepository) SumHeldSeats(ctx context.Context, slot models.Slot, since time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(seat_count), 0)
		FROM booking_holds
		WHERE kind = 'transport'
		  AND travel_date = $1
		  AND travel_time = $2
		  AND departure_station_id = $3
		  AND created_at >= $4`

	var held int
	err := querier(ctx, r.db).GetContext(ctx, &held, query,
		slot.TravelDate, slot.TravelTime, slot.DepartureStationID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to sum held seats: %w", err)
	}
	return held, nil
}

// DeleteCreatedBefore removes holds created before cutoff and returns them.
// Used by the cleanup job; expired holds already stopped counting at read time.
func (r *BookingHoldRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.BookingHold, error) {
	query := `
		DELETE FROM booking_holds
		WHERE id IN (
			SELECT id FROM booking_holds
			WHERE created_at < $1
			ORDER BY created_at
			LIMIT $2
		)
		RETURNING ` + holdColumns

	holds := []models.BookingHold{}
	if err := querier(ctx, r.db).SelectContext(ctx, &holds, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to delete stale booking holds: %w", err)
	}
	return holds, nil
}
