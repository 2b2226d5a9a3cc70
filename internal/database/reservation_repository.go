package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nonvi/booking-core/internal/models"
)

// ReservationRepository handles reservation database operations
type ReservationRepository struct {
	db DB
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `
	id, user_id, guest_name, guest_phone, departure_station_id, arrival_station_id,
	travel_date, travel_time, seat_count, total_price, status, payment_id, payment_status,
	code, scanned, fully_scanned, created_at, updated_at`

// Create inserts a reservation
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		res.ID, res.UserID, res.GuestName, res.GuestPhone, res.DepartureStationID, res.ArrivalStationID,
		res.TravelDate, res.TravelTime, res.SeatCount, res.TotalPrice, res.Status, res.PaymentID, res.PaymentStatus,
		res.LegacyCode, res.LegacyScanned, res.FullyScanned, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetByID returns a reservation, or nil, nil when absent
func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByLegacyCode returns the reservation carrying an embedded single code, or nil, nil
func (r *ReservationRepository) GetByLegacyCode(ctx context.Context, code string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE code = $1`
	return r.getOne(ctx, query, code)
}

func (r *ReservationRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Reservation, error) {
	var res models.Reservation
	err := querier(ctx, r.db).GetContext(ctx, &res, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &res, nil
}

// SumCommittedSeats totals the seats of reservations in an active status for a slot
func (r *ReservationRepository) SumCommittedSeats(ctx context.Context, slot models.Slot) (int, error) {
	query := `
		SELECT COALESCE(SUM(seat_count), 0)
		FROM reservations
		WHERE travel_date = $1
		  AND travel_time = $2
		  AND departure_station_id = $3
		  AND status = ANY($4)`

	statuses := make([]string, 0, len(models.ActiveReservationStatuses))
	for _, s := range models.ActiveReservationStatuses {
		statuses = append(statuses, string(s))
	}

	var committed int
	err := querier(ctx, r.db).GetContext(ctx, &committed, query,
		slot.TravelDate, slot.TravelTime, slot.DepartureStationID, pq.Array(statuses))
	if err != nil {
		return 0, fmt.Errorf("failed to sum committed seats: %w", err)
	}
	return committed, nil
}

// MarkLegacyScanned flips the embedded scanned flag and completes the reservation.
// Returns false when the flag was already set (nothing written).
func (r *ReservationRepository) MarkLegacyScanned(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE reservations
		SET scanned = TRUE, fully_scanned = TRUE, status = 'completed', updated_at = NOW()
		WHERE code = $1 AND scanned = FALSE`

	result, err := querier(ctx, r.db).ExecContext(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("failed to mark reservation scanned: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// LockForScan takes the reservation's row lock for the rest of the transaction.
// Concurrent scans of sibling tickets queue here, so the last one to commit
// sees every sibling scanned when it counts.
func (r *ReservationRepository) LockForScan(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := querier(ctx, r.db).GetContext(ctx, &locked,
		`SELECT id FROM reservations WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reservation %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock reservation: %w", err)
	}
	return nil
}

// MarkFullyScanned completes a reservation whose tickets have all been scanned
func (r *ReservationRepository) MarkFullyScanned(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE reservations
		SET fully_scanned = TRUE, status = 'completed', updated_at = NOW()
		WHERE id = $1`

	if _, err := querier(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark reservation fully scanned: %w", err)
	}
	return nil
}
