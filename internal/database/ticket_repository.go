package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/models"
)

// ErrDuplicateTicketCode is returned when an insert collides with an existing code
var ErrDuplicateTicketCode = errors.New("ticket code already exists")

// TicketRepository handles ticket database operations
type TicketRepository struct {
	db DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, reservation_id, code, scanned, scanned_at, scanned_by, created_at`

// CodeExists reports whether a ticket code is already taken
func (r *TicketRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := querier(ctx, r.db).GetContext(ctx, &count, `SELECT COUNT(*) FROM tickets WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to check ticket code: %w", err)
	}
	return count > 0, nil
}

// Create inserts a ticket. A code collision returns ErrDuplicateTicketCode without
// aborting the surrounding transaction, so the caller can retry with a new code.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	query := `INSERT INTO tickets (` + ticketColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO NOTHING`

	result, err := querier(ctx, r.db).ExecContext(ctx, query,
		ticket.ID, ticket.ReservationID, ticket.Code, ticket.Scanned,
		ticket.ScannedAt, ticket.ScannedBy, ticket.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateTicketCode
	}
	return nil
}

// GetByCode returns a ticket, or nil, nil when absent
func (r *TicketRepository) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE code = $1`

	var ticket models.Ticket
	err := querier(ctx, r.db).GetContext(ctx, &ticket, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}

// ListByReservation returns a reservation's tickets in issue order
func (r *TicketRepository) ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reservation_id = $1 ORDER BY created_at, code`

	tickets := []models.Ticket{}
	if err := querier(ctx, r.db).SelectContext(ctx, &tickets, query, reservationID); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// MarkScanned consumes a ticket. The conditional update is the only write;
// returns false when another scan got there first.
func (r *TicketRepository) MarkScanned(ctx context.Context, code string, scannedBy *uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE tickets
		SET scanned = TRUE, scanned_at = $2, scanned_by = $3
		WHERE code = $1 AND scanned = FALSE`

	result, err := querier(ctx, r.db).ExecContext(ctx, query, code, at, scannedBy)
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket scanned: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CountUnscanned counts the reservation's tickets not yet scanned
func (r *TicketRepository) CountUnscanned(ctx context.Context, reservationID uuid.UUID) (int, error) {
	var count int
	err := querier(ctx, r.db).GetContext(ctx, &count,
		`SELECT COUNT(*) FROM tickets WHERE reservation_id = $1 AND scanned = FALSE`, reservationID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unscanned tickets: %w", err)
	}
	return count, nil
}
