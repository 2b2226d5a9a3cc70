package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/models"
)

type reservationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

type ticketLister interface {
	ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Ticket, error)
}

// Viewer is the caller of a read path. Staff may read any reservation.
type Viewer struct {
	UserID uuid.UUID
	Staff  bool
}

// ReservationService serves reservation reads with the projected status
type ReservationService struct {
	reservations reservationReader
	tickets      ticketLister
	status       *StatusEngine
}

// NewReservationService creates a new reservation service
func NewReservationService(reservations reservationReader, tickets ticketLister, status *StatusEngine) *ReservationService {
	return &ReservationService{reservations: reservations, tickets: tickets, status: status}
}

// Get returns the reservation with its tickets, as seen by viewer.
// Guest reservations have no owner and are visible to staff only.
func (s *ReservationService) Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*models.ReservationView, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}

	if !viewer.Staff && (res.UserID == nil || *res.UserID != viewer.UserID) {
		return nil, ErrForbidden
	}

	tickets, err := s.tickets.ListByReservation(ctx, res.ID)
	if err != nil {
		return nil, err
	}

	return s.status.View(res, tickets), nil
}
