package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/models"
)

// capacityReader is satisfied by *CapacityService
type capacityReader interface {
	SeatCapacity(ctx context.Context) (int, error)
}

// AvailabilityService computes remaining seats for a slot from committed
// reservations and unexpired holds
type AvailabilityService struct {
	reservations reservationStore
	holds        holdStore
	capacity     capacityReader
	clock        clock.Clock
	holdTTL      time.Duration
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(reservations reservationStore, holds holdStore, capacity capacityReader, clk clock.Clock, holdTTL time.Duration) *AvailabilityService {
	if holdTTL <= 0 {
		holdTTL = models.DefaultHoldTTL
	}
	return &AvailabilityService{
		reservations: reservations,
		holds:        holds,
		capacity:     capacity,
		clock:        clk,
		holdTTL:      holdTTL,
	}
}

// Check reports the slot's availability and returns *CapacityExceededError
// alongside it when requested seats do not fit.
//
// Called inside a transaction (after TxManager.LockSlot) the sums are read
// through that transaction, which is how the booking write path rechecks.
func (s *AvailabilityService) Check(ctx context.Context, slot models.Slot, requested int) (*models.Availability, error) {
	slot = slot.Canonical()
	capacity, err := s.capacity.SeatCapacity(ctx)
	if err != nil {
		return nil, err
	}

	committed, err := s.reservations.SumCommittedSeats(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to sum committed seats: %w", err)
	}

	// Holds older than the TTL are ignored here, not deleted
	held, err := s.holds.SumHeldSeats(ctx, slot, s.clock.Now().Add(-s.holdTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sum held seats: %w", err)
	}

	remaining := capacity - committed - held
	if remaining < 0 {
		remaining = 0
	}

	availability := &models.Availability{
		Slot:      slot,
		Capacity:  capacity,
		Committed: committed,
		Held:      held,
		Remaining: remaining,
	}

	if requested > remaining {
		return availability, &CapacityExceededError{Remaining: remaining, Requested: requested}
	}
	return availability, nil
}
