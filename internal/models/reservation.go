package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// RESERVATION STATUSES
// ============================================================================

// ReservationStatus is the stored (raw) status of a reservation.
// Read paths project it through the status engine before returning it.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusEnRoute   ReservationStatus = "en_route"
	ReservationStatusCompleted ReservationStatus = "completed"
)

// ActiveReservationStatuses are the raw statuses that consume capacity
var ActiveReservationStatuses = []ReservationStatus{
	ReservationStatusConfirmed,
	ReservationStatusEnRoute,
	ReservationStatusCompleted,
}

// IsTerminal reports whether time can no longer change the status
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusCompleted
}

// PaymentStatus is the payment state recorded on a reservation
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ============================================================================
// RESERVATION
// ============================================================================

// Reservation is a committed seat booking for one slot
type Reservation struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	UserID             *uuid.UUID        `json:"user_id,omitempty" db:"user_id"`
	GuestName          *string           `json:"guest_name,omitempty" db:"guest_name"`
	GuestPhone         *string           `json:"guest_phone,omitempty" db:"guest_phone"`
	DepartureStationID int64             `json:"departure_station_id" db:"departure_station_id"`
	ArrivalStationID   int64             `json:"arrival_station_id" db:"arrival_station_id"`
	TravelDate         time.Time         `json:"travel_date" db:"travel_date"`
	TravelTime         string            `json:"travel_time" db:"travel_time"`
	SeatCount          int               `json:"seat_count" db:"seat_count"`
	TotalPrice         float64           `json:"total_price" db:"total_price"`
	Status             ReservationStatus `json:"status" db:"status"`
	PaymentID          *string           `json:"payment_id,omitempty" db:"payment_id"`
	PaymentStatus      PaymentStatus     `json:"payment_status" db:"payment_status"`

	// Legacy single-code reservations (pre per-seat tickets)
	LegacyCode    *string `json:"code,omitempty" db:"code"`
	LegacyScanned bool    `json:"scanned" db:"scanned"`

	FullyScanned bool      `json:"fully_scanned" db:"fully_scanned"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Slot returns the capacity slot the reservation occupies
func (r *Reservation) Slot() Slot {
	return Slot{
		TravelDate:         r.TravelDate.Format("2006-01-02"),
		TravelTime:         r.TravelTime,
		DepartureStationID: r.DepartureStationID,
	}
}

// NewReservationFromHold builds the confirmed reservation a settled transport hold becomes
func NewReservationFromHold(hold *BookingHold, travelDate time.Time, now time.Time) *Reservation {
	p := hold.Payload.Transport
	paymentID := hold.GatewayTransactionID
	return &Reservation{
		ID:                 uuid.New(),
		UserID:             hold.UserID,
		GuestName:          p.GuestName,
		GuestPhone:         p.GuestPhone,
		DepartureStationID: p.DepartureStationID,
		ArrivalStationID:   p.ArrivalStationID,
		TravelDate:         travelDate,
		TravelTime:         p.TravelTime,
		SeatCount:          p.SeatCount,
		TotalPrice:         p.TotalPrice,
		Status:             ReservationStatusConfirmed,
		PaymentID:          &paymentID,
		PaymentStatus:      PaymentStatusPaid,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ReservationView is the read-path representation: status projected, tickets attached
type ReservationView struct {
	Reservation
	RawStatus ReservationStatus `json:"raw_status"`
	Tickets   []TicketView      `json:"tickets"`
}
