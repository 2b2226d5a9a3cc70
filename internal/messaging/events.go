package messaging

import (
	"time"

	"github.com/google/uuid"
)

// ReservationConfirmedEvent is published once a transport hold settles
type ReservationConfirmedEvent struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	TransactionID string     `json:"transaction_id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	TravelDate    string     `json:"travel_date"`
	TravelTime    string     `json:"travel_time"`
	SeatCount     int        `json:"seat_count"`
	TicketCodes   []string   `json:"ticket_codes"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// OrderPaidEvent is published once an order hold settles
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Total         float64   `json:"total"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// HoldReleasedEvent is published when a hold is dropped without becoming a booking
type HoldReleasedEvent struct {
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TicketScannedEvent is published on every successful scan
type TicketScannedEvent struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	Code          string     `json:"code"`
	Legacy        bool       `json:"legacy"`
	FullyScanned  bool       `json:"fully_scanned"`
	ScannedBy     *uuid.UUID `json:"scanned_by,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
