package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketCodeLength is the length of a per-seat ticket code
const TicketCodeLength = 8

// Ticket is one scannable seat of a reservation. Scanned only ever moves false to true.
type Ticket struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	ReservationID uuid.UUID  `json:"reservation_id" db:"reservation_id"`
	Code          string     `json:"code" db:"code"`
	Scanned       bool       `json:"scanned" db:"scanned"`
	ScannedAt     *time.Time `json:"scanned_at,omitempty" db:"scanned_at"`
	ScannedBy     *uuid.UUID `json:"scanned_by,omitempty" db:"scanned_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// TicketView adds the QR payload rendered by clients
type TicketView struct {
	Ticket
	QRPayload string `json:"qr_payload"`
}

// ScanRequest is the body of POST /staff/scan.
// Code may be a bare ticket code or a full QR payload.
type ScanRequest struct {
	Code string `json:"code" validate:"required,min=4,max=200"`
}

// ScanResult describes a successful scan
type ScanResult struct {
	Ticket       *Ticket      `json:"ticket,omitempty"`
	Reservation  *Reservation `json:"reservation"`
	Legacy       bool         `json:"legacy"`
	FullyScanned bool         `json:"fully_scanned"`
	Remaining    int          `json:"remaining_unscanned"`
}
