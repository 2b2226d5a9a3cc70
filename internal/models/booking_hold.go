package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING HOLD KINDS
// ============================================================================

// HoldKind distinguishes what a settled hold materialises into
type HoldKind string

const (
	HoldKindTransport HoldKind = "transport" // Becomes a reservation + tickets
	HoldKindOrder     HoldKind = "order"     // Becomes an order + order items
)

// IsValid reports whether k is a known hold kind
func (k HoldKind) IsValid() bool {
	return k == HoldKindTransport || k == HoldKindOrder
}

// DefaultHoldTTL is how long an unpaid hold counts against capacity
const DefaultHoldTTL = 15 * time.Minute

// ============================================================================
// SLOT
// ============================================================================

// Slot identifies one departure: date, wall-clock time and departure station.
// Capacity is enforced per slot.
type Slot struct {
	TravelDate         string `json:"travel_date"` // YYYY-MM-DD
	TravelTime         string `json:"travel_time"` // HH:MM
	DepartureStationID int64  `json:"departure_station_id"`
}

// TravelTimeLayout is the zero-padded HH:MM form every slot is stored and keyed by
const TravelTimeLayout = "15:04"

// CanonicalTravelTime rewrites a departure time in TravelTimeLayout, so "8:00"
// and "08:00" name the same slot. Unparsable input is returned unchanged.
func CanonicalTravelTime(value string) string {
	t, err := time.Parse(TravelTimeLayout, strings.TrimSpace(value))
	if err != nil {
		return value
	}
	return t.Format(TravelTimeLayout)
}

// Canonical returns the slot with its travel time in TravelTimeLayout
func (s Slot) Canonical() Slot {
	s.TravelTime = CanonicalTravelTime(s.TravelTime)
	return s
}

// Key returns the string used to derive the slot's advisory lock
func (s Slot) Key() string {
	return fmt.Sprintf("slot:%s:%s:%d", s.TravelDate, CanonicalTravelTime(s.TravelTime), s.DepartureStationID)
}

// ============================================================================
// JSONB PAYLOAD TYPES
// ============================================================================

// TransportPayload stores a seat booking request until payment settles
type TransportPayload struct {
	DepartureStationID int64   `json:"departure_station_id"`
	ArrivalStationID   int64   `json:"arrival_station_id"`
	TravelDate         string  `json:"travel_date"`
	TravelTime         string  `json:"travel_time"`
	SeatCount          int     `json:"seat_count"`
	UnitPrice          float64 `json:"unit_price"`
	TotalPrice         float64 `json:"total_price"`
	GuestName          *string `json:"guest_name,omitempty"`
	GuestPhone         *string `json:"guest_phone,omitempty"`
}

// Slot returns the capacity slot of the payload
func (p TransportPayload) Slot() Slot {
	return Slot{
		TravelDate:         p.TravelDate,
		TravelTime:         CanonicalTravelTime(p.TravelTime),
		DepartureStationID: p.DepartureStationID,
	}
}

// OrderItemPayload is a priced cart line frozen at checkout time
type OrderItemPayload struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderPayload stores a cart checkout until payment settles
type OrderPayload struct {
	Items           []OrderItemPayload `json:"items"`
	Total           float64            `json:"total"`
	DeliveryAddress *string            `json:"delivery_address,omitempty"`
}

// HoldPayload is the JSONB body of a hold; exactly one side is set, matching Kind
type HoldPayload struct {
	Transport *TransportPayload `json:"transport,omitempty"`
	Order     *OrderPayload     `json:"order,omitempty"`
}

// Value implements driver.Valuer
func (p HoldPayload) Value() (driver.Value, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements sql.Scanner
func (p *HoldPayload) Scan(value interface{}) error {
	if value == nil {
		*p = HoldPayload{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), p)
}

// ============================================================================
// BOOKING HOLD
// ============================================================================

// BookingHold is a provisional claim on capacity awaiting payment.
// Holds are only ever inserted and deleted; expiry is computed from CreatedAt.
type BookingHold struct {
	ID                   uuid.UUID   `json:"id" db:"id"`
	GatewayTransactionID string      `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	Kind                 HoldKind    `json:"kind" db:"kind"`
	UserID               *uuid.UUID  `json:"user_id,omitempty" db:"user_id"`
	Payload              HoldPayload `json:"payload" db:"payload"`
	Amount               float64     `json:"amount" db:"amount"`

	// Slot columns, denormalised from the transport payload (NULL for orders)
	TravelDate         *time.Time `json:"travel_date,omitempty" db:"travel_date"`
	TravelTime         *string    `json:"travel_time,omitempty" db:"travel_time"`
	DepartureStationID *int64     `json:"departure_station_id,omitempty" db:"departure_station_id"`
	SeatCount          int        `json:"seat_count" db:"seat_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the hold has stopped counting against capacity
func (h *BookingHold) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(h.CreatedAt) > ttl
}

// ExpiresAt returns the instant after which the hold no longer counts
func (h *BookingHold) ExpiresAt(ttl time.Duration) time.Time {
	return h.CreatedAt.Add(ttl)
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// CreateTransportBookingRequest is the body of POST /bookings/transport
type CreateTransportBookingRequest struct {
	DepartureStationID int64   `json:"departure_station_id" validate:"required,gt=0"`
	ArrivalStationID   int64   `json:"arrival_station_id" validate:"required,gt=0,nefield=DepartureStationID"`
	TravelDate         string  `json:"travel_date" validate:"required,datetime=2006-01-02"`
	TravelTime         string  `json:"travel_time" validate:"required,datetime=15:04"`
	SeatCount          int     `json:"seat_count" validate:"required,min=1"`
	GuestName          *string `json:"guest_name,omitempty" validate:"omitempty,min=2,max=100"`
	GuestPhone         *string `json:"guest_phone,omitempty" validate:"omitempty,min=8,max=20"`
	// PaymentMode requests a direct mobile-money push instead of a hosted checkout
	PaymentMode *string `json:"payment_mode,omitempty" validate:"omitempty,oneof=mtn_open moov"`
}

// Slot returns the capacity slot targeted by the request
func (r *CreateTransportBookingRequest) Slot() Slot {
	return Slot{
		TravelDate:         r.TravelDate,
		TravelTime:         CanonicalTravelTime(r.TravelTime),
		DepartureStationID: r.DepartureStationID,
	}
}

// OrderItemRequest is one cart line
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=100"`
}

// CreateOrderBookingRequest is the body of POST /bookings/order
type CreateOrderBookingRequest struct {
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress *string            `json:"delivery_address,omitempty" validate:"omitempty,max=255"`
}

// BookingIntentResponse is returned once a hold exists and checkout can start
type BookingIntentResponse struct {
	TransactionID string    `json:"transaction_id"`
	Kind          HoldKind  `json:"kind"`
	CheckoutURL   string    `json:"checkout_url"`
	CheckoutToken string    `json:"checkout_token"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	ExpiresAt     time.Time `json:"expires_at"`
	PushSent      bool      `json:"push_sent,omitempty"`
}

// Availability is the result of a capacity check for one slot
type Availability struct {
	Slot      Slot `json:"slot"`
	Capacity  int  `json:"capacity"`
	Committed int  `json:"committed"`
	Held      int  `json:"held"`
	Remaining int  `json:"remaining"`
}

// AvailabilityQuery is the query string of GET /availability
type AvailabilityQuery struct {
	Date               string `form:"date" binding:"required,datetime=2006-01-02"`
	Time               string `form:"time" binding:"required,datetime=15:04"`
	DepartureStationID int64  `form:"departure_station_id" binding:"required,gt=0"`
	Seats              int    `form:"seats" binding:"omitempty,min=1"`
}

// Slot returns the slot the query asks about
func (q AvailabilityQuery) Slot() Slot {
	return Slot{TravelDate: q.Date, TravelTime: CanonicalTravelTime(q.Time), DepartureStationID: q.DepartureStationID}
}

// AvailabilityResponse reports whether the requested seats fit
type AvailabilityResponse struct {
	Availability
	Requested int  `json:"requested"`
	Available bool `json:"available"`
}
