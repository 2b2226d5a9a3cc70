package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the state of a shop order
type OrderStatus string

const (
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Product is a catalogue entry that can be added to an order
type Product struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Price    float64 `json:"price" db:"price"`
	IsActive bool    `json:"is_active" db:"is_active"`
}

// Order is a paid cart created from a settled order hold
type Order struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	UserID          *uuid.UUID  `json:"user_id,omitempty" db:"user_id"`
	Total           float64     `json:"total" db:"total"`
	Status          OrderStatus `json:"status" db:"status"`
	PaymentID       string      `json:"payment_id" db:"payment_id"`
	DeliveryAddress *string     `json:"delivery_address,omitempty" db:"delivery_address"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	Items           []OrderItem `json:"items" db:"-"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
}

// NewOrderFromHold builds the paid order a settled order hold becomes
func NewOrderFromHold(hold *BookingHold, now time.Time) *Order {
	p := hold.Payload.Order
	order := &Order{
		ID:              uuid.New(),
		UserID:          hold.UserID,
		Total:           p.Total,
		Status:          OrderStatusPaid,
		PaymentID:       hold.GatewayTransactionID,
		DeliveryAddress: p.DeliveryAddress,
		CreatedAt:       now,
	}
	for _, item := range p.Items {
		order.Items = append(order.Items, OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return order
}
