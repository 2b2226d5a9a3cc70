package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nonvi/booking-core/internal/models"
)

// OrderRepository handles product lookup and order persistence
type OrderRepository struct {
	db DB
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetActiveProducts returns the active products among ids, keyed by id
func (r *OrderRepository) GetActiveProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	if len(ids) == 0 {
		return map[int64]models.Product{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, name, price, is_active FROM products WHERE id IN (?) AND is_active = TRUE`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build product query: %w", err)
	}

	q := querier(ctx, r.db)
	products := []models.Product{}
	if err := q.SelectContext(ctx, &products, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// Create inserts an order and its items
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	q := querier(ctx, r.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, payment_id, delivery_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.Total, order.Status, order.PaymentID, order.DeliveryAddress, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range order.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}
