package payment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PlaceholderGateway stands in for the real gateway in development when no
// secret key is configured. Every transaction stays pending until Approve is called.
type PlaceholderGateway struct {
	nextID int64
	mu     sync.Mutex
	txs    map[string]*Transaction
	logger *logrus.Logger
}

// NewPlaceholderGateway creates a new PlaceholderGateway
func NewPlaceholderGateway(logger *logrus.Logger) *PlaceholderGateway {
	return &PlaceholderGateway{
		nextID: time.Now().Unix(),
		txs:    make(map[string]*Transaction),
		logger: logger,
	}
}

// CreateTransaction implements Gateway
func (g *PlaceholderGateway) CreateTransaction(_ context.Context, req TransactionRequest) (*Transaction, error) {
	tx := &Transaction{
		ID:          atomic.AddInt64(&g.nextID, 1),
		Reference:   "dev-" + uuid.New().String()[:8],
		Status:      StatusPending,
		Amount:      req.Amount,
		Description: req.Description,
	}

	g.mu.Lock()
	g.txs[tx.IDString()] = tx
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"amount":         req.Amount,
	}).Warn("Payment gateway not configured, created placeholder transaction")

	copied := *tx
	return &copied, nil
}

// GenerateCheckoutToken implements Gateway
func (g *PlaceholderGateway) GenerateCheckoutToken(_ context.Context, transactionID string) (*CheckoutToken, error) {
	token := "dev_" + uuid.New().String()
	return &CheckoutToken{
		Token: token,
		URL:   fmt.Sprintf("https://checkout.placeholder.invalid/pay/%s?tx=%s", token, transactionID),
	}, nil
}

// PushToPhone implements Gateway
func (g *PlaceholderGateway) PushToPhone(context.Context, string, string) error {
	return nil
}

// Retrieve implements Gateway
func (g *PlaceholderGateway) Retrieve(_ context.Context, transactionID string) (*Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.txs[transactionID]
	if !ok {
		return nil, &Error{Operation: "retrieve_transaction", StatusCode: 404, Message: "transaction not found"}
	}
	copied := *tx
	return &copied, nil
}

// Approve marks a placeholder transaction approved, for manual testing of the callback flow
func (g *PlaceholderGateway) Approve(transactionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.txs[transactionID]
	if ok {
		tx.Status = StatusApproved
	}
	return ok
}
