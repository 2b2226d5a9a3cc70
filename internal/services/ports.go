package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/models"
)

// The interfaces below are the slices of the repositories each service needs.
// *database.XxxRepository values satisfy them; tests substitute in-memory fakes.

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockSlot(ctx context.Context, key string) error
}

type settingStore interface {
	GetAll(ctx context.Context) ([]models.SystemSetting, error)
	GetByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	Upsert(ctx context.Context, key, value string) (*models.SystemSetting, error)
}

type holdStore interface {
	Create(ctx context.Context, hold *models.BookingHold) error
	TakeByTransactionID(ctx context.Context, transactionID string) (*models.BookingHold, error)
	SumHeldSeats(ctx context.Context, slot models.Slot, since time.Time) (int, error)
}

type holdPurger interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.BookingHold, error)
}

type reservationStore interface {
	Create(ctx context.Context, res *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	GetByLegacyCode(ctx context.Context, code string) (*models.Reservation, error)
	SumCommittedSeats(ctx context.Context, slot models.Slot) (int, error)
	MarkLegacyScanned(ctx context.Context, code string) (bool, error)
	LockForScan(ctx context.Context, id uuid.UUID) error
	MarkFullyScanned(ctx context.Context, id uuid.UUID) error
}

type ticketStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Ticket, error)
	MarkScanned(ctx context.Context, code string, scannedBy *uuid.UUID, at time.Time) (bool, error)
	CountUnscanned(ctx context.Context, reservationID uuid.UUID) (int, error)
}

type orderStore interface {
	GetActiveProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	Create(ctx context.Context, order *models.Order) error
}

type auditStore interface {
	Log(ctx context.Context, entry *models.AuditLog) error
}

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
