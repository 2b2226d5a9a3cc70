package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/models"
)

// AuditRepository persists audit log entries
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log inserts an audit entry. It writes through the pool, never the caller's
// transaction, so an entry survives a rollback of the operation it describes.
func (r *AuditRepository) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_logs (
			id, action, source, entity_type, entity_id, actor_id,
			before_state, after_state, details,
			ip_address, user_agent, correlation_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13
		)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.Source, entry.EntityType, entry.EntityID, entry.ActorID,
		entry.Before, entry.After, entry.Details,
		entry.IPAddress, entry.UserAgent, entry.CorrelationID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, action, source, entity_type, entity_id, actor_id,
		       before_state, after_state, details,
		       ip_address, user_agent, correlation_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	entries := []models.AuditLog{}
	if err := r.db.SelectContext(ctx, &entries, query, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
