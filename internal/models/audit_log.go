package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a mutating operation recorded in audit_logs
type AuditAction string

const (
	AuditActionHoldCreated        AuditAction = "hold_created"
	AuditActionHoldReleased       AuditAction = "hold_released"
	AuditActionHoldOrphaned       AuditAction = "hold_orphaned"
	AuditActionReservationCreated AuditAction = "reservation_created"
	AuditActionOrderCreated       AuditAction = "order_created"
	AuditActionLateOversold       AuditAction = "oversold_on_late_settlement"
	AuditActionTicketScanned      AuditAction = "ticket_scanned"
	AuditActionReservationScanned AuditAction = "reservation_scanned"
	AuditActionScanRejected       AuditAction = "scan_rejected"
	AuditActionSettingUpdated     AuditAction = "setting_updated"
	AuditActionHoldsPurged        AuditAction = "holds_purged"
)

// AuditSource identifies where the event originated
type AuditSource string

const (
	AuditSourceUser    AuditSource = "user"
	AuditSourceGateway AuditSource = "gateway"
	AuditSourceStaff   AuditSource = "staff"
	AuditSourceSystem  AuditSource = "system"
)

// AuditLog is an immutable record of a mutating operation with before/after snapshots
type AuditLog struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Action     AuditAction `json:"action" db:"action"`
	Source     AuditSource `json:"source" db:"source"`
	EntityType string      `json:"entity_type" db:"entity_type"`
	EntityID   *string     `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    *uuid.UUID  `json:"actor_id,omitempty" db:"actor_id"`

	Before  JSONB `json:"before,omitempty" db:"before_state"`
	After   JSONB `json:"after,omitempty" db:"after_state"`
	Details JSONB `json:"details,omitempty" db:"details"`

	// Metadata
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewAuditLog creates a new audit entry with required fields
func NewAuditLog(action AuditAction, source AuditSource, entityType string) *AuditLog {
	return &AuditLog{
		ID:         uuid.New(),
		Action:     action,
		Source:     source,
		EntityType: entityType,
		CreatedAt:  time.Now(),
	}
}

// SetEntity sets the affected entity id
func (a *AuditLog) SetEntity(id string) *AuditLog {
	if id != "" {
		a.EntityID = &id
	}
	return a
}

// SetActor sets the user or staff member who triggered the action
func (a *AuditLog) SetActor(actorID *uuid.UUID) *AuditLog {
	a.ActorID = actorID
	return a
}

// SetSnapshots records the entity state before and after the operation
func (a *AuditLog) SetSnapshots(before, after interface{}) *AuditLog {
	a.Before = ToJSONB(before)
	a.After = ToJSONB(after)
	return a
}

// SetDetail adds one key to the free-form details
func (a *AuditLog) SetDetail(key string, value interface{}) *AuditLog {
	if a.Details == nil {
		a.Details = JSONB{}
	}
	a.Details[key] = value
	return a
}

// SetMetadata sets request metadata
func (a *AuditLog) SetMetadata(ip, userAgent, correlationID string) *AuditLog {
	if ip != "" {
		a.IPAddress = &ip
	}
	if userAgent != "" {
		a.UserAgent = &userAgent
	}
	if correlationID != "" {
		a.CorrelationID = &correlationID
	}
	return a
}
