package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/utils"
	"github.com/sirupsen/logrus"
)

// RequestMeta carries the caller details recorded on audit entries
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	CorrelationID string
}

// AuditService writes explicit audit entries at the end of each mutating operation.
// Failures are logged and never fail the operation being audited.
type AuditService struct {
	store  auditStore
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store auditStore, logger *logrus.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger,
	}
}

// Record persists entry, enriched with request metadata and parsed device info
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog, meta RequestMeta) {
	if s == nil || s.store == nil {
		return
	}

	entry.SetMetadata(meta.IPAddress, meta.UserAgent, meta.CorrelationID)
	if meta.UserAgent != "" {
		entry.SetDetail("device_info", utils.ParseUserAgent(meta.UserAgent))
	}

	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action":         entry.Action,
			"entity_type":    entry.EntityType,
			"correlation_id": meta.CorrelationID,
		}).WithError(err).Warn("Failed to write audit log")
	}
}

// LogHoldCreated records a new booking hold
func (s *AuditService) LogHoldCreated(ctx context.Context, hold *models.BookingHold, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionHoldCreated, models.AuditSourceUser, "booking_hold").
		SetEntity(hold.GatewayTransactionID).
		SetActor(hold.UserID).
		SetSnapshots(nil, hold).
		SetDetail("kind", hold.Kind).
		SetDetail("seat_count", hold.SeatCount)
	s.Record(ctx, entry, meta)
}

// LogHoldOrphaned records a gateway transaction whose hold could not be written
func (s *AuditService) LogHoldOrphaned(ctx context.Context, transactionID string, actor *uuid.UUID, reason string, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionHoldOrphaned, models.AuditSourceUser, "booking_hold").
		SetEntity(transactionID).
		SetActor(actor).
		SetDetail("reason", reason)
	s.Record(ctx, entry, meta)
}

// LogHoldReleased records a hold dropped by a non-approved settlement
func (s *AuditService) LogHoldReleased(ctx context.Context, hold *models.BookingHold, gatewayStatus string, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionHoldReleased, models.AuditSourceGateway, "booking_hold").
		SetEntity(hold.GatewayTransactionID).
		SetSnapshots(hold, nil).
		SetDetail("gateway_status", gatewayStatus)
	s.Record(ctx, entry, meta)
}

// LogReservationCreated records a settled reservation and its tickets
func (s *AuditService) LogReservationCreated(ctx context.Context, hold *models.BookingHold, res *models.Reservation, tickets []models.Ticket, meta RequestMeta) {
	codes := make([]string, 0, len(tickets))
	for _, t := range tickets {
		codes = append(codes, t.Code)
	}

	entry := models.NewAuditLog(models.AuditActionReservationCreated, models.AuditSourceGateway, "reservation").
		SetEntity(res.ID.String()).
		SetActor(res.UserID).
		SetSnapshots(hold, res).
		SetDetail("transaction_id", hold.GatewayTransactionID).
		SetDetail("ticket_codes", codes)
	s.Record(ctx, entry, meta)
}

// LogLateOversold records a reservation confirmed after its hold expired
// that took the slot past capacity
func (s *AuditService) LogLateOversold(ctx context.Context, hold *models.BookingHold, res *models.Reservation, remaining int, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionLateOversold, models.AuditSourceGateway, "reservation").
		SetEntity(res.ID.String()).
		SetActor(res.UserID).
		SetSnapshots(hold, res).
		SetDetail("transaction_id", hold.GatewayTransactionID).
		SetDetail("seat_count", res.SeatCount).
		SetDetail("remaining_before", remaining)
	s.Record(ctx, entry, meta)
}

// LogOrderCreated records a settled order
func (s *AuditService) LogOrderCreated(ctx context.Context, hold *models.BookingHold, order *models.Order, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionOrderCreated, models.AuditSourceGateway, "order").
		SetEntity(order.ID.String()).
		SetActor(order.UserID).
		SetSnapshots(hold, order).
		SetDetail("transaction_id", hold.GatewayTransactionID)
	s.Record(ctx, entry, meta)
}

// LogScan records a successful boarding scan
func (s *AuditService) LogScan(ctx context.Context, before, after *models.Reservation, result *models.ScanResult, staffID *uuid.UUID, meta RequestMeta) {
	action := models.AuditActionTicketScanned
	if result.Legacy {
		action = models.AuditActionReservationScanned
	}

	entry := models.NewAuditLog(action, models.AuditSourceStaff, "reservation").
		SetEntity(after.ID.String()).
		SetActor(staffID).
		SetSnapshots(before, after).
		SetDetail("fully_scanned", result.FullyScanned).
		SetDetail("remaining_unscanned", result.Remaining)
	if result.Ticket != nil {
		entry.SetDetail("ticket_code", result.Ticket.Code)
	}
	s.Record(ctx, entry, meta)
}

// LogScanRejected records a scan that found nothing to consume
func (s *AuditService) LogScanRejected(ctx context.Context, code, reason string, staffID *uuid.UUID, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionScanRejected, models.AuditSourceStaff, "ticket").
		SetEntity(code).
		SetActor(staffID).
		SetDetail("reason", reason)
	s.Record(ctx, entry, meta)
}

// LogSettingUpdated records an admin change to a capacity setting
func (s *AuditService) LogSettingUpdated(ctx context.Context, before, after *models.SystemSetting, actor *uuid.UUID, meta RequestMeta) {
	entry := models.NewAuditLog(models.AuditActionSettingUpdated, models.AuditSourceUser, "system_setting").
		SetEntity(after.SettingKey).
		SetActor(actor).
		SetSnapshots(before, after)
	s.Record(ctx, entry, meta)
}

// LogHoldsPurged records one run of the cleanup job
func (s *AuditService) LogHoldsPurged(ctx context.Context, count int, cutoff time.Time) {
	entry := models.NewAuditLog(models.AuditActionHoldsPurged, models.AuditSourceSystem, "booking_hold").
		SetDetail("count", count).
		SetDetail("cutoff", cutoff)
	s.Record(ctx, entry, RequestMeta{})
}
