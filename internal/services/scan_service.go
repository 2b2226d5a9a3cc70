package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/messaging"
	"github.com/nonvi/booking-core/internal/metrics"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/sirupsen/logrus"
)

// ScanService consumes tickets at boarding. Every transition is a conditional
// write, so two scanners presenting the same code cannot both succeed.
type ScanService struct {
	tx           txRunner
	tickets      ticketStore
	reservations reservationStore
	publisher    messaging.Publisher
	audit        *AuditService
	clock        clock.Clock
	logger       *logrus.Logger
}

// NewScanService creates a new scan service
func NewScanService(
	tx txRunner,
	tickets ticketStore,
	reservations reservationStore,
	publisher messaging.Publisher,
	audit *AuditService,
	clk clock.Clock,
	logger *logrus.Logger,
) *ScanService {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &ScanService{
		tx:           tx,
		tickets:      tickets,
		reservations: reservations,
		publisher:    publisher,
		audit:        audit,
		clock:        clk,
		logger:       logger,
	}
}

// NormalizeCode accepts a bare ticket code or a full QR payload
func NormalizeCode(input string) string {
	input = strings.TrimSpace(input)
	if code, ok := ParseQRPayload(input); ok {
		return strings.ToUpper(code)
	}
	return strings.ToUpper(input)
}

// Scan consumes the ticket identified by code. Per-seat tickets take
// precedence; codes unknown to the ticket table fall back to legacy
// single-code reservations.
func (s *ScanService) Scan(ctx context.Context, input string, staffID *uuid.UUID, meta RequestMeta) (*models.ScanResult, error) {
	code := NormalizeCode(input)
	if code == "" {
		return nil, NewValidationError("code", "is required")
	}

	ticket, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		return s.scanTicket(ctx, ticket, staffID, meta)
	}

	res, err := s.reservations.GetByLegacyCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return s.scanLegacy(ctx, res, staffID, meta)
	}

	metrics.Scans.WithLabelValues("not_found").Inc()
	s.audit.LogScanRejected(ctx, code, "not_found", staffID, meta)
	return nil, fmt.Errorf("ticket %s: %w", code, ErrNotFound)
}

func (s *ScanService) scanTicket(ctx context.Context, ticket *models.Ticket, staffID *uuid.UUID, meta RequestMeta) (*models.ScanResult, error) {
	res, err := s.reservations.GetByID(ctx, ticket.ReservationID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("reservation %s for ticket %s: %w", ticket.ReservationID, ticket.Code, ErrNotFound)
	}

	if ticket.Scanned {
		return nil, s.alreadyUsed(ctx, res, ticket, staffID, meta)
	}

	before := *res
	now := s.clock.Now()
	var consumed bool
	var remaining int

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.reservations.LockForScan(ctx, res.ID); err != nil {
			return err
		}

		var err error
		consumed, err = s.tickets.MarkScanned(ctx, ticket.Code, staffID, now)
		if err != nil || !consumed {
			return err
		}

		remaining, err = s.tickets.CountUnscanned(ctx, res.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return s.reservations.MarkFullyScanned(ctx, res.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !consumed {
		// Another scanner won the conditional write
		ticket.Scanned = true
		return nil, s.alreadyUsed(ctx, res, ticket, staffID, meta)
	}

	ticket.Scanned = true
	ticket.ScannedAt = &now
	ticket.ScannedBy = staffID
	if remaining == 0 {
		res.Status = models.ReservationStatusCompleted
		res.FullyScanned = true
		res.UpdatedAt = now
	}

	result := &models.ScanResult{
		Ticket:       ticket,
		Reservation:  res,
		FullyScanned: remaining == 0,
		Remaining:    remaining,
	}
	s.afterScan(ctx, &before, result, ticket.Code, staffID, meta)
	return result, nil
}

func (s *ScanService) scanLegacy(ctx context.Context, res *models.Reservation, staffID *uuid.UUID, meta RequestMeta) (*models.ScanResult, error) {
	if res.LegacyScanned {
		return nil, s.alreadyUsed(ctx, res, nil, staffID, meta)
	}

	before := *res
	consumed, err := s.reservations.MarkLegacyScanned(ctx, *res.LegacyCode)
	if err != nil {
		return nil, err
	}
	if !consumed {
		res.LegacyScanned = true
		return nil, s.alreadyUsed(ctx, res, nil, staffID, meta)
	}

	res.LegacyScanned = true
	res.FullyScanned = true
	res.Status = models.ReservationStatusCompleted
	res.UpdatedAt = s.clock.Now()

	result := &models.ScanResult{
		Reservation:  res,
		Legacy:       true,
		FullyScanned: true,
	}
	s.afterScan(ctx, &before, result, *res.LegacyCode, staffID, meta)
	return result, nil
}

func (s *ScanService) alreadyUsed(ctx context.Context, res *models.Reservation, ticket *models.Ticket, staffID *uuid.UUID, meta RequestMeta) error {
	code := ""
	if ticket != nil {
		code = ticket.Code
	} else if res.LegacyCode != nil {
		code = *res.LegacyCode
	}

	metrics.Scans.WithLabelValues("already_used").Inc()
	s.audit.LogScanRejected(ctx, code, "already_used", staffID, meta)
	s.logger.WithFields(logrus.Fields{
		"code":           code,
		"reservation_id": res.ID,
	}).Info("Scan rejected, ticket already used")

	return &AlreadyUsedError{Reservation: res, Ticket: ticket}
}

func (s *ScanService) afterScan(ctx context.Context, before *models.Reservation, result *models.ScanResult, code string, staffID *uuid.UUID, meta RequestMeta) {
	metrics.Scans.WithLabelValues("accepted").Inc()
	s.audit.LogScan(ctx, before, result.Reservation, result, staffID, meta)

	if err := s.publisher.Publish(messaging.SubjectTicketScanned, messaging.TicketScannedEvent{
		ReservationID: result.Reservation.ID,
		Code:          code,
		Legacy:        result.Legacy,
		FullyScanned:  result.FullyScanned,
		ScannedBy:     staffID,
		OccurredAt:    s.clock.Now(),
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish scan event")
	}

	s.logger.WithFields(logrus.Fields{
		"code":           code,
		"reservation_id": result.Reservation.ID,
		"legacy":         result.Legacy,
		"fully_scanned":  result.FullyScanned,
		"remaining":      result.Remaining,
	}).Info("Ticket scanned")
}
