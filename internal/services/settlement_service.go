package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/keystore"
	"github.com/nonvi/booking-core/internal/messaging"
	"github.com/nonvi/booking-core/internal/metrics"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/pkg/payment"
	"github.com/sirupsen/logrus"
)

// SettlementOutcome describes what a settlement callback did
type SettlementOutcome string

const (
	OutcomeConfirmed      SettlementOutcome = "confirmed"
	OutcomeReleased       SettlementOutcome = "released"
	OutcomeAlreadySettled SettlementOutcome = "already_settled"
	// OutcomePending means the gateway has no verdict yet; the hold is untouched
	OutcomePending SettlementOutcome = "pending"
)

const (
	settlementMemoPrefix = "settlement:"
	settlementMemoTTL    = 24 * time.Hour
)

// SettlementResult is returned for every callback, including duplicates
type SettlementResult struct {
	Outcome       SettlementOutcome   `json:"outcome"`
	TransactionID string              `json:"transaction_id"`
	Kind          models.HoldKind     `json:"kind,omitempty"`
	Reservation   *models.Reservation `json:"reservation,omitempty"`
	Tickets       []models.Ticket     `json:"tickets,omitempty"`
	Order         *models.Order       `json:"order,omitempty"`

	// Oversold is set when a late approval pushed the slot past capacity
	Oversold  bool `json:"oversold,omitempty"`
	remaining int
}

// SettlementService turns a hold plus the gateway's verdict into a durable
// reservation or order, exactly once per transaction
type SettlementService struct {
	tx           txRunner
	holds        holdStore
	reservations reservationStore
	orders       orderStore
	issuer       *TicketIssuer
	availability *AvailabilityService
	gateway      payment.Gateway
	memo         keystore.Store
	publisher    messaging.Publisher
	audit        *AuditService
	clock        clock.Clock
	holdTTL      time.Duration
	logger       *logrus.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	tx txRunner,
	holds holdStore,
	reservations reservationStore,
	orders orderStore,
	issuer *TicketIssuer,
	availability *AvailabilityService,
	gateway payment.Gateway,
	memo keystore.Store,
	publisher messaging.Publisher,
	audit *AuditService,
	clk clock.Clock,
	holdTTL time.Duration,
	logger *logrus.Logger,
) *SettlementService {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	if holdTTL <= 0 {
		holdTTL = models.DefaultHoldTTL
	}
	return &SettlementService{
		tx:           tx,
		holds:        holds,
		reservations: reservations,
		orders:       orders,
		issuer:       issuer,
		availability: availability,
		gateway:      gateway,
		memo:         memo,
		publisher:    publisher,
		audit:        audit,
		clock:        clk,
		holdTTL:      holdTTL,
		logger:       logger,
	}
}

// Settle consumes the hold for transactionID. An approved status materialises
// the hold; any other status releases it. A missing hold means the callback
// was already handled and is answered with OutcomeAlreadySettled.
func (s *SettlementService) Settle(ctx context.Context, transactionID, status string, meta RequestMeta) (*SettlementResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, NewValidationError("id", "is required")
	}

	approved := strings.EqualFold(strings.TrimSpace(status), payment.StatusApproved)
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"gateway_status": status,
		"correlation_id": meta.CorrelationID,
	})

	result := &SettlementResult{TransactionID: transactionID}
	var hold *models.BookingHold

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		hold, err = s.holds.TakeByTransactionID(ctx, transactionID)
		if err != nil {
			return err
		}
		if hold == nil {
			result.Outcome = OutcomeAlreadySettled
			return nil
		}
		result.Kind = hold.Kind

		if !approved {
			result.Outcome = OutcomeReleased
			return nil
		}

		expired := hold.IsExpired(s.clock.Now(), s.holdTTL)
		if expired {
			// Approved payments settle even after the hold stopped counting
			log.WithField("created_at", hold.CreatedAt).Warn("Settling approved payment for expired hold")
		}

		switch hold.Kind {
		case models.HoldKindTransport:
			return s.materialiseReservation(ctx, hold, expired, result)
		case models.HoldKindOrder:
			return s.materialiseOrder(ctx, hold, result)
		default:
			return fmt.Errorf("unknown hold kind %q", hold.Kind)
		}
	})
	if err != nil {
		metrics.Settlements.WithLabelValues("error").Inc()
		log.WithError(err).Error("Settlement failed")
		return nil, err
	}

	metrics.Settlements.WithLabelValues(string(result.Outcome)).Inc()

	if result.Outcome == OutcomeAlreadySettled {
		if previous, ok := s.LastOutcome(ctx, transactionID); ok {
			log.WithField("previous_outcome", previous).Info("Duplicate settlement callback ignored")
		} else {
			log.Info("Settlement callback for unknown or settled transaction ignored")
		}
		return result, nil
	}

	s.remember(ctx, transactionID, result.Outcome)
	s.afterCommit(ctx, hold, result, status, meta)

	log.WithField("outcome", result.Outcome).Info("Settlement processed")
	return result, nil
}

// SettleFromGateway asks the gateway for the transaction status before settling.
// Used by the browser return route, which may arrive without a trustworthy status.
func (s *SettlementService) SettleFromGateway(ctx context.Context, transactionID string, meta RequestMeta) (*SettlementResult, error) {
	return s.SettleCallback(ctx, transactionID, "", meta)
}

// SettleCallback handles a gateway webhook. The webhook is unauthenticated, so
// the status it claims is only compared and logged: the gateway's own record
// of the transaction decides the outcome.
func (s *SettlementService) SettleCallback(ctx context.Context, transactionID, claimedStatus string, meta RequestMeta) (*SettlementResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, NewValidationError("id", "is required")
	}

	txn, err := s.gateway.Retrieve(ctx, transactionID)
	if err != nil {
		return nil, newGatewayError(s.logger, "retrieve", err, meta.CorrelationID)
	}

	claimedStatus = strings.TrimSpace(claimedStatus)
	if claimedStatus != "" && !strings.EqualFold(claimedStatus, txn.Status) {
		metrics.Settlements.WithLabelValues("status_mismatch").Inc()
		s.logger.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"claimed_status": claimedStatus,
			"gateway_status": txn.Status,
			"correlation_id": meta.CorrelationID,
		}).Warn("Callback status does not match the gateway record")
	}

	if txn.Status == "" || strings.EqualFold(txn.Status, payment.StatusPending) {
		// Still in flight; leave the hold for a later callback
		if previous, ok := s.LastOutcome(ctx, transactionID); ok {
			return &SettlementResult{Outcome: previous, TransactionID: transactionID}, nil
		}
		return &SettlementResult{Outcome: OutcomePending, TransactionID: transactionID}, nil
	}
	return s.Settle(ctx, transactionID, txn.Status, meta)
}

// LastOutcome returns the recorded outcome of a recent settlement
func (s *SettlementService) LastOutcome(ctx context.Context, transactionID string) (SettlementOutcome, bool) {
	if s.memo == nil {
		return "", false
	}
	value, ok, err := s.memo.Get(ctx, settlementMemoPrefix+transactionID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read settlement memo")
		return "", false
	}
	if !ok {
		return "", false
	}
	return SettlementOutcome(value), true
}

func (s *SettlementService) materialiseReservation(ctx context.Context, hold *models.BookingHold, expired bool, result *SettlementResult) error {
	transport := hold.Payload.Transport
	if transport == nil {
		return fmt.Errorf("transport hold %s has no transport payload", hold.GatewayTransactionID)
	}

	travelDate, err := time.Parse("2006-01-02", transport.TravelDate)
	if err != nil {
		return fmt.Errorf("transport hold %s has invalid travel date: %w", hold.GatewayTransactionID, err)
	}

	// Serialise with bookers of the same slot
	if err := s.tx.LockSlot(ctx, transport.Slot().Key()); err != nil {
		return err
	}

	// An expired hold stopped counting, so its seats may have been resold
	if expired && s.availability != nil {
		_, err := s.availability.Check(ctx, transport.Slot(), hold.SeatCount)
		var capErr *CapacityExceededError
		switch {
		case errors.As(err, &capErr):
			result.Oversold = true
			result.remaining = capErr.Remaining
		case err != nil:
			return err
		}
	}

	res := models.NewReservationFromHold(hold, travelDate, s.clock.Now())
	if err := s.reservations.Create(ctx, res); err != nil {
		return err
	}

	tickets, err := s.issuer.IssueForReservation(ctx, res.ID, res.SeatCount)
	if err != nil {
		return err
	}

	result.Outcome = OutcomeConfirmed
	result.Reservation = res
	result.Tickets = tickets
	return nil
}

func (s *SettlementService) materialiseOrder(ctx context.Context, hold *models.BookingHold, result *SettlementResult) error {
	if hold.Payload.Order == nil {
		return fmt.Errorf("order hold %s has no order payload", hold.GatewayTransactionID)
	}

	order := models.NewOrderFromHold(hold, s.clock.Now())
	if err := s.orders.Create(ctx, order); err != nil {
		return err
	}

	result.Outcome = OutcomeConfirmed
	result.Order = order
	return nil
}

// afterCommit runs the audit, event and metric side effects of a settlement
func (s *SettlementService) afterCommit(ctx context.Context, hold *models.BookingHold, result *SettlementResult, status string, meta RequestMeta) {
	now := s.clock.Now()

	switch {
	case result.Reservation != nil:
		res := result.Reservation
		codes := make([]string, 0, len(result.Tickets))
		for _, t := range result.Tickets {
			codes = append(codes, t.Code)
		}
		metrics.TicketsIssued.Add(float64(len(result.Tickets)))
		s.audit.LogReservationCreated(ctx, hold, res, result.Tickets, meta)
		if result.Oversold {
			metrics.LateSettlementOversold.Inc()
			s.audit.LogLateOversold(ctx, hold, res, result.remaining, meta)
			s.logger.WithFields(logrus.Fields{
				"transaction_id": result.TransactionID,
				"reservation_id": res.ID,
				"seat_count":     res.SeatCount,
				"remaining":      result.remaining,
			}).Error("Late settlement oversold the slot")
		}
		s.publish(messaging.SubjectReservationConfirmed, messaging.ReservationConfirmedEvent{
			ReservationID: res.ID,
			TransactionID: result.TransactionID,
			UserID:        res.UserID,
			TravelDate:    res.TravelDate.Format("2006-01-02"),
			TravelTime:    res.TravelTime,
			SeatCount:     res.SeatCount,
			TicketCodes:   codes,
			OccurredAt:    now,
		})

	case result.Order != nil:
		s.audit.LogOrderCreated(ctx, hold, result.Order, meta)
		s.publish(messaging.SubjectOrderPaid, messaging.OrderPaidEvent{
			OrderID:       result.Order.ID,
			TransactionID: result.TransactionID,
			Total:         result.Order.Total,
			OccurredAt:    now,
		})

	default:
		s.audit.LogHoldReleased(ctx, hold, status, meta)
		s.publish(messaging.SubjectHoldReleased, messaging.HoldReleasedEvent{
			TransactionID: result.TransactionID,
			Kind:          string(hold.Kind),
			Reason:        "payment_" + strings.ToLower(status),
			OccurredAt:    now,
		})
	}
}

func (s *SettlementService) remember(ctx context.Context, transactionID string, outcome SettlementOutcome) {
	if s.memo == nil {
		return
	}
	if err := s.memo.Set(ctx, settlementMemoPrefix+transactionID, string(outcome), settlementMemoTTL); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transactionID).Warn("Failed to record settlement memo")
	}
}

func (s *SettlementService) publish(subject string, event interface{}) {
	if err := s.publisher.Publish(subject, event); err != nil {
		s.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
	}
}
