package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/metrics"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/pkg/payment"
	"github.com/nonvi/booking-core/pkg/validator"
	"github.com/sirupsen/logrus"
)

// IntentConfig holds the booking rules applied when creating holds
type IntentConfig struct {
	HoldTTL         time.Duration
	OperatingStart  int // minutes after midnight, inclusive
	OperatingEnd    int // minutes after midnight, inclusive
	Location        *time.Location
	Currency        string
	CallbackBaseURL string // e.g. https://api.example.com/api/v1
	CustomerCountry string
}

// Owner identifies who is booking. UserID is nil for guest bookings.
type Owner struct {
	UserID *uuid.UUID
	Name   string
	Phone  string
}

// unitPricer is satisfied by *CapacityService
type unitPricer interface {
	UnitPrice(ctx context.Context) (float64, error)
}

// BookingIntentService validates booking requests, opens a gateway
// transaction and records the provisional hold
type BookingIntentService struct {
	tx           txRunner
	holds        holdStore
	orders       orderStore
	availability *AvailabilityService
	pricer       unitPricer
	gateway      payment.Gateway
	audit        *AuditService
	phones       *validator.PhoneValidator
	clock        clock.Clock
	config       IntentConfig
	logger       *logrus.Logger
}

// NewBookingIntentService creates a new booking intent service
func NewBookingIntentService(
	tx txRunner,
	holds holdStore,
	orders orderStore,
	availability *AvailabilityService,
	pricer unitPricer,
	gateway payment.Gateway,
	audit *AuditService,
	clk clock.Clock,
	config IntentConfig,
	logger *logrus.Logger,
) *BookingIntentService {
	if config.HoldTTL <= 0 {
		config.HoldTTL = models.DefaultHoldTTL
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &BookingIntentService{
		tx:           tx,
		holds:        holds,
		orders:       orders,
		availability: availability,
		pricer:       pricer,
		gateway:      gateway,
		audit:        audit,
		phones:       validator.NewPhoneValidator(),
		clock:        clk,
		config:       config,
		logger:       logger,
	}
}

// ============================================================================
// TRANSPORT
// ============================================================================

// CreateTransportIntent books seats on a slot pending payment
func (s *BookingIntentService) CreateTransportIntent(
	ctx context.Context,
	owner Owner,
	req *models.CreateTransportBookingRequest,
	meta RequestMeta,
) (*models.BookingIntentResponse, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationErrorFrom(err)
	}
	req.TravelTime = models.CanonicalTravelTime(req.TravelTime)

	customer, err := s.transportCustomer(owner, req)
	if err != nil {
		return nil, err
	}
	if err := s.validateDeparture(req.TravelDate, req.TravelTime); err != nil {
		return nil, err
	}

	slot := req.Slot()
	log := s.logger.WithFields(logrus.Fields{
		"slot":           slot.Key(),
		"seat_count":     req.SeatCount,
		"correlation_id": meta.CorrelationID,
	})

	// Fail fast before touching the gateway; the locked recheck below is authoritative
	if _, err := s.availability.Check(ctx, slot, req.SeatCount); err != nil {
		if isCapacityExceeded(err) {
			metrics.CapacityRejections.Inc()
		}
		return nil, err
	}

	unitPrice, err := s.pricer.UnitPrice(ctx)
	if err != nil {
		return nil, err
	}
	total := roundPrice(unitPrice * float64(req.SeatCount))

	payload := &models.TransportPayload{
		DepartureStationID: req.DepartureStationID,
		ArrivalStationID:   req.ArrivalStationID,
		TravelDate:         req.TravelDate,
		TravelTime:         req.TravelTime,
		SeatCount:          req.SeatCount,
		UnitPrice:          unitPrice,
		TotalPrice:         total,
		GuestName:          req.GuestName,
		GuestPhone:         req.GuestPhone,
	}

	hold := &models.BookingHold{
		ID:      uuid.New(),
		Kind:    models.HoldKindTransport,
		UserID:  owner.UserID,
		Payload: models.HoldPayload{Transport: payload},
		Amount:  total,
	}
	travelDate, _ := time.Parse("2006-01-02", req.TravelDate)
	hold.TravelDate = &travelDate
	hold.TravelTime = &payload.TravelTime
	hold.DepartureStationID = &payload.DepartureStationID
	hold.SeatCount = req.SeatCount

	description := fmt.Sprintf("Bus ticket %s %s x%d", req.TravelDate, req.TravelTime, req.SeatCount)
	checkout, err := s.openTransaction(ctx, hold, description, customer, meta)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockSlot(ctx, slot.Key()); err != nil {
			return err
		}
		if _, err := s.availability.Check(ctx, slot, req.SeatCount); err != nil {
			return err
		}
		hold.CreatedAt = s.clock.Now()
		return s.holds.Create(ctx, hold)
	})
	if err != nil {
		// The gateway transaction exists but no hold backs it; settlement will find nothing
		log.WithError(err).WithField("transaction_id", hold.GatewayTransactionID).
			Warn("Hold not recorded, gateway transaction orphaned")
		s.audit.LogHoldOrphaned(ctx, hold.GatewayTransactionID, owner.UserID, err.Error(), meta)
		if isCapacityExceeded(err) {
			metrics.CapacityRejections.Inc()
		}
		return nil, err
	}

	response := s.intentResponse(hold, checkout)
	if req.PaymentMode != nil {
		response.PushSent = s.pushToPhone(ctx, *req.PaymentMode, checkout.Token, hold.GatewayTransactionID)
	}

	metrics.HoldsCreated.WithLabelValues(string(hold.Kind)).Inc()
	s.audit.LogHoldCreated(ctx, hold, meta)
	log.WithFields(logrus.Fields{
		"transaction_id": hold.GatewayTransactionID,
		"amount":         hold.Amount,
	}).Info("Transport hold created")

	return response, nil
}

// transportCustomer resolves who pays. Guests must supply a name and phone.
func (s *BookingIntentService) transportCustomer(owner Owner, req *models.CreateTransportBookingRequest) (payment.Customer, error) {
	name, phone := owner.Name, owner.Phone

	if owner.UserID == nil {
		verr := &ValidationError{}
		if req.GuestName == nil || strings.TrimSpace(*req.GuestName) == "" {
			verr.Add("guest_name", "is required for guest bookings")
		}
		if req.GuestPhone == nil || *req.GuestPhone == "" {
			verr.Add("guest_phone", "is required for guest bookings")
		}
		if len(verr.Fields) > 0 {
			return payment.Customer{}, verr
		}
		name, phone = strings.TrimSpace(*req.GuestName), *req.GuestPhone
	}

	if phone != "" {
		sanitized, err := s.phones.Validate(phone)
		if err != nil {
			if owner.UserID == nil {
				return payment.Customer{}, NewValidationError("guest_phone", err.Error())
			}
			// Account phones are not always local numbers; pay without one
			sanitized = ""
		}
		phone = sanitized
		if owner.UserID == nil {
			req.GuestPhone = &sanitized
		}
	}

	if req.PaymentMode != nil && phone == "" {
		return payment.Customer{}, NewValidationError("payment_mode", "requires a valid phone number")
	}

	first, last := splitName(name)
	return payment.Customer{
		FirstName: first,
		LastName:  last,
		Phone:     phone,
		Country:   s.config.CustomerCountry,
	}, nil
}

// validateDeparture rejects departures in the past or outside the operating window
func (s *BookingIntentService) validateDeparture(date, travelTime string) error {
	day, err := time.ParseInLocation("2006-01-02", date, s.config.Location)
	if err != nil {
		return NewValidationError("travel_date", "must match the format 2006-01-02")
	}
	departure, err := departureAt(day, travelTime, s.config.Location)
	if err != nil {
		return NewValidationError("travel_time", "must match the format 15:04")
	}

	if departure.Before(s.clock.Now()) {
		return NewValidationError("travel_time", "departure must not be in the past")
	}

	minutes := departure.Hour()*60 + departure.Minute()
	if minutes < s.config.OperatingStart || minutes > s.config.OperatingEnd {
		return NewValidationError("travel_time", fmt.Sprintf(
			"must be between %s and %s", formatClock(s.config.OperatingStart), formatClock(s.config.OperatingEnd)))
	}
	return nil
}

// ============================================================================
// ORDER
// ============================================================================

// CreateOrderIntent checks out a cart pending payment. Orders do not consume seat capacity.
func (s *BookingIntentService) CreateOrderIntent(
	ctx context.Context,
	owner Owner,
	req *models.CreateOrderBookingRequest,
	meta RequestMeta,
) (*models.BookingIntentResponse, error) {
	if owner.UserID == nil {
		return nil, ErrUnauthorized
	}
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationErrorFrom(err)
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.orders.GetActiveProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	payload := &models.OrderPayload{DeliveryAddress: req.DeliveryAddress}
	verr := &ValidationError{}
	for i, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "unknown or inactive product")
			continue
		}
		payload.Items = append(payload.Items, models.OrderItemPayload{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		payload.Total += product.Price * float64(item.Quantity)
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	payload.Total = roundPrice(payload.Total)

	hold := &models.BookingHold{
		ID:      uuid.New(),
		Kind:    models.HoldKindOrder,
		UserID:  owner.UserID,
		Payload: models.HoldPayload{Order: payload},
		Amount:  payload.Total,
	}

	phone, _ := s.phones.Validate(owner.Phone)
	first, last := splitName(owner.Name)
	customer := payment.Customer{FirstName: first, LastName: last, Phone: phone, Country: s.config.CustomerCountry}

	description := fmt.Sprintf("Order of %d item(s)", len(payload.Items))
	checkout, err := s.openTransaction(ctx, hold, description, customer, meta)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		hold.CreatedAt = s.clock.Now()
		return s.holds.Create(ctx, hold)
	})
	if err != nil {
		s.logger.WithError(err).WithField("transaction_id", hold.GatewayTransactionID).
			Warn("Order hold not recorded, gateway transaction orphaned")
		s.audit.LogHoldOrphaned(ctx, hold.GatewayTransactionID, owner.UserID, err.Error(), meta)
		return nil, err
	}

	metrics.HoldsCreated.WithLabelValues(string(hold.Kind)).Inc()
	s.audit.LogHoldCreated(ctx, hold, meta)
	s.logger.WithFields(logrus.Fields{
		"transaction_id": hold.GatewayTransactionID,
		"amount":         hold.Amount,
		"items":          len(payload.Items),
	}).Info("Order hold created")

	return s.intentResponse(hold, checkout), nil
}

// ============================================================================
// GATEWAY
// ============================================================================

// openTransaction creates the gateway transaction and checkout token and
// stamps the transaction id onto the hold
func (s *BookingIntentService) openTransaction(
	ctx context.Context,
	hold *models.BookingHold,
	description string,
	customer payment.Customer,
	meta RequestMeta,
) (*payment.CheckoutToken, error) {
	// The gateway charges whole units of a zero-decimal currency
	amount := math.Round(hold.Amount)
	if math.Abs(hold.Amount-amount) > 1e-9 {
		s.logger.WithFields(logrus.Fields{
			"hold_id":  hold.ID,
			"amount":   hold.Amount,
			"currency": s.config.Currency,
		}).Error("Refusing to open a transaction for a fractional amount")
		return nil, fmt.Errorf("%s %.2f: %w", s.config.Currency, hold.Amount, ErrFractionalAmount)
	}

	callbackURL := fmt.Sprintf("%s/payments/callback/%s/%s",
		strings.TrimRight(s.config.CallbackBaseURL, "/"), hold.Kind, hold.ID)

	txn, err := s.gateway.CreateTransaction(ctx, payment.TransactionRequest{
		Description: description,
		Amount:      int64(amount),
		Currency:    s.config.Currency,
		CallbackURL: callbackURL,
		Customer:    customer,
		Metadata: map[string]string{
			"hold_id": hold.ID.String(),
			"kind":    string(hold.Kind),
		},
	})
	if err != nil {
		return nil, s.gatewayError("create_transaction", err, meta)
	}
	hold.GatewayTransactionID = txn.IDString()

	checkout, err := s.gateway.GenerateCheckoutToken(ctx, hold.GatewayTransactionID)
	if err != nil {
		return nil, s.gatewayError("generate_checkout_token", err, meta)
	}
	return checkout, nil
}

// pushToPhone requests a direct mobile-money debit. The hosted checkout stays
// usable when it fails, so failures are logged rather than returned.
func (s *BookingIntentService) pushToPhone(ctx context.Context, mode, token, transactionID string) bool {
	if err := s.gateway.PushToPhone(ctx, mode, token); err != nil {
		metrics.GatewayErrors.WithLabelValues("push_to_phone").Inc()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"mode":           mode,
		}).Warn("Mobile money push failed")
		return false
	}
	return true
}

func (s *BookingIntentService) gatewayError(operation string, err error, meta RequestMeta) error {
	return newGatewayError(s.logger, operation, err, meta.CorrelationID)
}

func (s *BookingIntentService) intentResponse(hold *models.BookingHold, checkout *payment.CheckoutToken) *models.BookingIntentResponse {
	return &models.BookingIntentResponse{
		TransactionID: hold.GatewayTransactionID,
		Kind:          hold.Kind,
		CheckoutURL:   checkout.URL,
		CheckoutToken: checkout.Token,
		Amount:        hold.Amount,
		Currency:      s.config.Currency,
		ExpiresAt:     hold.ExpiresAt(s.config.HoldTTL),
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// newGatewayError logs a failed gateway call under a fresh correlation id
func newGatewayError(logger *logrus.Logger, operation string, err error, correlationID string) *GatewayError {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	message := err.Error()
	var perr *payment.Error
	if errors.As(err, &perr) && perr.Message != "" {
		message = perr.Message
	}

	metrics.GatewayErrors.WithLabelValues(operation).Inc()
	logger.WithError(err).WithFields(logrus.Fields{
		"operation":      operation,
		"correlation_id": correlationID,
	}).Error("Payment gateway call failed")

	return &GatewayError{
		Operation:     operation,
		Message:       message,
		CorrelationID: correlationID,
		Err:           err,
	}
}

func isCapacityExceeded(err error) bool {
	var cerr *CapacityExceededError
	return errors.As(err, &cerr)
}

func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "Client", "Nonvi"
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
