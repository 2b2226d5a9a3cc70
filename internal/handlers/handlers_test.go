package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/database"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/nonvi/booking-core/pkg/jwt"
	"github.com/nonvi/booking-core/pkg/payment"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	return router
}

// withUser installs a user context the way AuthMiddleware would
func withUser(user middleware.UserContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, user)
		c.Next()
	}
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// ---------------------------------------------------------------------------
// respondError

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", services.NewValidationError("seat_count", "is required"), http.StatusBadRequest, "validation_failed"},
		{"capacity", &services.CapacityExceededError{Remaining: 0, Requested: 3}, http.StatusConflict, "capacity_exceeded"},
		{"already used", &services.AlreadyUsedError{}, http.StatusConflict, "already_used"},
		{"gateway", &services.GatewayError{Operation: "create_transaction", Message: "down"}, http.StatusBadGateway, "payment_gateway_error"},
		{"rate limit", &services.RateLimitError{Message: "slow down", RetryAfter: time.Now().Add(time.Minute), Type: "ip"}, http.StatusTooManyRequests, "rate_limited"},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", errors.Join(errors.New("ticket X"), services.ErrNotFound), http.StatusNotFound, "not_found"},
		{"other", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter()
			router.GET("/", func(c *gin.Context) { respondError(c, testLogger(), tt.err) })

			w := doJSON(router, http.MethodGet, "/", nil)
			assert.Equal(t, tt.status, w.Code)

			var body ErrorResponse
			decode(t, w, &body)
			assert.Equal(t, tt.code, body.Error)
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}

	t.Run("rate limit sets Retry-After", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/", func(c *gin.Context) {
			respondError(c, testLogger(), &services.RateLimitError{RetryAfter: time.Now().Add(90 * time.Second)})
		})
		w := doJSON(router, http.MethodGet, "/", nil)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("gateway message is surfaced", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/", func(c *gin.Context) {
			respondError(c, testLogger(), &services.GatewayError{Operation: "create_transaction", Message: "invalid amount", CorrelationID: "corr-9"})
		})
		w := doJSON(router, http.MethodGet, "/", nil)

		var body ErrorResponse
		decode(t, w, &body)
		assert.Equal(t, "invalid amount", body.Message)
		assert.Contains(t, w.Body.String(), "corr-9")
	})

	t.Run("gateway without a message falls back", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/", func(c *gin.Context) {
			respondError(c, testLogger(), &services.GatewayError{Operation: "retrieve"})
		})
		w := doJSON(router, http.MethodGet, "/", nil)

		var body ErrorResponse
		decode(t, w, &body)
		assert.Equal(t, "Payment provider is unavailable, please try again", body.Message)
	})

	t.Run("validation fields are returned", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/", func(c *gin.Context) {
			respondError(c, testLogger(), services.NewValidationError("items[0].product_id", "unknown product"))
		})
		w := doJSON(router, http.MethodGet, "/", nil)
		assert.Contains(t, w.Body.String(), "items[0].product_id")
	})
}

// ---------------------------------------------------------------------------
// availability

type stubAvailability struct {
	availability *models.Availability
	err          error
	slot         models.Slot
	requested    int
}

func (s *stubAvailability) Check(_ context.Context, slot models.Slot, requested int) (*models.Availability, error) {
	s.slot, s.requested = slot, requested
	return s.availability, s.err
}

func TestAvailabilityHandler(t *testing.T) {
	slot := models.Slot{TravelDate: "2026-10-21", TravelTime: "08:00", DepartureStationID: 1}

	t.Run("Seats available", func(t *testing.T) {
		stub := &stubAvailability{availability: &models.Availability{Slot: slot, Capacity: 50, Committed: 10, Remaining: 40}}
		router := newTestRouter()
		router.GET("/availability", NewAvailabilityHandler(stub, testLogger()).GetAvailability)

		w := doJSON(router, http.MethodGet, "/availability?date=2026-10-21&time=08:00&departure_station_id=1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.AvailabilityResponse
		decode(t, w, &resp)
		assert.True(t, resp.Available)
		assert.Equal(t, 40, resp.Remaining)
		assert.Equal(t, 1, stub.requested)
		assert.Equal(t, slot, stub.slot)
	})

	t.Run("Not enough seats is still 200", func(t *testing.T) {
		stub := &stubAvailability{
			availability: &models.Availability{Slot: slot, Capacity: 50, Committed: 48, Held: 2},
			err:          &services.CapacityExceededError{Remaining: 0, Requested: 3},
		}
		router := newTestRouter()
		router.GET("/availability", NewAvailabilityHandler(stub, testLogger()).GetAvailability)

		w := doJSON(router, http.MethodGet, "/availability?date=2026-10-21&time=08:00&departure_station_id=1&seats=3", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.AvailabilityResponse
		decode(t, w, &resp)
		assert.False(t, resp.Available)
		assert.Equal(t, 0, resp.Remaining)
		assert.Equal(t, 3, resp.Requested)
	})

	t.Run("Bad query", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/availability", NewAvailabilityHandler(&stubAvailability{}, testLogger()).GetAvailability)

		for _, q := range []string{
			"",
			"date=21-10-2026&time=08:00&departure_station_id=1",
			"date=2026-10-21&time=8am&departure_station_id=1",
			"date=2026-10-21&time=08:00&departure_station_id=0",
		} {
			w := doJSON(router, http.MethodGet, "/availability?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}

// ---------------------------------------------------------------------------
// bookings

type stubIntents struct {
	owner     services.Owner
	transport *models.CreateTransportBookingRequest
	order     *models.CreateOrderBookingRequest
	meta      services.RequestMeta
	resp      *models.BookingIntentResponse
	err       error
}

func (s *stubIntents) CreateTransportIntent(_ context.Context, owner services.Owner, req *models.CreateTransportBookingRequest, meta services.RequestMeta) (*models.BookingIntentResponse, error) {
	s.owner, s.transport, s.meta = owner, req, meta
	return s.resp, s.err
}

func (s *stubIntents) CreateOrderIntent(_ context.Context, owner services.Owner, req *models.CreateOrderBookingRequest, meta services.RequestMeta) (*models.BookingIntentResponse, error) {
	s.owner, s.order, s.meta = owner, req, meta
	return s.resp, s.err
}

type stubLimiter struct {
	phone, ip string
	err       error
}

func (s *stubLimiter) CheckBookingRateLimit(_ context.Context, phone, ip string) error {
	s.phone, s.ip = phone, ip
	return s.err
}

func TestBookingHandler_CreateTransportBooking(t *testing.T) {
	guestName, guestPhone := "Kofi Mensah", "0197123456"
	body := models.CreateTransportBookingRequest{
		DepartureStationID: 1,
		ArrivalStationID:   2,
		TravelDate:         "2026-10-21",
		TravelTime:         "08:00",
		SeatCount:          2,
		GuestName:          &guestName,
		GuestPhone:         &guestPhone,
	}
	intent := &models.BookingIntentResponse{TransactionID: "1001", Kind: models.HoldKindTransport, CheckoutURL: "https://pay.example/1001", Amount: 5000}

	t.Run("Guest booking", func(t *testing.T) {
		intents := &stubIntents{resp: intent}
		limiter := &stubLimiter{}
		router := newTestRouter()
		router.POST("/bookings/transport", NewBookingHandler(intents, limiter, testLogger()).CreateTransportBooking)

		w := doJSON(router, http.MethodPost, "/bookings/transport", body)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "https://pay.example/1001")

		assert.Nil(t, intents.owner.UserID)
		assert.Equal(t, 2, intents.transport.SeatCount)
		assert.NotEmpty(t, intents.meta.CorrelationID)
		assert.Equal(t, guestPhone, limiter.phone)
	})

	t.Run("Authenticated booking uses the account", func(t *testing.T) {
		intents := &stubIntents{resp: intent}
		limiter := &stubLimiter{}
		user := middleware.UserContext{UserID: uuid.New(), Phone: "0161000000", Name: "Ada Dossou"}
		router := newTestRouter()
		router.POST("/bookings/transport", withUser(user), NewBookingHandler(intents, limiter, testLogger()).CreateTransportBooking)

		w := doJSON(router, http.MethodPost, "/bookings/transport", body)
		require.Equal(t, http.StatusCreated, w.Code)
		require.NotNil(t, intents.owner.UserID)
		assert.Equal(t, user.UserID, *intents.owner.UserID)
		assert.Equal(t, "Ada Dossou", intents.owner.Name)
		assert.Equal(t, "0161000000", limiter.phone)
	})

	t.Run("Rate limited before the gateway is touched", func(t *testing.T) {
		intents := &stubIntents{resp: intent}
		limiter := &stubLimiter{err: &services.RateLimitError{Message: "Too many booking attempts", RetryAfter: time.Now().Add(time.Minute), Type: "phone"}}
		router := newTestRouter()
		router.POST("/bookings/transport", NewBookingHandler(intents, limiter, testLogger()).CreateTransportBooking)

		w := doJSON(router, http.MethodPost, "/bookings/transport", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Nil(t, intents.transport)
	})

	t.Run("Capacity exceeded", func(t *testing.T) {
		intents := &stubIntents{err: &services.CapacityExceededError{Remaining: 1, Requested: 2}}
		router := newTestRouter()
		router.POST("/bookings/transport", NewBookingHandler(intents, nil, testLogger()).CreateTransportBooking)

		w := doJSON(router, http.MethodPost, "/bookings/transport", body)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "capacity_exceeded")
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		router := newTestRouter()
		router.POST("/bookings/transport", NewBookingHandler(&stubIntents{}, nil, testLogger()).CreateTransportBooking)

		req := httptest.NewRequest(http.MethodPost, "/bookings/transport", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBookingHandler_CreateOrderBooking(t *testing.T) {
	body := models.CreateOrderBookingRequest{Items: []models.OrderItemRequest{{ProductID: 7, Quantity: 2}}}

	t.Run("Created", func(t *testing.T) {
		intents := &stubIntents{resp: &models.BookingIntentResponse{TransactionID: "3001", Kind: models.HoldKindOrder}}
		user := middleware.UserContext{UserID: uuid.New(), Phone: "0197123456"}
		router := newTestRouter()
		router.POST("/bookings/order", withUser(user), NewBookingHandler(intents, nil, testLogger()).CreateOrderBooking)

		w := doJSON(router, http.MethodPost, "/bookings/order", body)
		require.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, intents.order.Items, 1)
		assert.Equal(t, int64(7), intents.order.Items[0].ProductID)
	})

	t.Run("Unknown product", func(t *testing.T) {
		intents := &stubIntents{err: services.NewValidationError("items[0].product_id", "unknown or inactive product")}
		router := newTestRouter()
		router.POST("/bookings/order", withUser(middleware.UserContext{UserID: uuid.New()}), NewBookingHandler(intents, nil, testLogger()).CreateOrderBooking)

		w := doJSON(router, http.MethodPost, "/bookings/order", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "items[0].product_id")
	})
}

// ---------------------------------------------------------------------------
// reservations

type stubReservations struct {
	view   *models.ReservationView
	err    error
	viewer services.Viewer
}

func (s *stubReservations) Get(_ context.Context, _ uuid.UUID, viewer services.Viewer) (*models.ReservationView, error) {
	s.viewer = viewer
	return s.view, s.err
}

func TestReservationHandler_GetReservation(t *testing.T) {
	id := uuid.New()
	view := &models.ReservationView{Reservation: models.Reservation{ID: id, Status: models.ReservationStatusEnRoute}, RawStatus: models.ReservationStatusConfirmed}

	t.Run("Passenger", func(t *testing.T) {
		stub := &stubReservations{view: view}
		router := newTestRouter()
		router.GET("/reservations/:id", withUser(middleware.UserContext{UserID: uuid.New(), Roles: []string{jwt.RolePassenger}}), NewReservationHandler(stub, testLogger()).GetReservation)

		w := doJSON(router, http.MethodGet, "/reservations/"+id.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"en_route"`)
		assert.Contains(t, w.Body.String(), `"raw_status":"confirmed"`)
		assert.False(t, stub.viewer.Staff)
	})

	t.Run("Conductor reads as staff", func(t *testing.T) {
		stub := &stubReservations{view: view}
		router := newTestRouter()
		router.GET("/reservations/:id", withUser(middleware.UserContext{UserID: uuid.New(), Roles: []string{jwt.RoleConductor}}), NewReservationHandler(stub, testLogger()).GetReservation)

		w := doJSON(router, http.MethodGet, "/reservations/"+id.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, stub.viewer.Staff)
	})

	t.Run("Forbidden", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/reservations/:id", withUser(middleware.UserContext{UserID: uuid.New()}), NewReservationHandler(&stubReservations{err: services.ErrForbidden}, testLogger()).GetReservation)

		w := doJSON(router, http.MethodGet, "/reservations/"+id.String(), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Invalid id", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/reservations/:id", withUser(middleware.UserContext{UserID: uuid.New()}), NewReservationHandler(&stubReservations{}, testLogger()).GetReservation)

		w := doJSON(router, http.MethodGet, "/reservations/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("No user", func(t *testing.T) {
		router := newTestRouter()
		router.GET("/reservations/:id", NewReservationHandler(&stubReservations{}, testLogger()).GetReservation)

		w := doJSON(router, http.MethodGet, "/reservations/"+id.String(), nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// ---------------------------------------------------------------------------
// payments

type stubSettler struct {
	transactionID, status string
	fromGateway           bool
	result                *services.SettlementResult
	err                   error
}

func (s *stubSettler) SettleCallback(_ context.Context, transactionID, status string, _ services.RequestMeta) (*services.SettlementResult, error) {
	s.transactionID, s.status = transactionID, status
	return s.result, s.err
}

func (s *stubSettler) SettleFromGateway(_ context.Context, transactionID string, _ services.RequestMeta) (*services.SettlementResult, error) {
	s.transactionID, s.fromGateway = transactionID, true
	return s.result, s.err
}

func paymentRouter(stub *stubSettler) *gin.Engine {
	h := NewPaymentHandler(stub, "nonvi://payment-result", testLogger())
	router := newTestRouter()
	router.GET("/payments/callback/:type/:ref", h.Callback)
	router.POST("/payments/callback/:type/:ref", h.Callback)
	router.GET("/payments/return/:type/:ref", h.Return)
	return router
}

func TestPaymentHandler_Callback(t *testing.T) {
	t.Run("Query parameters", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{Outcome: services.OutcomeConfirmed, TransactionID: "1001", Kind: models.HoldKindTransport}}
		w := doJSON(paymentRouter(stub), http.MethodGet, "/payments/callback/transport/abc?id=1001&status=approved", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1001", stub.transactionID)
		assert.Equal(t, "approved", stub.status)
		assert.Contains(t, w.Body.String(), `"outcome":"confirmed"`)
	})

	t.Run("JSON body", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{Outcome: services.OutcomeReleased, TransactionID: "1002"}}
		w := doJSON(paymentRouter(stub), http.MethodPost, "/payments/callback/order/abc", map[string]string{"id": "1002", "status": "declined"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1002", stub.transactionID)
		assert.Equal(t, "declined", stub.status)
	})

	t.Run("Form body", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{Outcome: services.OutcomeReleased}}
		req := httptest.NewRequest(http.MethodPost, "/payments/callback/order/abc", strings.NewReader("id=1003&status=canceled"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		paymentRouter(stub).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1003", stub.transactionID)
		assert.Equal(t, "canceled", stub.status)
	})

	t.Run("Duplicate is 200", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{Outcome: services.OutcomeAlreadySettled, TransactionID: "1001"}}
		w := doJSON(paymentRouter(stub), http.MethodGet, "/payments/callback/transport/abc?id=1001&status=approved", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "already_settled")
	})

	t.Run("Unknown type", func(t *testing.T) {
		stub := &stubSettler{}
		w := doJSON(paymentRouter(stub), http.MethodGet, "/payments/callback/lounge/abc?id=1&status=approved", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, stub.transactionID)
	})

	t.Run("Missing id", func(t *testing.T) {
		stub := &stubSettler{err: services.NewValidationError("id", "is required")}
		w := doJSON(paymentRouter(stub), http.MethodGet, "/payments/callback/transport/abc?status=approved", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentHandler_CallbackChecksGateway(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pg := &database.PostgresDB{DB: sqlx.NewDb(db, "postgres")}

	logger := testLogger()
	clk := clock.NewFixed(time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC))
	gateway := payment.NewPlaceholderGateway(logger)
	settlement := services.NewSettlementService(
		database.NewTxManager(pg),
		database.NewBookingHoldRepository(pg),
		database.NewReservationRepository(pg),
		database.NewOrderRepository(pg),
		services.NewTicketIssuer(database.NewTicketRepository(pg), clk, logger),
		nil,
		gateway,
		nil,
		nil,
		nil,
		clk,
		15*time.Minute,
		logger,
	)
	h := NewPaymentHandler(settlement, "nonvi://payment-result", logger)
	router := newTestRouter()
	router.GET("/payments/callback/:type/:ref", h.Callback)

	txn, err := gateway.CreateTransaction(context.Background(), payment.TransactionRequest{Amount: 2500})
	require.NoError(t, err)

	t.Run("Forged approval of a pending payment writes nothing", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/payments/callback/transport/abc?id="+txn.IDString()+"&status=approved", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"outcome":"pending"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Transaction the gateway does not know is rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/payments/callback/transport/abc?id=1&status=approved", nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentHandler_Return(t *testing.T) {
	redirectQuery := func(t *testing.T, w *httptest.ResponseRecorder) url.Values {
		t.Helper()
		require.Equal(t, http.StatusFound, w.Code)
		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "nonvi", location.Scheme)
		return location.Query()
	}

	t.Run("Confirmed", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{Outcome: services.OutcomeConfirmed, TransactionID: "1001"}}
		w := doJSON(paymentRouter(stub), http.MethodGet, "/payments/return/transport/abc?id=1001", nil)

		q := redirectQuery(t, w)
		assert.True(t, stub.fromGateway)
		assert.Equal(t, "confirmed", q.Get("status"))
		assert.Equal(t, "1001", q.Get("transaction_id"))
		assert.Equal(t, "transport", q.Get("type"))
		assert.Equal(t, "abc", q.Get("ref"))
	})

	t.Run("Still pending", func(t *testing.T) {
		stub := &stubSettler{result: &services.SettlementResult{TransactionID: "1001"}}
		q := redirectQuery(t, doJSON(paymentRouter(stub), http.MethodGet, "/payments/return/transport/abc?id=1001", nil))
		assert.Equal(t, "pending", q.Get("status"))
	})

	t.Run("Gateway failure", func(t *testing.T) {
		stub := &stubSettler{err: &services.GatewayError{Operation: "retrieve"}}
		q := redirectQuery(t, doJSON(paymentRouter(stub), http.MethodGet, "/payments/return/order/abc?id=1001", nil))
		assert.Equal(t, "error", q.Get("status"))
	})

	t.Run("Missing id", func(t *testing.T) {
		stub := &stubSettler{}
		q := redirectQuery(t, doJSON(paymentRouter(stub), http.MethodGet, "/payments/return/order/abc", nil))
		assert.Equal(t, "error", q.Get("status"))
		assert.False(t, stub.fromGateway)
	})
}

// ---------------------------------------------------------------------------
// scans

type stubScanner struct {
	input   string
	staffID *uuid.UUID
	result  *models.ScanResult
	err     error
}

func (s *stubScanner) Scan(_ context.Context, input string, staffID *uuid.UUID, _ services.RequestMeta) (*models.ScanResult, error) {
	s.input, s.staffID = input, staffID
	return s.result, s.err
}

func TestScanHandler(t *testing.T) {
	staff := middleware.UserContext{UserID: uuid.New(), Roles: []string{jwt.RoleConductor}}

	t.Run("Valid scan", func(t *testing.T) {
		stub := &stubScanner{result: &models.ScanResult{Reservation: &models.Reservation{}, Remaining: 1}}
		router := newTestRouter()
		router.POST("/staff/scan", withUser(staff), NewScanHandler(stub, testLogger()).Scan)

		w := doJSON(router, http.MethodPost, "/staff/scan", models.ScanRequest{Code: "abcd1234"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abcd1234", stub.input)
		require.NotNil(t, stub.staffID)
		assert.Equal(t, staff.UserID, *stub.staffID)
		assert.Contains(t, w.Body.String(), `"remaining_unscanned":1`)
	})

	t.Run("Already used carries the snapshot", func(t *testing.T) {
		ticket := &models.Ticket{Code: "ABCD1234", Scanned: true}
		stub := &stubScanner{err: &services.AlreadyUsedError{Reservation: &models.Reservation{SeatCount: 2}, Ticket: ticket}}
		router := newTestRouter()
		router.POST("/staff/scan", withUser(staff), NewScanHandler(stub, testLogger()).Scan)

		w := doJSON(router, http.MethodPost, "/staff/scan", models.ScanRequest{Code: "ABCD1234"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "ABCD1234")
		assert.Contains(t, w.Body.String(), `"seat_count":2`)
	})

	t.Run("Unknown code", func(t *testing.T) {
		stub := &stubScanner{err: errors.Join(errors.New("ticket ZZZZ9999"), services.ErrNotFound)}
		router := newTestRouter()
		router.POST("/staff/scan", withUser(staff), NewScanHandler(stub, testLogger()).Scan)

		w := doJSON(router, http.MethodPost, "/staff/scan", models.ScanRequest{Code: "ZZZZ9999"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Empty code", func(t *testing.T) {
		stub := &stubScanner{}
		router := newTestRouter()
		router.POST("/staff/scan", withUser(staff), NewScanHandler(stub, testLogger()).Scan)

		w := doJSON(router, http.MethodPost, "/staff/scan", models.ScanRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, stub.input)
	})
}

// ---------------------------------------------------------------------------
// system settings

type stubSettings struct {
	settings []models.SystemSetting
	err      error
	key      string
	value    string
	actor    *uuid.UUID
}

func (s *stubSettings) ListSettings(context.Context) ([]models.SystemSetting, error) {
	return s.settings, s.err
}

func (s *stubSettings) GetSetting(_ context.Context, key string) (*models.SystemSetting, error) {
	s.key = key
	if s.err != nil {
		return nil, s.err
	}
	return &models.SystemSetting{SettingKey: key, SettingValue: "50"}, nil
}

func (s *stubSettings) UpdateSetting(_ context.Context, key, value string, actor *uuid.UUID, _ services.RequestMeta) (*models.SystemSetting, error) {
	s.key, s.value, s.actor = key, value, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.SystemSetting{SettingKey: key, SettingValue: value}, nil
}

func TestSystemSettingHandler(t *testing.T) {
	admin := middleware.UserContext{UserID: uuid.New(), Roles: []string{jwt.RoleAdmin}}

	setup := func(stub *stubSettings) *gin.Engine {
		h := NewSystemSettingHandler(stub, testLogger())
		router := newTestRouter()
		group := router.Group("/system-settings", withUser(admin))
		group.GET("", h.GetAllSettings)
		group.GET("/:key", h.GetSettingByKey)
		group.PUT("/:key", h.UpdateSetting)
		return router
	}

	t.Run("List", func(t *testing.T) {
		stub := &stubSettings{settings: []models.SystemSetting{{SettingKey: models.SettingSeatCapacity, SettingValue: "50"}}}
		w := doJSON(setup(stub), http.MethodGet, "/system-settings", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "seat_capacity")
	})

	t.Run("Get", func(t *testing.T) {
		stub := &stubSettings{}
		w := doJSON(setup(stub), http.MethodGet, "/system-settings/seat_capacity", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "seat_capacity", stub.key)
	})

	t.Run("Get unknown", func(t *testing.T) {
		stub := &stubSettings{err: services.ErrNotFound}
		w := doJSON(setup(stub), http.MethodGet, "/system-settings/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Update", func(t *testing.T) {
		stub := &stubSettings{}
		w := doJSON(setup(stub), http.MethodPut, "/system-settings/seat_capacity", models.UpdateSystemSettingRequest{SettingValue: "60"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "60", stub.value)
		require.NotNil(t, stub.actor)
		assert.Equal(t, admin.UserID, *stub.actor)
	})

	t.Run("Update rejects invalid value", func(t *testing.T) {
		stub := &stubSettings{err: services.NewValidationError("setting_value", "must be a positive integer")}
		w := doJSON(setup(stub), http.MethodPut, "/system-settings/seat_capacity", models.UpdateSystemSettingRequest{SettingValue: "-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Update requires a value", func(t *testing.T) {
		stub := &stubSettings{}
		w := doJSON(setup(stub), http.MethodPut, "/system-settings/seat_capacity", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, stub.key)
	})
}
