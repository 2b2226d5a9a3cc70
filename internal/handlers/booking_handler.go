package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/nonvi/booking-core/internal/utils"
	"github.com/sirupsen/logrus"
)

type intentCreator interface {
	CreateTransportIntent(ctx context.Context, owner services.Owner, req *models.CreateTransportBookingRequest, meta services.RequestMeta) (*models.BookingIntentResponse, error)
	CreateOrderIntent(ctx context.Context, owner services.Owner, req *models.CreateOrderBookingRequest, meta services.RequestMeta) (*models.BookingIntentResponse, error)
}

type bookingLimiter interface {
	CheckBookingRateLimit(ctx context.Context, phone, ip string) error
}

// BookingHandler opens booking holds and hands back a checkout
type BookingHandler struct {
	intents intentCreator
	limiter bookingLimiter
	logger  *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. limiter may be nil.
func NewBookingHandler(intents intentCreator, limiter bookingLimiter, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{intents: intents, limiter: limiter, logger: logger}
}

// CreateTransportBooking holds seats on a departure and starts payment.
// Anonymous callers book as guests and must send guest_name and guest_phone.
// POST /api/v1/bookings/transport
func (h *BookingHandler) CreateTransportBooking(c *gin.Context) {
	var req models.CreateTransportBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	owner := ownerFromContext(c)
	phone := owner.Phone
	if owner.UserID == nil && req.GuestPhone != nil {
		phone = *req.GuestPhone
	}

	if h.limiter != nil {
		if err := h.limiter.CheckBookingRateLimit(c.Request.Context(), phone, utils.GetRealIP(c)); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	resp, err := h.intents.CreateTransportIntent(c.Request.Context(), owner, &req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateOrderBooking checks out a shop cart and starts payment
// POST /api/v1/bookings/order
func (h *BookingHandler) CreateOrderBooking(c *gin.Context) {
	var req models.CreateOrderBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	owner := ownerFromContext(c)
	if h.limiter != nil {
		if err := h.limiter.CheckBookingRateLimit(c.Request.Context(), owner.Phone, utils.GetRealIP(c)); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	resp, err := h.intents.CreateOrderIntent(c.Request.Context(), owner, &req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func ownerFromContext(c *gin.Context) services.Owner {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		return services.Owner{}
	}
	userID := userCtx.UserID
	return services.Owner{UserID: &userID, Name: userCtx.Name, Phone: userCtx.Phone}
}
