package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/nonvi/booking-core/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details interface{}       `json:"details,omitempty"`
}

// respondError maps service errors onto HTTP statuses.
// Anything unrecognised is logged and reported as a 500 without internals.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validationErr *services.ValidationError
		capacityErr   *services.CapacityExceededError
		usedErr       *services.AlreadyUsedError
		gatewayErr    *services.GatewayError
		rateErr       *services.RateLimitError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Request validation failed",
			Fields:  validationErr.Fields,
		})

	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "capacity_exceeded",
			Message: capacityErr.Error(),
			Details: gin.H{"remaining": capacityErr.Remaining, "requested": capacityErr.Requested},
		})

	case errors.As(err, &usedErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_used",
			Message: "Ticket has already been scanned",
			Details: gin.H{"reservation": usedErr.Reservation, "ticket": usedErr.Ticket},
		})

	case errors.As(err, &rateErr):
		retryAfter := int(time.Until(rateErr.RetryAfter).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate_limited",
			Message: rateErr.Message,
			Details: gin.H{"limit_type": rateErr.Type, "retry_after": rateErr.RetryAfter},
		})

	case errors.As(err, &gatewayErr):
		message := gatewayErr.Message
		if message == "" {
			message = "Payment provider is unavailable, please try again"
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "payment_gateway_error",
			Message: message,
			Details: gin.H{"operation": gatewayErr.Operation, "correlation_id": gatewayErr.CorrelationID},
		})

	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication is required"})

	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "You don't have permission to access this resource"})

	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})

	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": middleware.GetRequestID(c),
		}).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Something went wrong"})
	}
}

// requestMeta collects the audit metadata of a request
func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress:     utils.GetRealIP(c),
		UserAgent:     utils.GetUserAgent(c),
		CorrelationID: middleware.GetRequestID(c),
	}
}

func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Error: "invalid_request", Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
