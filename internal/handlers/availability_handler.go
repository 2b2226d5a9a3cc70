package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/sirupsen/logrus"
)

type availabilityChecker interface {
	Check(ctx context.Context, slot models.Slot, requested int) (*models.Availability, error)
}

// AvailabilityHandler answers seat availability queries
type AvailabilityHandler struct {
	availability availabilityChecker
	logger       *logrus.Logger
}

// NewAvailabilityHandler creates a new AvailabilityHandler
func NewAvailabilityHandler(availability availabilityChecker, logger *logrus.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, logger: logger}
}

// GetAvailability reports remaining seats on a slot
// GET /api/v1/availability?date=2026-10-21&time=08:00&departure_station_id=1&seats=2
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	var query models.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "Invalid availability query", err)
		return
	}
	if query.Seats == 0 {
		query.Seats = 1
	}

	availability, err := h.availability.Check(c.Request.Context(), query.Slot(), query.Seats)

	var capacityErr *services.CapacityExceededError
	if err != nil && !errors.As(err, &capacityErr) {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.AvailabilityResponse{
		Availability: *availability,
		Requested:    query.Seats,
		Available:    err == nil,
	})
}
