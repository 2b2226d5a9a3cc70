package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/nonvi/booking-core/pkg/jwt"
	"github.com/sirupsen/logrus"
)

type reservationReader interface {
	Get(ctx context.Context, id uuid.UUID, viewer services.Viewer) (*models.ReservationView, error)
}

// ReservationHandler serves reservation reads
type ReservationHandler struct {
	reservations reservationReader
	logger       *logrus.Logger
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(reservations reservationReader, logger *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, logger: logger}
}

// GetReservation returns a reservation with its projected status and ticket QR payloads
// GET /api/v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondError(c, h.logger, services.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid reservation ID", nil)
		return
	}

	viewer := services.Viewer{
		UserID: userCtx.UserID,
		Staff:  userCtx.HasRole(jwt.RoleStaff, jwt.RoleConductor, jwt.RoleAdmin),
	}

	view, err := h.reservations.Get(c.Request.Context(), id, viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
