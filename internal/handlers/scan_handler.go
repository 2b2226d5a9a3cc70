package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/sirupsen/logrus"
)

type scanner interface {
	Scan(ctx context.Context, input string, staffID *uuid.UUID, meta services.RequestMeta) (*models.ScanResult, error)
}

// ScanHandler validates tickets at boarding
type ScanHandler struct {
	scans  scanner
	logger *logrus.Logger
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(scans scanner, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{scans: scans, logger: logger}
}

// Scan marks a ticket (or legacy reservation code) as used
// POST /api/v1/staff/scan
func (h *ScanHandler) Scan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := models.Validate.Struct(&req); err != nil {
		badRequest(c, "A ticket code is required", nil)
		return
	}

	var staffID *uuid.UUID
	if userCtx, ok := middleware.GetUserContext(c); ok {
		id := userCtx.UserID
		staffID = &id
	}

	result, err := h.scans.Scan(c.Request.Context(), req.Code, staffID, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
