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

type settingManager interface {
	ListSettings(ctx context.Context) ([]models.SystemSetting, error)
	GetSetting(ctx context.Context, key string) (*models.SystemSetting, error)
	UpdateSetting(ctx context.Context, key, value string, actor *uuid.UUID, meta services.RequestMeta) (*models.SystemSetting, error)
}

type SystemSettingHandler struct {
	settings settingManager
	logger   *logrus.Logger
}

func NewSystemSettingHandler(settings settingManager, logger *logrus.Logger) *SystemSettingHandler {
	return &SystemSettingHandler{settings: settings, logger: logger}
}

// GetAllSettings retrieves all system settings
// GET /api/v1/system-settings
func (h *SystemSettingHandler) GetAllSettings(c *gin.Context) {
	settings, err := h.settings.ListSettings(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// GetSettingByKey retrieves a specific system setting by key
// GET /api/v1/system-settings/:key
func (h *SystemSettingHandler) GetSettingByKey(c *gin.Context) {
	setting, err := h.settings.GetSetting(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}

// UpdateSetting updates a system setting's value. Capacity and price take
// effect once the settings cache entry is dropped, which the update does.
// PUT /api/v1/system-settings/:key
func (h *SystemSettingHandler) UpdateSetting(c *gin.Context) {
	var req models.UpdateSystemSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	var actor *uuid.UUID
	if userCtx, ok := middleware.GetUserContext(c); ok {
		id := userCtx.UserID
		actor = &id
	}

	setting, err := h.settings.UpdateSetting(c.Request.Context(), c.Param("key"), req.SettingValue, actor, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}
