package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/keystore"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/sirupsen/logrus"
)

const settingCachePrefix = "setting:"

// CapacityConfig holds the fallbacks and cache lifetime for capacity settings
type CapacityConfig struct {
	DefaultCapacity int
	CacheTTL        time.Duration
}

// CapacityService reads seat capacity and unit price from system_settings,
// through a short-lived keyed cache
type CapacityService struct {
	settings settingStore
	cache    keystore.Store
	audit    *AuditService
	config   CapacityConfig
	logger   *logrus.Logger
}

// NewCapacityService creates a new capacity service
func NewCapacityService(settings settingStore, cache keystore.Store, audit *AuditService, config CapacityConfig, logger *logrus.Logger) *CapacityService {
	if config.DefaultCapacity <= 0 {
		config.DefaultCapacity = models.DefaultSeatCapacity
	}
	return &CapacityService{
		settings: settings,
		cache:    cache,
		audit:    audit,
		config:   config,
		logger:   logger,
	}
}

// SeatCapacity returns the per-slot seat capacity
func (s *CapacityService) SeatCapacity(ctx context.Context) (int, error) {
	raw, ok, err := s.read(ctx, models.SettingSeatCapacity)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.config.DefaultCapacity, nil
	}

	capacity, err := strconv.Atoi(raw)
	if err != nil || capacity < 0 {
		s.logger.WithField("value", raw).Warn("Invalid seat_capacity setting, using default")
		return s.config.DefaultCapacity, nil
	}
	return capacity, nil
}

// UnitPrice returns the price of one seat
func (s *CapacityService) UnitPrice(ctx context.Context) (float64, error) {
	raw, ok, err := s.read(ctx, models.SettingUnitPrice)
	if err != nil {
		return 0, err
	}
	if !ok {
		return models.DefaultUnitPrice, nil
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price < 0 {
		s.logger.WithField("value", raw).Warn("Invalid unit_price setting, using default")
		return models.DefaultUnitPrice, nil
	}
	return price, nil
}

// read returns the raw value for key, consulting the cache first
func (s *CapacityService) read(ctx context.Context, key string) (string, bool, error) {
	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, settingCachePrefix+key)
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Settings cache read failed")
		} else if ok {
			return value, true, nil
		}
	}

	setting, err := s.settings.GetByKey(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if setting == nil {
		return "", false, nil
	}

	if s.cache != nil && s.config.CacheTTL > 0 {
		if err := s.cache.Set(ctx, settingCachePrefix+key, setting.SettingValue, s.config.CacheTTL); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Settings cache write failed")
		}
	}
	return setting.SettingValue, true, nil
}

// GetSetting returns a single capacity setting
func (s *CapacityService) GetSetting(ctx context.Context, key string) (*models.SystemSetting, error) {
	if !isCapacitySetting(key) {
		return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}

	setting, err := s.settings.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	if setting == nil {
		return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	return setting, nil
}

// ListSettings returns every stored setting
func (s *CapacityService) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	return s.settings.GetAll(ctx)
}

// UpdateSetting validates and stores a new value, then drops the cached copy
func (s *CapacityService) UpdateSetting(ctx context.Context, key, value string, actor *uuid.UUID, meta RequestMeta) (*models.SystemSetting, error) {
	if err := validateSettingValue(key, value); err != nil {
		return nil, err
	}

	before, err := s.settings.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}

	after, err := s.settings.Upsert(ctx, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to update setting: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, settingCachePrefix+key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Settings cache invalidation failed")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Info("System setting updated")
	s.audit.LogSettingUpdated(ctx, before, after, actor, meta)

	return after, nil
}

func isCapacitySetting(key string) bool {
	return key == models.SettingSeatCapacity || key == models.SettingUnitPrice
}

func validateSettingValue(key, value string) error {
	switch key {
	case models.SettingSeatCapacity:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return NewValidationError("setting_value", "must be a non-negative integer")
		}
	case models.SettingUnitPrice:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return NewValidationError("setting_value", "must be a non-negative decimal")
		}
		if f != math.Trunc(f) {
			return NewValidationError("setting_value", "must be a whole number of currency units")
		}
	default:
		return NewValidationError("setting_key", "unknown setting")
	}
	return nil
}
