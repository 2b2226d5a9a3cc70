package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nonvi/booking-core/internal/models"
)

// SystemSettingRepository handles database operations for system_settings table
type SystemSettingRepository struct {
	db DB
}

// NewSystemSettingRepository creates a new SystemSettingRepository
func NewSystemSettingRepository(db DB) *SystemSettingRepository {
	return &SystemSettingRepository{db: db}
}

// GetAll retrieves all system settings
func (r *SystemSettingRepository) GetAll(ctx context.Context) ([]models.SystemSetting, error) {
	query := `
		SELECT id, setting_key, setting_value, description, created_at, updated_at
		FROM system_settings
		ORDER BY setting_key
	`

	settings := []models.SystemSetting{}
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("failed to list system settings: %w", err)
	}
	return settings, nil
}

// GetByKey retrieves a system setting by its key. Returns nil, nil when the key is absent.
func (r *SystemSettingRepository) GetByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	query := `
		SELECT id, setting_key, setting_value, description, created_at, updated_at
		FROM system_settings
		WHERE setting_key = $1
	`

	var setting models.SystemSetting
	err := r.db.GetContext(ctx, &setting, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system setting %s: %w", key, err)
	}
	return &setting, nil
}

// Upsert creates or replaces a system setting's value
func (r *SystemSettingRepository) Upsert(ctx context.Context, key, value string) (*models.SystemSetting, error) {
	query := `
		INSERT INTO system_settings (setting_key, setting_value, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (setting_key)
		DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = NOW()
		RETURNING id, setting_key, setting_value, description, created_at, updated_at
	`

	var setting models.SystemSetting
	if err := r.db.GetContext(ctx, &setting, query, key, value); err != nil {
		return nil, fmt.Errorf("failed to update system setting %s: %w", key, err)
	}
	return &setting, nil
}
