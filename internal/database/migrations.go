package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RunMigrations creates the booking core schema. Every statement is idempotent.
func RunMigrations(ctx context.Context, db DB, logger *logrus.Logger) error {
	logger.Info("Running database migrations...")

	migrations := []string{
		createSystemSettingsTable,
		seedSystemSettings,
		createBookingHoldsTable,
		createBookingHoldsSlotIndex,
		createReservationsTable,
		createReservationsSlotIndex,
		padTravelTimes,
		createTicketsTable,
		createProductsTable,
		createOrdersTable,
		createOrderItemsTable,
		createAuditLogsTable,
		createKeyValueStoreTable,
	}

	for i, migration := range migrations {
		logger.WithField("step", i+1).Debug("Running migration")
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("All migrations completed successfully")
	return nil
}

const createSystemSettingsTable = `
CREATE TABLE IF NOT EXISTS system_settings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    setting_key VARCHAR(100) UNIQUE NOT NULL,
    setting_value TEXT NOT NULL,
    description TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const seedSystemSettings = `
INSERT INTO system_settings (setting_key, setting_value, description) VALUES
    ('seat_capacity', '50', 'Seats available per departure slot'),
    ('unit_price', '0', 'Price of one seat')
ON CONFLICT (setting_key) DO NOTHING;`

const createBookingHoldsTable = `
CREATE TABLE IF NOT EXISTS booking_holds (
    id UUID PRIMARY KEY,
    gateway_transaction_id VARCHAR(100) UNIQUE NOT NULL,
    kind VARCHAR(20) NOT NULL CHECK (kind IN ('transport', 'order')),
    user_id UUID,
    payload JSONB NOT NULL,
    amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
    travel_date DATE,
    travel_time VARCHAR(5) CHECK (travel_time ~ '^[0-2][0-9]:[0-5][0-9]$'),
    departure_station_id BIGINT,
    seat_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createBookingHoldsSlotIndex = `
CREATE INDEX IF NOT EXISTS idx_booking_holds_slot
    ON booking_holds (travel_date, travel_time, departure_station_id, created_at);`

const createReservationsTable = `
CREATE TABLE IF NOT EXISTS reservations (
    id UUID PRIMARY KEY,
    user_id UUID,
    guest_name VARCHAR(100),
    guest_phone VARCHAR(20),
    departure_station_id BIGINT NOT NULL,
    arrival_station_id BIGINT NOT NULL,
    travel_date DATE NOT NULL,
    travel_time VARCHAR(5) NOT NULL CHECK (travel_time ~ '^[0-2][0-9]:[0-5][0-9]$'),
    seat_count INTEGER NOT NULL CHECK (seat_count > 0),
    total_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'confirmed', 'cancelled', 'en_route', 'completed')),
    payment_id VARCHAR(100),
    payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
    code VARCHAR(20) UNIQUE,
    scanned BOOLEAN NOT NULL DEFAULT FALSE,
    fully_scanned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createReservationsSlotIndex = `
CREATE INDEX IF NOT EXISTS idx_reservations_slot
    ON reservations (travel_date, travel_time, departure_station_id, status);`

// Rows written before times were zero-padded would otherwise form a separate slot
const padTravelTimes = `
UPDATE booking_holds SET travel_time = '0' || travel_time WHERE travel_time ~ '^[0-9]:[0-5][0-9]$';
UPDATE reservations SET travel_time = '0' || travel_time WHERE travel_time ~ '^[0-9]:[0-5][0-9]$';`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY,
    reservation_id UUID NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
    code VARCHAR(8) UNIQUE NOT NULL,
    scanned BOOLEAN NOT NULL DEFAULT FALSE,
    scanned_at TIMESTAMPTZ,
    scanned_by UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createProductsTable = `
CREATE TABLE IF NOT EXISTS products (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    price NUMERIC(12, 2) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY,
    user_id UUID,
    total NUMERIC(12, 2) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'paid',
    payment_id VARCHAR(100) UNIQUE NOT NULL,
    delivery_address VARCHAR(255),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createOrderItemsTable = `
CREATE TABLE IF NOT EXISTS order_items (
    id UUID PRIMARY KEY,
    order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id BIGINT NOT NULL REFERENCES products(id),
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price NUMERIC(12, 2) NOT NULL
);`

const createAuditLogsTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    action VARCHAR(50) NOT NULL,
    source VARCHAR(20) NOT NULL,
    entity_type VARCHAR(50) NOT NULL,
    entity_id VARCHAR(100),
    actor_id UUID,
    before_state JSONB,
    after_state JSONB,
    details JSONB,
    ip_address VARCHAR(64),
    user_agent TEXT,
    correlation_id VARCHAR(64),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createKeyValueStoreTable = `
CREATE UNLOGGED TABLE IF NOT EXISTS kv_store (
    key VARCHAR(200) PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);`
