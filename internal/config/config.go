package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Booking rules (hold TTL, operating window, currency)
	Booking BookingConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Redis configuration (keystore backend)
	Redis RedisConfig

	// NATS streaming configuration (domain events)
	NATS NATSConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	PublicURL   string // externally reachable base URL, used to build gateway callback URLs
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	RunMigrations      bool
}

// JWTConfig holds JWT-related configuration
// Tokens are issued by the auth service; this service only validates them.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration // used when minting development tokens
}

// BookingConfig holds the rules applied when creating and settling holds
type BookingConfig struct {
	HoldTTL          time.Duration
	CleanupGrace     time.Duration
	CleanupSchedule  string // cron spec with seconds field
	OperatingStart   string // HH:MM, inclusive
	OperatingEnd     string // HH:MM, inclusive
	Timezone         string
	Currency         string // zero-decimal ISO code; the gateway is sent whole units only
	DefaultCapacity  int
	SettingsCacheTTL time.Duration
	AppRedirectURI   string // custom scheme the browser return route redirects to
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	Environment string // "sandbox" or "live"
	SecretKey   string // gateway secret key (never exposed to clients)
	BaseURL     string // optional override of the environment base URL
	Timeout     time.Duration
	Country     string // ISO country sent with customer phone numbers
}

// RedisConfig holds Redis/Valkey configuration. Empty Addr selects the Postgres keystore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds NATS streaming configuration. Empty URL disables event publishing.
type NATSConfig struct {
	URL       string
	ClusterID string
	ClientID  string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool

	// Booking intent throttling; each intent opens a gateway transaction
	MaxBookingsPerPhone int
	BookingPhoneWindow  time.Duration
	MaxBookingsPerIP    int
	BookingIPWindow     time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			RunMigrations:      getEnvAsBool("DATABASE_RUN_MIGRATIONS", true),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "nonvi-auth"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Booking: BookingConfig{
			HoldTTL:          time.Duration(getEnvAsInt("BOOKING_HOLD_TTL_MINUTES", 15)) * time.Minute,
			CleanupGrace:     time.Duration(getEnvAsInt("BOOKING_CLEANUP_GRACE_MINUTES", 60)) * time.Minute,
			CleanupSchedule:  getEnv("BOOKING_CLEANUP_SCHEDULE", "0 */10 * * * *"),
			OperatingStart:   getEnv("BOOKING_OPERATING_START", "05:00"),
			OperatingEnd:     getEnv("BOOKING_OPERATING_END", "22:00"),
			Timezone:         getEnv("BOOKING_TIMEZONE", "Africa/Porto-Novo"),
			Currency:         getEnv("BOOKING_CURRENCY", "XOF"),
			DefaultCapacity:  getEnvAsInt("BOOKING_DEFAULT_CAPACITY", 50),
			SettingsCacheTTL: time.Duration(getEnvAsInt("BOOKING_SETTINGS_CACHE_SECONDS", 30)) * time.Second,
			AppRedirectURI:   getEnv("APP_REDIRECT_URI", "nonvi://payment-result"),
		},
		Payment: PaymentConfig{
			Environment: getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			SecretKey:   getEnv("PAYMENT_SECRET_KEY", ""),
			BaseURL:     getEnv("PAYMENT_BASE_URL", ""),
			Timeout:     time.Duration(getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 30)) * time.Second,
			Country:     getEnv("PAYMENT_CUSTOMER_COUNTRY", "bj"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:       getEnv("NATS_URL", ""),
			ClusterID: getEnv("NATS_CLUSTER_ID", "test-cluster"),
			ClientID:  getEnv("NATS_CLIENT_ID", "booking-core"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),

			MaxBookingsPerPhone: getEnvAsInt("RATE_LIMIT_BOOKINGS_PER_PHONE", 5),
			BookingPhoneWindow:  time.Duration(getEnvAsInt("RATE_LIMIT_PHONE_WINDOW_MINUTES", 10)) * time.Minute,
			MaxBookingsPerIP:    getEnvAsInt("RATE_LIMIT_BOOKINGS_PER_IP", 30),
			BookingIPWindow:     time.Duration(getEnvAsInt("RATE_LIMIT_IP_WINDOW_MINUTES", 60)) * time.Minute,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("BOOKING_HOLD_TTL_MINUTES must be positive")
	}

	if _, err := ParseClock(c.Booking.OperatingStart); err != nil {
		return fmt.Errorf("BOOKING_OPERATING_START: %w", err)
	}
	if _, err := ParseClock(c.Booking.OperatingEnd); err != nil {
		return fmt.Errorf("BOOKING_OPERATING_END: %w", err)
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	// A live gateway without a key would hand out placeholder checkout URLs
	if c.Payment.Environment == "live" && c.Payment.SecretKey == "" {
		return fmt.Errorf("PAYMENT_SECRET_KEY is required when PAYMENT_ENVIRONMENT=live")
	}

	return nil
}

// ParseClock parses an HH:MM wall-clock value into minutes since midnight
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
