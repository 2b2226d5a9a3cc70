package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/keystore"
)

const rateLimitPrefix = "ratelimit:booking:"

// RateLimitService throttles booking intents per phone number and per IP,
// using fixed windows counted in the keyed store
type RateLimitService struct {
	store  keystore.Store
	clock  clock.Clock
	config RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxPhoneRequests int           // Max booking intents per phone
	PhoneWindow      time.Duration // Time window for phone rate limit
	MaxIPRequests    int           // Max booking intents per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPhoneRequests: 5,                // 5 intents
		PhoneWindow:      10 * time.Minute, // per 10 minutes
		MaxIPRequests:    30,               // 30 intents
		IPWindow:         1 * time.Hour,    // per hour
	}
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(store keystore.Store, clk clock.Clock, config RateLimitConfig) *RateLimitService {
	defaults := DefaultRateLimitConfig()
	if config.MaxPhoneRequests <= 0 || config.PhoneWindow <= 0 {
		config.MaxPhoneRequests, config.PhoneWindow = defaults.MaxPhoneRequests, defaults.PhoneWindow
	}
	if config.MaxIPRequests <= 0 || config.IPWindow <= 0 {
		config.MaxIPRequests, config.IPWindow = defaults.MaxIPRequests, defaults.IPWindow
	}
	return &RateLimitService{store: store, clock: clk, config: config}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "phone" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckBookingRateLimit counts one booking attempt against phone and ip and
// returns *RateLimitError once either window is exhausted
func (s *RateLimitService) CheckBookingRateLimit(ctx context.Context, phone, ip string) error {
	if phone != "" {
		if err := s.hit(ctx, "phone", phone, s.config.MaxPhoneRequests, s.config.PhoneWindow); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := s.hit(ctx, "ip", ip, s.config.MaxIPRequests, s.config.IPWindow); err != nil {
			return err
		}
	}
	return nil
}

func (s *RateLimitService) hit(ctx context.Context, kind, identifier string, max int, window time.Duration) error {
	// Window start is part of the key so every window gets a fresh counter
	start := s.clock.Now().Truncate(window)
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, kind, identifier, start.Unix())

	count, err := s.store.Incr(ctx, key, window)
	if err != nil {
		return fmt.Errorf("failed to check %s rate limit: %w", kind, err)
	}

	if count > int64(max) {
		retryAfter := start.Add(window)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many booking attempts. Please try again after %s", retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       kind,
		}
	}
	return nil
}
