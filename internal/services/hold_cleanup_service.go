package services

import (
	"context"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/messaging"
	"github.com/nonvi/booking-core/internal/metrics"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultPurgeBatchSize = 500

// HoldCleanupConfig controls which holds the cleanup job removes
type HoldCleanupConfig struct {
	HoldTTL   time.Duration
	Grace     time.Duration // extra age beyond the TTL before a hold is deleted
	BatchSize int
}

// HoldCleanupService physically deletes holds that stopped counting against
// capacity long ago. Capacity sums already ignore them; this is storage hygiene.
type HoldCleanupService struct {
	holds     holdPurger
	kv        expiredPurger
	publisher messaging.Publisher
	audit     *AuditService
	clock     clock.Clock
	config    HoldCleanupConfig
	logger    *logrus.Logger
}

// NewHoldCleanupService creates a new cleanup service. kv may be nil when the
// keyed store expires entries on its own.
func NewHoldCleanupService(
	holds holdPurger,
	kv expiredPurger,
	publisher messaging.Publisher,
	audit *AuditService,
	clk clock.Clock,
	config HoldCleanupConfig,
	logger *logrus.Logger,
) *HoldCleanupService {
	if config.HoldTTL <= 0 {
		config.HoldTTL = models.DefaultHoldTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultPurgeBatchSize
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &HoldCleanupService{
		holds:     holds,
		kv:        kv,
		publisher: publisher,
		audit:     audit,
		clock:     clk,
		config:    config,
		logger:    logger,
	}
}

// Cutoff returns the creation time before which holds are deleted
func (s *HoldCleanupService) Cutoff() time.Time {
	return s.clock.Now().Add(-(s.config.HoldTTL + s.config.Grace))
}

// RunOnce deletes stale holds in batches and returns how many were removed
func (s *HoldCleanupService) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.Cutoff()
	total := 0

	for {
		purged, err := s.holds.DeleteCreatedBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += len(purged)

		for _, hold := range purged {
			if err := s.publisher.Publish(messaging.SubjectHoldReleased, messaging.HoldReleasedEvent{
				TransactionID: hold.GatewayTransactionID,
				Kind:          string(hold.Kind),
				Reason:        "expired",
				OccurredAt:    s.clock.Now(),
			}); err != nil {
				s.logger.WithError(err).Warn("Failed to publish hold release event")
			}
		}

		if len(purged) < s.config.BatchSize {
			break
		}
	}

	if s.kv != nil {
		if n, err := s.kv.PurgeExpired(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to purge expired keystore entries")
		} else if n > 0 {
			s.logger.WithField("count", n).Debug("Purged expired keystore entries")
		}
	}

	if total > 0 {
		metrics.HoldsPurged.Add(float64(total))
		s.audit.LogHoldsPurged(ctx, total, cutoff)
	}
	return total, nil
}
