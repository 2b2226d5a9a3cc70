package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
	"github.com/sirupsen/logrus"
)

// Subjects published by the booking core
const (
	SubjectReservationConfirmed = "booking.reservation.confirmed"
	SubjectOrderPaid            = "booking.order.paid"
	SubjectHoldReleased         = "booking.hold.released"
	SubjectTicketScanned        = "booking.ticket.scanned"
)

// Publisher sends domain events. Publishing is best effort: the database is the source of truth.
type Publisher interface {
	Publish(subject string, data interface{}) error
	Close() error
}

// Config holds the NATS streaming connection settings
type Config struct {
	URL       string
	ClusterID string
	ClientID  string
}

// NATSClient publishes events to NATS Streaming
type NATSClient struct {
	conn   stan.Conn
	logger *logrus.Logger
}

// NewNATSClient connects to NATS Streaming. The client id gets a random suffix
// so several instances of the service can share one cluster.
func NewNATSClient(cfg Config, logger *logrus.Logger) (*NATSClient, error) {
	uniqueClientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, uniqueClientID,
		stan.NatsURL(cfg.URL),
		stan.ConnectWait(5*time.Second),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			logger.WithError(reason).Error("NATS streaming connection lost")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"url":       cfg.URL,
		"cluster":   cfg.ClusterID,
		"client_id": uniqueClientID,
	}).Info("Connected to NATS Streaming")

	return &NATSClient{conn: conn, logger: logger}, nil
}

// Publish implements Publisher
func (nc *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	nc.logger.WithField("subject", subject).Debug("Published event")
	return nil
}

// Close implements Publisher
func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}

// NoopPublisher drops events; used when NATS is not configured
type NoopPublisher struct{}

// Publish implements Publisher
func (NoopPublisher) Publish(string, interface{}) error { return nil }

// Close implements Publisher
func (NoopPublisher) Close() error { return nil }
