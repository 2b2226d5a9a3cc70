package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/database"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	ticketCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts    = 10

	qrPrefix      = "NVT_SECURE_v1:"
	qrInnerPrefix = "NV_HASH_92_"
	qrInnerSuffix = "_31_NONVI"
)

// RandomTicketCode returns an 8-character uppercase alphanumeric code
func RandomTicketCode() (string, error) {
	// 252 is the largest multiple of 36 below 256; higher bytes are rejected to keep the draw uniform
	const limit = 252

	code := make([]byte, 0, models.TicketCodeLength)
	buf := make([]byte, models.TicketCodeLength*2)
	for len(code) < models.TicketCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, ticketCodeAlphabet[int(b)%len(ticketCodeAlphabet)])
			if len(code) == models.TicketCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// QRPayload builds the string encoded into a ticket's QR code.
// Already-issued tickets depend on this exact format.
func QRPayload(code string) string {
	inner := qrInnerPrefix + code + qrInnerSuffix
	return qrPrefix + base64.StdEncoding.EncodeToString([]byte(inner))
}

// ParseQRPayload extracts the ticket code from a QR payload
func ParseQRPayload(payload string) (string, bool) {
	if !strings.HasPrefix(payload, qrPrefix) {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, qrPrefix))
	if err != nil {
		return "", false
	}

	inner := string(decoded)
	if !strings.HasPrefix(inner, qrInnerPrefix) || !strings.HasSuffix(inner, qrInnerSuffix) {
		return "", false
	}
	code := strings.TrimSuffix(strings.TrimPrefix(inner, qrInnerPrefix), qrInnerSuffix)
	if code == "" {
		return "", false
	}
	return code, true
}

// TicketIssuer creates per-seat tickets with globally unique codes
type TicketIssuer struct {
	tickets  ticketStore
	clock    clock.Clock
	logger   *logrus.Logger
	generate func() (string, error)
}

// NewTicketIssuer creates a new ticket issuer
func NewTicketIssuer(tickets ticketStore, clk clock.Clock, logger *logrus.Logger) *TicketIssuer {
	return &TicketIssuer{
		tickets:  tickets,
		clock:    clk,
		logger:   logger,
		generate: RandomTicketCode,
	}
}

// Issue creates one unscanned ticket for the reservation, regenerating the
// code on collision up to maxCodeAttempts times
func (i *TicketIssuer) Issue(ctx context.Context, reservationID uuid.UUID) (*models.Ticket, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := i.generate()
		if err != nil {
			return nil, err
		}

		exists, err := i.tickets.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			i.logger.WithField("attempt", attempt).Debug("Ticket code collision, regenerating")
			continue
		}

		ticket := &models.Ticket{
			ID:            uuid.New(),
			ReservationID: reservationID,
			Code:          code,
			Scanned:       false,
			CreatedAt:     i.clock.Now(),
		}
		if err := i.tickets.Create(ctx, ticket); err != nil {
			if errors.Is(err, database.ErrDuplicateTicketCode) {
				// Lost a race with a concurrent issuer between the check and the insert
				continue
			}
			return nil, err
		}
		return ticket, nil
	}

	i.logger.WithField("reservation_id", reservationID).Error("Ticket code attempts exhausted")
	return nil, ErrTicketCodeExhausted
}

// IssueForReservation creates count tickets for the reservation
func (i *TicketIssuer) IssueForReservation(ctx context.Context, reservationID uuid.UUID, count int) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, count)
	for n := 0; n < count; n++ {
		ticket, err := i.Issue(ctx, reservationID)
		if err != nil {
			return nil, fmt.Errorf("failed to issue ticket %d of %d: %w", n+1, count, err)
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

// TicketViews attaches QR payloads to tickets
func TicketViews(tickets []models.Ticket) []models.TicketView {
	views := make([]models.TicketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, models.TicketView{Ticket: t, QRPayload: QRPayload(t.Code)})
	}
	return views
}
