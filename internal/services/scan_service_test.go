package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/messaging"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanFixture struct {
	db        *memDB
	clock     *mutableClock
	publisher *recordingPublisher
	service   *ScanService
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	db := newMemDB()
	clk := &mutableClock{now: time.Date(2026, 10, 21, 7, 50, 0, 0, time.UTC)}
	publisher := &recordingPublisher{}
	service := NewScanService(
		memTx{db: db},
		memTickets{db: db},
		memReservations{db: db},
		publisher,
		NewAuditService(memAudit{db: db}, quietLogger()),
		clk,
		quietLogger(),
	)
	return &scanFixture{db: db, clock: clk, publisher: publisher, service: service}
}

// seedTickets stores a confirmed reservation with one ticket per code
func (f *scanFixture) seedTickets(codes ...string) models.Reservation {
	res := f.db.seedReservation(testSlot, len(codes), models.ReservationStatusConfirmed)
	for _, code := range codes {
		f.db.tickets[code] = models.Ticket{ID: uuid.New(), ReservationID: res.ID, Code: code}
	}
	return res
}

func TestScanService_Scan(t *testing.T) {
	ctx := context.Background()
	staff := uuid.New()

	t.Run("Unused code is consumed, second scan is already used", func(t *testing.T) {
		f := newScanFixture(t)
		res := f.seedTickets("AAAA0001", "AAAA0002")

		result, err := f.service.Scan(ctx, "AAAA0001", &staff, RequestMeta{})
		require.NoError(t, err)
		assert.True(t, result.Ticket.Scanned)
		assert.Equal(t, &staff, result.Ticket.ScannedBy)
		assert.False(t, result.FullyScanned)
		assert.Equal(t, 1, result.Remaining)
		assert.True(t, f.db.tickets["AAAA0001"].Scanned)

		_, err = f.service.Scan(ctx, "AAAA0001", &staff, RequestMeta{})
		var used *AlreadyUsedError
		require.ErrorAs(t, err, &used)
		assert.Equal(t, res.ID, used.Reservation.ID)
		assert.True(t, f.db.tickets["AAAA0001"].Scanned, "scanned must not toggle back")
		assert.Equal(t, models.ReservationStatusConfirmed, f.db.reservations[res.ID].Status)
		assert.Len(t, f.publisher.published(), 1)
	})

	t.Run("Last sibling completes the reservation", func(t *testing.T) {
		f := newScanFixture(t)
		res := f.seedTickets("BBBB0001", "BBBB0002")

		_, err := f.service.Scan(ctx, "BBBB0001", &staff, RequestMeta{})
		require.NoError(t, err)
		result, err := f.service.Scan(ctx, "BBBB0002", &staff, RequestMeta{})
		require.NoError(t, err)

		assert.True(t, result.FullyScanned)
		assert.Equal(t, 0, result.Remaining)
		assert.Equal(t, models.ReservationStatusCompleted, result.Reservation.Status)

		stored := f.db.reservations[res.ID]
		assert.True(t, stored.FullyScanned)
		assert.Equal(t, models.ReservationStatusCompleted, stored.Status)
		assert.Equal(t, []string{messaging.SubjectTicketScanned, messaging.SubjectTicketScanned}, f.publisher.published())
	})

	t.Run("Scan locks the reservation before consuming the ticket", func(t *testing.T) {
		f := newScanFixture(t)
		res := f.seedTickets("CCCC0001", "CCCC0002")

		_, err := f.service.Scan(ctx, "CCCC0001", &staff, RequestMeta{})
		require.NoError(t, err)
		_, err = f.service.Scan(ctx, "CCCC0002", &staff, RequestMeta{})
		require.NoError(t, err)

		lock := "reservation:" + res.ID.String()
		assert.Equal(t, []string{lock, lock}, f.db.locks)
	})

	t.Run("Already used ticket takes no lock", func(t *testing.T) {
		f := newScanFixture(t)
		f.seedTickets("DDDD0001")

		_, err := f.service.Scan(ctx, "DDDD0001", &staff, RequestMeta{})
		require.NoError(t, err)
		_, err = f.service.Scan(ctx, "DDDD0001", &staff, RequestMeta{})
		var used *AlreadyUsedError
		require.ErrorAs(t, err, &used)
		assert.Len(t, f.db.locks, 1)
	})

	t.Run("QR payload and lower case input resolve to the code", func(t *testing.T) {
		f := newScanFixture(t)
		f.seedTickets("CCCC0001", "CCCC0002")

		_, err := f.service.Scan(ctx, QRPayload("CCCC0001"), &staff, RequestMeta{})
		require.NoError(t, err)
		_, err = f.service.Scan(ctx, " cccc0002 ", &staff, RequestMeta{})
		require.NoError(t, err)
	})

	t.Run("Unknown code is not found", func(t *testing.T) {
		f := newScanFixture(t)
		_, err := f.service.Scan(ctx, "NOPE0000", &staff, RequestMeta{})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, f.db.auditActions(), models.AuditActionScanRejected)
	})

	t.Run("Empty input is a validation error", func(t *testing.T) {
		f := newScanFixture(t)
		_, err := f.service.Scan(ctx, "   ", &staff, RequestMeta{})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("Legacy reservation code is consumed once", func(t *testing.T) {
		f := newScanFixture(t)
		res := f.db.seedReservation(testSlot, 1, models.ReservationStatusConfirmed)
		code := "LEGACY01"
		res.LegacyCode = &code
		f.db.reservations[res.ID] = res

		result, err := f.service.Scan(ctx, code, &staff, RequestMeta{})
		require.NoError(t, err)
		assert.True(t, result.Legacy)
		assert.True(t, result.FullyScanned)
		assert.Nil(t, result.Ticket)
		assert.True(t, f.db.reservations[res.ID].LegacyScanned)
		assert.Equal(t, models.ReservationStatusCompleted, f.db.reservations[res.ID].Status)

		_, err = f.service.Scan(ctx, code, &staff, RequestMeta{})
		var used *AlreadyUsedError
		require.ErrorAs(t, err, &used)
		assert.Nil(t, used.Ticket)
	})

	t.Run("Ticket code wins over a legacy code with the same value", func(t *testing.T) {
		f := newScanFixture(t)
		ticketRes := f.seedTickets("SHARED01")

		legacy := f.db.seedReservation(testSlot, 1, models.ReservationStatusConfirmed)
		code := "SHARED01"
		legacy.LegacyCode = &code
		f.db.reservations[legacy.ID] = legacy

		result, err := f.service.Scan(ctx, "SHARED01", &staff, RequestMeta{})
		require.NoError(t, err)
		assert.False(t, result.Legacy)
		assert.Equal(t, ticketRes.ID, result.Reservation.ID)
		assert.False(t, f.db.reservations[legacy.ID].LegacyScanned)
	})
}

func TestScanService_ConcurrentScansAcceptOnce(t *testing.T) {
	f := newScanFixture(t)
	f.seedTickets("RACE0001")
	staff := uuid.New()

	const scanners = 8
	var wg sync.WaitGroup
	results := make(chan error, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Scan(context.Background(), "RACE0001", &staff, RequestMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	accepted, used := 0, 0
	for err := range results {
		var usedErr *AlreadyUsedError
		switch {
		case err == nil:
			accepted++
		case assert.ErrorAs(t, err, &usedErr):
			used++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, scanners-1, used)
}
