package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nonvi/booking-core/internal/database"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/sirupsen/logrus"
)

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memDB is an in-memory stand-in for the booking tables. memTx snapshots it
// before a transaction and restores it on error.
type memDB struct {
	mu           sync.Mutex
	holds        map[string]models.BookingHold
	reservations map[uuid.UUID]models.Reservation
	tickets      map[string]models.Ticket
	orders       map[uuid.UUID]models.Order
	products     map[int64]models.Product
	settings     map[string]models.SystemSetting
	audits       []models.AuditLog
	locks        []string
}

func newMemDB() *memDB {
	return &memDB{
		holds:        map[string]models.BookingHold{},
		reservations: map[uuid.UUID]models.Reservation{},
		tickets:      map[string]models.Ticket{},
		orders:       map[uuid.UUID]models.Order{},
		products:     map[int64]models.Product{},
		settings:     map[string]models.SystemSetting{},
	}
}

type memState struct {
	holds        map[string]models.BookingHold
	reservations map[uuid.UUID]models.Reservation
	tickets      map[string]models.Ticket
	orders       map[uuid.UUID]models.Order
}

func (db *memDB) snapshot() memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := memState{
		holds:        map[string]models.BookingHold{},
		reservations: map[uuid.UUID]models.Reservation{},
		tickets:      map[string]models.Ticket{},
		orders:       map[uuid.UUID]models.Order{},
	}
	for k, v := range db.holds {
		s.holds[k] = v
	}
	for k, v := range db.reservations {
		s.reservations[k] = v
	}
	for k, v := range db.tickets {
		s.tickets[k] = v
	}
	for k, v := range db.orders {
		s.orders[k] = v
	}
	return s
}

func (db *memDB) restore(s memState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.holds, db.reservations, db.tickets, db.orders = s.holds, s.reservations, s.tickets, s.orders
}

func (db *memDB) ticketsFor(id uuid.UUID) []models.Ticket {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Ticket
	for _, t := range db.tickets {
		if t.ReservationID == id {
			out = append(out, t)
		}
	}
	return out
}

func (db *memDB) auditActions() []models.AuditAction {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.AuditAction, 0, len(db.audits))
	for _, a := range db.audits {
		out = append(out, a.Action)
	}
	return out
}

// ---------------------------------------------------------------------------

type memTx struct{ db *memDB }

func (t memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

func (t memTx) LockSlot(_ context.Context, key string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.locks = append(t.db.locks, key)
	return nil
}

// ---------------------------------------------------------------------------

type memHolds struct{ db *memDB }

func (r memHolds) Create(_ context.Context, hold *models.BookingHold) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.holds[hold.GatewayTransactionID]; ok {
		return database.ErrDuplicateTransaction
	}
	r.db.holds[hold.GatewayTransactionID] = *hold
	return nil
}

func (r memHolds) TakeByTransactionID(_ context.Context, transactionID string) (*models.BookingHold, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	hold, ok := r.db.holds[transactionID]
	if !ok {
		return nil, nil
	}
	delete(r.db.holds, transactionID)
	return &hold, nil
}

func (r memHolds) SumHeldSeats(_ context.Context, slot models.Slot, since time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	total := 0
	for _, h := range r.db.holds {
		if h.Kind != models.HoldKindTransport || h.CreatedAt.Before(since) {
			continue
		}
		if h.Payload.Transport.Slot() == slot {
			total += h.SeatCount
		}
	}
	return total, nil
}

func (r memHolds) DeleteCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.BookingHold, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.BookingHold
	for k, h := range r.db.holds {
		if len(out) == limit {
			break
		}
		if h.CreatedAt.Before(cutoff) {
			out = append(out, h)
			delete(r.db.holds, k)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

type memReservations struct{ db *memDB }

func (r memReservations) Create(_ context.Context, res *models.Reservation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.reservations[res.ID] = *res
	return nil
}

func (r memReservations) GetByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	res, ok := r.db.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r memReservations) GetByLegacyCode(_ context.Context, code string) (*models.Reservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, res := range r.db.reservations {
		if res.LegacyCode != nil && *res.LegacyCode == code {
			found := res
			return &found, nil
		}
	}
	return nil, nil
}

func (r memReservations) SumCommittedSeats(_ context.Context, slot models.Slot) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	total := 0
	for _, res := range r.db.reservations {
		if res.Slot() != slot {
			continue
		}
		for _, active := range models.ActiveReservationStatuses {
			if res.Status == active {
				total += res.SeatCount
			}
		}
	}
	return total, nil
}

func (r memReservations) MarkLegacyScanned(_ context.Context, code string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, res := range r.db.reservations {
		if res.LegacyCode != nil && *res.LegacyCode == code && !res.LegacyScanned {
			res.LegacyScanned = true
			res.FullyScanned = true
			res.Status = models.ReservationStatusCompleted
			r.db.reservations[id] = res
			return true, nil
		}
	}
	return false, nil
}

func (r memReservations) LockForScan(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.reservations[id]; !ok {
		return fmt.Errorf("reservation %s not found", id)
	}
	r.db.locks = append(r.db.locks, "reservation:"+id.String())
	return nil
}

func (r memReservations) MarkFullyScanned(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	res := r.db.reservations[id]
	res.FullyScanned = true
	res.Status = models.ReservationStatusCompleted
	r.db.reservations[id] = res
	return nil
}

// ---------------------------------------------------------------------------

type memTickets struct {
	db *memDB
	// existing codes reported by CodeExists without being stored, to force collisions
	phantom map[string]bool
}

func (r memTickets) CodeExists(_ context.Context, code string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.tickets[code]
	return ok || r.phantom[code], nil
}

func (r memTickets) Create(_ context.Context, ticket *models.Ticket) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tickets[ticket.Code]; ok {
		return database.ErrDuplicateTicketCode
	}
	r.db.tickets[ticket.Code] = *ticket
	return nil
}

func (r memTickets) GetByCode(_ context.Context, code string) (*models.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tickets[code]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memTickets) ListByReservation(_ context.Context, reservationID uuid.UUID) ([]models.Ticket, error) {
	return r.db.ticketsFor(reservationID), nil
}

func (r memTickets) MarkScanned(_ context.Context, code string, scannedBy *uuid.UUID, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tickets[code]
	if !ok || t.Scanned {
		return false, nil
	}
	t.Scanned = true
	t.ScannedAt = &at
	t.ScannedBy = scannedBy
	r.db.tickets[code] = t
	return true, nil
}

func (r memTickets) CountUnscanned(_ context.Context, reservationID uuid.UUID) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, t := range r.db.tickets {
		if t.ReservationID == reservationID && !t.Scanned {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------

type memOrders struct{ db *memDB }

func (r memOrders) GetActiveProducts(_ context.Context, ids []int64) (map[int64]models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := map[int64]models.Product{}
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok && p.IsActive {
			out[id] = p
		}
	}
	return out, nil
}

func (r memOrders) Create(_ context.Context, order *models.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.orders[order.ID] = *order
	return nil
}

// ---------------------------------------------------------------------------

type memSettings struct{ db *memDB }

func (r memSettings) GetAll(_ context.Context) ([]models.SystemSetting, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.SystemSetting, 0, len(r.db.settings))
	for _, s := range r.db.settings {
		out = append(out, s)
	}
	return out, nil
}

func (r memSettings) GetByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.settings[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r memSettings) Upsert(_ context.Context, key, value string) (*models.SystemSetting, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s := r.db.settings[key]
	s.SettingKey = key
	s.SettingValue = value
	r.db.settings[key] = s
	return &s, nil
}

func (db *memDB) setSetting(key, value string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.settings[key] = models.SystemSetting{SettingKey: key, SettingValue: value}
}

// ---------------------------------------------------------------------------

type memAudit struct{ db *memDB }

func (r memAudit) Log(_ context.Context, entry *models.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.audits = append(r.db.audits, *entry)
	return nil
}

// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

// ---------------------------------------------------------------------------

// seedHold inserts a transport hold for slot created at createdAt
func (db *memDB) seedHold(txID string, slot models.Slot, seats int, createdAt time.Time) models.BookingHold {
	hold := models.BookingHold{
		ID:                   uuid.New(),
		GatewayTransactionID: txID,
		Kind:                 models.HoldKindTransport,
		Payload: models.HoldPayload{Transport: &models.TransportPayload{
			DepartureStationID: slot.DepartureStationID,
			ArrivalStationID:   slot.DepartureStationID + 1,
			TravelDate:         slot.TravelDate,
			TravelTime:         slot.TravelTime,
			SeatCount:          seats,
			UnitPrice:          2500,
			TotalPrice:         float64(seats) * 2500,
		}},
		Amount:    float64(seats) * 2500,
		SeatCount: seats,
		CreatedAt: createdAt,
	}
	db.mu.Lock()
	db.holds[txID] = hold
	db.mu.Unlock()
	return hold
}

// seedReservation inserts a reservation with the given raw status on slot
func (db *memDB) seedReservation(slot models.Slot, seats int, status models.ReservationStatus) models.Reservation {
	date, _ := time.Parse("2006-01-02", slot.TravelDate)
	res := models.Reservation{
		ID:                 uuid.New(),
		DepartureStationID: slot.DepartureStationID,
		ArrivalStationID:   slot.DepartureStationID + 1,
		TravelDate:         date,
		TravelTime:         slot.TravelTime,
		SeatCount:          seats,
		Status:             status,
		PaymentStatus:      models.PaymentStatusPaid,
	}
	db.mu.Lock()
	db.reservations[res.ID] = res
	db.mu.Unlock()
	return res
}
