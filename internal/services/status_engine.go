package services

import (
	"fmt"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/models"
)

// completionGrace is how long after departure a trip is considered finished
const completionGrace = 2 * time.Hour

// ProjectStatus computes the display status of a reservation as of now.
// It never writes; stored status only changes through scans and admin overrides.
func ProjectStatus(raw models.ReservationStatus, departure, now time.Time) models.ReservationStatus {
	if raw.IsTerminal() {
		return raw
	}
	if now.After(departure.Add(completionGrace)) {
		return models.ReservationStatusCompleted
	}
	if now.After(departure) && raw == models.ReservationStatusConfirmed {
		return models.ReservationStatusEnRoute
	}
	return raw
}

// StatusEngine projects stored reservations into their read-time view
type StatusEngine struct {
	location *time.Location
	clock    clock.Clock
}

// NewStatusEngine creates a status engine for the operator's time zone
func NewStatusEngine(location *time.Location, clk clock.Clock) *StatusEngine {
	if location == nil {
		location = time.UTC
	}
	return &StatusEngine{location: location, clock: clk}
}

// Departure combines a travel date and an HH:MM (or HH:MM:SS) time in the operator's zone
func (e *StatusEngine) Departure(date time.Time, travelTime string) (time.Time, error) {
	return departureAt(date, travelTime, e.location)
}

// Project returns the display status of res as of now
func (e *StatusEngine) Project(res *models.Reservation) models.ReservationStatus {
	departure, err := e.Departure(res.TravelDate, res.TravelTime)
	if err != nil {
		return res.Status
	}
	return ProjectStatus(res.Status, departure, e.clock.Now())
}

// View builds the read-path representation of a reservation
func (e *StatusEngine) View(res *models.Reservation, tickets []models.Ticket) *models.ReservationView {
	view := &models.ReservationView{
		Reservation: *res,
		RawStatus:   res.Status,
		Tickets:     TicketViews(tickets),
	}
	view.Status = e.Project(res)
	return view
}

func departureAt(date time.Time, travelTime string, loc *time.Location) (time.Time, error) {
	clockTime, err := parseTravelTime(travelTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clockTime.Hour(), clockTime.Minute(), clockTime.Second(), 0, loc), nil
}

func parseTravelTime(value string) (time.Time, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid travel time %q", value)
}
