package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nonvi/booking-core/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller may not perform the operation
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated caller may not see or change the entity
	ErrForbidden = errors.New("forbidden")

	// ErrTicketCodeExhausted is returned when no unique ticket code was found within the retry budget
	ErrTicketCodeExhausted = errors.New("could not generate a unique ticket code")

	// ErrFractionalAmount is returned when a total cannot be charged in whole currency units
	ErrFractionalAmount = errors.New("amount is not a whole number of currency units")
)

// ValidationError carries one message per offending field
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CapacityExceededError is returned when a slot cannot fit the requested seats
type CapacityExceededError struct {
	Remaining int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: requested %d seats, %d remaining", e.Requested, e.Remaining)
}

// AlreadyUsedError is returned when a ticket or legacy reservation code was scanned before.
// It carries the reservation so the scanner can show who the ticket belongs to.
type AlreadyUsedError struct {
	Reservation *models.Reservation
	Ticket      *models.Ticket
}

func (e *AlreadyUsedError) Error() string {
	return "ticket already used"
}

// GatewayError wraps a payment provider failure. It is not retried.
type GatewayError struct {
	Operation     string
	Message       string
	CorrelationID string
	Err           error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error during %s: %s (correlation id %s)", e.Operation, e.Message, e.CorrelationID)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// validationErrorFrom converts struct tag failures into per-field messages
func validationErrorFrom(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(jsonFieldName(fe), fieldMessage(fe))
	}
	return out
}

func jsonFieldName(fe validator.FieldError) string {
	// Namespace is Struct.Field[.Sub]; drop the struct name and snake_case the rest
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return toSnake(ns)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match the format %s", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", toSnake(fe.Param()))
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z'
			nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
			if i > 0 && s[i-1] != '.' && s[i-1] != '[' && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
