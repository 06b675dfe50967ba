package usecase

import (
	"errors"
	"fmt"

	"telehealth-core/internal/data/entity"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("caller is not a participant of this booking")
	ErrSlotTaken             = errors.New("slot already booked, pick another time")
	ErrPastDate              = errors.New("cannot book a date in the past")
	ErrConsultantNotApproved = errors.New("consultant is not approved for bookings")
	ErrAlreadyPaid           = errors.New("booking is already paid")
	ErrInvalidSignature      = errors.New("invalid webhook signature")

	// ErrUpstream is retryable; the gateway timed out or failed.
	ErrUpstream = gateway.ErrUpstream
)

// ValidationError carries per-field messages from request validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + utils.FormatValidationErrors(e.Fields)
}

func validate(req any) error {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// StateError is returned when a transition is attempted from a status that does not allow it.
type StateError struct {
	BookingID uuid.UUID
	Current   entity.BookingStatus
	Expected  entity.BookingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("booking %s is %s, expected %s", e.BookingID, e.Current, e.Expected)
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}
