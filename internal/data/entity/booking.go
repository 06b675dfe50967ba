package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusUpcoming            BookingStatus = "upcoming"
	BookingStatusInProgress          BookingStatus = "in_progress"
	BookingStatusPendingConfirmation BookingStatus = "pending_confirmation"
	BookingStatusCompleted           BookingStatus = "completed"
	BookingStatusDisputed            BookingStatus = "disputed"
	BookingStatusNoShow              BookingStatus = "no_show"
)

const DefaultBookingDurationHours = 1

type Booking struct {
	Base
	ConsultantID    uuid.UUID     `db:"consultant_id"`
	PatientID       uuid.UUID     `db:"patient_id"`
	AppointmentDate time.Time     `db:"appointment_date"`
	DurationHours   int           `db:"duration_hours"`
	Symptoms        string        `db:"symptoms"`
	Status          BookingStatus `db:"status"`
	PaymentStatus   bool          `db:"payment_status"`

	ActualStart           *time.Time `db:"actual_start"`
	ActualEnd             *time.Time `db:"actual_end"`
	ConsultantCompletedAt *time.Time `db:"consultant_completed_at"`
	PatientCompletedAt    *time.Time `db:"patient_completed_at"`

	ConsultantConfirmed    bool    `db:"consultant_confirmed"`
	PatientConfirmed       bool    `db:"patient_confirmed"`
	ConsultantMarkedNoShow bool    `db:"consultant_marked_no_show"`
	PatientMarkedNoShow    bool    `db:"patient_marked_no_show"`
	DisputeReason          *string `db:"dispute_reason"`
	ConsultationNotes      string  `db:"consultation_notes"`
}

// SlotHour is the start of the calendar hour the appointment occupies, in UTC.
func (b *Booking) SlotHour() time.Time {
	return b.AppointmentDate.UTC().Truncate(time.Hour)
}
