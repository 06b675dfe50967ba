package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// PaymentCategory says what a charge paid for.
type PaymentCategory string

const (
	PaymentCategoryBookings     PaymentCategory = "bookings"
	PaymentCategoryMedications  PaymentCategory = "medications"
	PaymentCategoryTestBookings PaymentCategory = "test-bookings"
)

func (c PaymentCategory) Valid() bool {
	switch c {
	case PaymentCategoryBookings, PaymentCategoryMedications, PaymentCategoryTestBookings:
		return true
	}
	return false
}

type Payment struct {
	Base
	BookingID   *uuid.UUID      `db:"booking_id"`
	PatientID   uuid.UUID       `db:"patient_id"`
	Reference   string          `db:"reference"`
	Amount      decimal.Decimal `db:"amount"`
	Method      PaymentMethod   `db:"method"`
	Category    PaymentCategory `db:"category"`
	Status      PaymentStatus   `db:"status"`
	InvoiceID   *string         `db:"invoice_id"`
	InitiatedAt time.Time       `db:"initiated_at"`
}
