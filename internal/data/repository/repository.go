package repository

import (
	"errors"

	"telehealth-core/pkg/database"

	"go.uber.org/zap"
)

// ErrNotFound is returned by writes that matched no row.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	Account AccountRepository
	Session SessionRepository
	Booking BookingRepository
	Payment PaymentRepository
}

// NewRepository binds every repository to db, which is either the pool or an open transaction.
func NewRepository(db database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		Account: NewAccountRepository(db, log),
		Session: NewSessionRepository(db, log),
		Booking: NewBookingRepository(db, log),
		Payment: NewPaymentRepository(db, log),
	}
}
