package repository

import (
	"context"
	"errors"
	"fmt"

	"telehealth-core/internal/data/entity"
	"telehealth-core/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	FindByReference(ctx context.Context, reference string) (*entity.Payment, error)
	FindByReferenceForUpdate(ctx context.Context, reference string) (*entity.Payment, error)
	FindSuccessByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	Upsert(ctx context.Context, payment *entity.Payment) error

	// Business queries
	LockReference(ctx context.Context, reference string) error
	UpdateStatusByReferenceAndPatient(ctx context.Context, reference string, patientID uuid.UUID, status entity.PaymentStatus) (bool, error)
}

const paymentColumns = `
	id, booking_id, patient_id, reference, amount, method, category, status, invoice_id,
	initiated_at, created_at, updated_at`

// ErrDuplicateReference is returned when another row already holds the reference.
var ErrDuplicateReference = errors.New("payment reference already recorded")

var referenceConstraints = []string{"payments_reference_key", "uniq_payments_reference_success"}

type paymentRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentRepository(db database.Querier, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

func (r *paymentRepository) FindByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	return r.findOne(ctx, query, reference)
}

func (r *paymentRepository) FindByReferenceForUpdate(ctx context.Context, reference string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1 FOR UPDATE`
	return r.findOne(ctx, query, reference)
}

// FindSuccessByBookingID returns the earliest successful charge for the booking.
func (r *paymentRepository) FindSuccessByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'success'
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.findOne(ctx, query, bookingID)
}

func (r *paymentRepository) findOne(ctx context.Context, query string, arg any) (*entity.Payment, error) {
	var payment entity.Payment
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.PatientID,
		&payment.Reference,
		&payment.Amount,
		&payment.Method,
		&payment.Category,
		&payment.Status,
		&payment.InvoiceID,
		&payment.InitiatedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment",
			zap.Error(err),
			zap.Any("key", arg),
		)
		return nil, fmt.Errorf("find payment %v: %w", arg, err)
	}

	return &payment, nil
}

// Upsert inserts the payment or overwrites the mutable columns of the row with the same reference.
// An existing booking link is never cleared by a later event that lacks one.
func (r *paymentRepository) Upsert(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (reference) DO UPDATE
		SET booking_id = COALESCE(EXCLUDED.booking_id, payments.booking_id),
		    amount = EXCLUDED.amount,
		    method = EXCLUDED.method,
		    status = EXCLUDED.status,
		    invoice_id = COALESCE(EXCLUDED.invoice_id, payments.invoice_id),
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.PatientID,
		payment.Reference,
		payment.Amount,
		payment.Method,
		payment.Category,
		payment.Status,
		payment.InvoiceID,
		payment.InitiatedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if database.IsUniqueViolation(err, referenceConstraints...) {
		return fmt.Errorf("upsert payment %s: %w", payment.Reference, ErrDuplicateReference)
	}
	if err != nil {
		r.log.Error("Failed to upsert payment",
			zap.Error(err),
			zap.String("reference", payment.Reference),
			zap.String("status", string(payment.Status)),
		)
		return fmt.Errorf("upsert payment %s: %w", payment.Reference, err)
	}

	return nil
}

// LockReference serializes every writer of one reference for the rest of the transaction,
// including the first writer, when no row exists yet to lock.
func (r *paymentRepository) LockReference(ctx context.Context, reference string) error {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "payment-ref:"+reference); err != nil {
		r.log.Error("Failed to lock payment reference",
			zap.Error(err),
			zap.String("reference", reference),
		)
		return fmt.Errorf("lock payment reference %s: %w", reference, err)
	}

	return nil
}

// UpdateStatusByReferenceAndPatient moves a successful payment to status. Rows in any other
// state are left alone and reported as not updated.
func (r *paymentRepository) UpdateStatusByReferenceAndPatient(ctx context.Context, reference string, patientID uuid.UUID, status entity.PaymentStatus) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3, updated_at = NOW()
		WHERE reference = $1 AND patient_id = $2 AND status = 'success'
	`

	result, err := r.db.Exec(ctx, query, reference, patientID, status)
	if err != nil {
		r.log.Error("Failed to update payment status",
			zap.Error(err),
			zap.String("reference", reference),
			zap.String("status", string(status)),
		)
		return false, fmt.Errorf("update payment %s status to %s: %w", reference, string(status), err)
	}

	return result.RowsAffected() > 0, nil
}
