package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*entity.Booking, error)
	CountByUser(ctx context.Context, userID uuid.UUID, status string) (int64, error)
	Update(ctx context.Context, booking *entity.Booking) error

	// Business queries
	FindByConsultantBetween(ctx context.Context, consultantID uuid.UUID, from, to time.Time) ([]*entity.Booking, error)
	ExistsInHour(ctx context.Context, consultantID uuid.UUID, hourStart time.Time) (bool, error)
	LockSlot(ctx context.Context, consultantID uuid.UUID, hourStart time.Time) error
	FindStalePendingConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	SetPaymentStatus(ctx context.Context, bookingID uuid.UUID, paid bool) error
}

const bookingColumns = `
	id, consultant_id, patient_id, appointment_date, duration_hours, symptoms, status, payment_status,
	actual_start, actual_end, consultant_completed_at, patient_completed_at,
	consultant_confirmed, patient_confirmed, consultant_marked_no_show, patient_marked_no_show,
	dispute_reason, consultation_notes, created_at, updated_at`

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

func scanBooking(row pgx.Row) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.ConsultantID,
		&b.PatientID,
		&b.AppointmentDate,
		&b.DurationHours,
		&b.Symptoms,
		&b.Status,
		&b.PaymentStatus,
		&b.ActualStart,
		&b.ActualEnd,
		&b.ConsultantCompletedAt,
		&b.PatientCompletedAt,
		&b.ConsultantConfirmed,
		&b.PatientConfirmed,
		&b.ConsultantMarkedNoShow,
		&b.PatientMarkedNoShow,
		&b.DisputeReason,
		&b.ConsultationNotes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.ConsultantID,
		booking.PatientID,
		booking.AppointmentDate,
		booking.DurationHours,
		booking.Symptoms,
		booking.Status,
		booking.PaymentStatus,
		booking.ActualStart,
		booking.ActualEnd,
		booking.ConsultantCompletedAt,
		booking.PatientCompletedAt,
		booking.ConsultantConfirmed,
		booking.PatientConfirmed,
		booking.ConsultantMarkedNoShow,
		booking.PatientMarkedNoShow,
		booking.DisputeReason,
		booking.ConsultationNotes,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("consultant_id", booking.ConsultantID.String()),
			zap.String("patient_id", booking.PatientID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// FindByIDForUpdate row-locks the booking until the surrounding transaction ends.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*entity.Booking, error) {
	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE (consultant_id = $1 OR patient_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY appointment_date DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by user ID %s: %w", userID.String(), err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *bookingRepository) CountByUser(ctx context.Context, userID uuid.UUID, status string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE (consultant_id = $1 OR patient_id = $1)
		  AND ($2 = '' OR status = $2)
	`

	var count int64
	err := r.db.QueryRow(ctx, query, userID, status).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count bookings by user ID %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	query := `
		UPDATE bookings
		SET status = $2, payment_status = $3, actual_start = $4, actual_end = $5,
		    consultant_completed_at = $6, patient_completed_at = $7,
		    consultant_confirmed = $8, patient_confirmed = $9,
		    consultant_marked_no_show = $10, patient_marked_no_show = $11,
		    dispute_reason = $12, consultation_notes = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.Status,
		booking.PaymentStatus,
		booking.ActualStart,
		booking.ActualEnd,
		booking.ConsultantCompletedAt,
		booking.PatientCompletedAt,
		booking.ConsultantConfirmed,
		booking.PatientConfirmed,
		booking.ConsultantMarkedNoShow,
		booking.PatientMarkedNoShow,
		booking.DisputeReason,
		booking.ConsultationNotes,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("status", string(booking.Status)),
		)
		return fmt.Errorf("update booking %s: %w", booking.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", booking.ID.String(), ErrNotFound)
	}

	return nil
}

// FindByConsultantBetween returns bookings whose appointment falls in [from, to], both ends inclusive.
func (r *bookingRepository) FindByConsultantBetween(ctx context.Context, consultantID uuid.UUID, from, to time.Time) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE consultant_id = $1
		  AND appointment_date >= $2
		  AND appointment_date <= $3
		ORDER BY appointment_date
	`

	rows, err := r.db.Query(ctx, query, consultantID, from, to)
	if err != nil {
		r.log.Error("Failed to find bookings for consultant day",
			zap.Error(err),
			zap.String("consultant_id", consultantID.String()),
			zap.Time("from", from),
			zap.Time("to", to),
		)
		return nil, fmt.Errorf("find bookings for consultant %s: %w", consultantID.String(), err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ExistsInHour is the same-hour conflict query shared by slot listing and booking creation.
func (r *bookingRepository) ExistsInHour(ctx context.Context, consultantID uuid.UUID, hourStart time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE consultant_id = $1
			  AND appointment_date >= $2
			  AND appointment_date < $3
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, consultantID, hourStart, hourStart.Add(time.Hour)).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check slot conflict",
			zap.Error(err),
			zap.String("consultant_id", consultantID.String()),
			zap.Time("hour", hourStart),
		)
		return false, fmt.Errorf("check slot conflict for consultant %s: %w", consultantID.String(), err)
	}

	return exists, nil
}

// LockSlot takes a transaction-scoped advisory lock on (consultant, hour).
// Concurrent creators for the same slot queue here, so the conflict query that
// follows always sees the winner's committed row.
func (r *bookingRepository) LockSlot(ctx context.Context, consultantID uuid.UUID, hourStart time.Time) error {
	key := "booking-slot:" + consultantID.String() + ":" + hourStart.UTC().Format(time.RFC3339)

	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		r.log.Error("Failed to lock booking slot",
			zap.Error(err),
			zap.String("consultant_id", consultantID.String()),
			zap.Time("hour", hourStart),
		)
		return fmt.Errorf("lock slot for consultant %s: %w", consultantID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindStalePendingConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM bookings
		WHERE status = 'pending_confirmation'
		  AND patient_confirmed = FALSE
		  AND consultant_completed_at < $1
		ORDER BY consultant_completed_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		r.log.Error("Failed to find stale pending confirmations",
			zap.Error(err),
			zap.Time("cutoff", cutoff),
		)
		return nil, fmt.Errorf("find stale pending confirmations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.log.Error("Failed to scan booking id", zap.Error(err))
			return nil, fmt.Errorf("scan booking id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *bookingRepository) SetPaymentStatus(ctx context.Context, bookingID uuid.UUID, paid bool) error {
	query := `UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, bookingID, paid)
	if err != nil {
		r.log.Error("Failed to update booking payment status",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.Bool("paid", paid),
		)
		return fmt.Errorf("update booking %s payment status: %w", bookingID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", bookingID.String(), ErrNotFound)
	}

	return nil
}

func (r *bookingRepository) collect(rows pgx.Rows) ([]*entity.Booking, error) {
	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}

	return bookings, nil
}
