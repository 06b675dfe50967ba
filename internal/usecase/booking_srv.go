package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"
	"telehealth-core/internal/dto/request"
	"telehealth-core/internal/dto/response"
	"telehealth-core/pkg/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("telehealth-core/usecase")

// ConfirmationWindow is how long a patient has to confirm before the sweeper completes the booking.
const ConfirmationWindow = 24 * time.Hour

// errNotEligible rolls back an auto-complete whose booking no longer matches the sweep predicate.
var errNotEligible = errors.New("booking not eligible for auto-complete")

type BookingService interface {
	// Patient
	CreateBooking(ctx context.Context, patientID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	ConfirmBooking(ctx context.Context, patientID uuid.UUID, bookingID string, req *request.ConfirmBookingRequest) (*response.BookingResponse, error)

	// Consultant
	StartBooking(ctx context.Context, consultantID uuid.UUID, bookingID string) (*response.BookingResponse, error)
	CompleteBooking(ctx context.Context, consultantID uuid.UUID, bookingID string, req *request.CompleteBookingRequest) (*response.BookingResponse, error)
	MarkNoShow(ctx context.Context, consultantID uuid.UUID, bookingID string) (*response.BookingResponse, error)

	// Either participant
	GetBooking(ctx context.Context, callerID uuid.UUID, bookingID string) (*response.BookingResponse, error)
	ListBookings(ctx context.Context, callerID uuid.UUID, req *request.ListBookingsRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	// System
	AutoComplete(ctx context.Context, bookingID uuid.UUID, cutoff time.Time) (bool, error)
}

type bookingService struct {
	repo     *repository.Repository
	tx       repository.Transactor
	cache    SlotCache
	notifier *NotificationDispatcher
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *zap.Logger
}

func NewBookingService(
	repo *repository.Repository,
	tx repository.Transactor,
	cache SlotCache,
	notifier *NotificationDispatcher,
	m *metrics.Metrics,
	now func() time.Time,
	log *zap.Logger,
) BookingService {
	if now == nil {
		now = time.Now
	}
	return &bookingService{
		repo:     repo,
		tx:       tx,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		now:      now,
		log:      log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, patientID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		s.log.Warn("Create booking validation failed", zap.Error(err))
		return nil, err
	}

	consultantID, err := uuid.Parse(req.ConsultantID)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"ConsultantID": "Must be a valid UUID"}}
	}

	appointment, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"Date": "Must be an RFC3339 timestamp"}}
	}

	ctx, span := tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("booking.consultant_id", consultantID.String()),
		attribute.String("booking.appointment", appointment.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	now := s.now().UTC()
	if dateOnly(appointment.UTC()).Before(dateOnly(now)) {
		return nil, ErrPastDate
	}

	consultant, err := s.repo.Account.FindConsultant(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("get consultant: %w", err)
	}
	if consultant == nil {
		return nil, notFound("consultant", consultantID)
	}
	if !consultant.IsApproved {
		return nil, ErrConsultantNotApproved
	}

	duration := entity.DefaultBookingDurationHours
	if req.Duration != nil {
		duration = *req.Duration
	}

	booking := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ConsultantID:    consultantID,
		PatientID:       patientID,
		AppointmentDate: appointment,
		DurationHours:   duration,
		Symptoms:        req.Symptoms,
		Status:          entity.BookingStatusUpcoming,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repo *repository.Repository) error {
		hour := booking.SlotHour()
		if err := repo.Booking.LockSlot(ctx, consultantID, hour); err != nil {
			return err
		}

		taken, err := repo.Booking.ExistsInHour(ctx, consultantID, hour)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		return repo.Booking.Create(ctx, booking)
	})
	s.metrics.ObserveTransition("create", err)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveSlotConflict()
			s.log.Info("Slot already taken",
				zap.String("consultant_id", consultantID.String()),
				zap.Time("hour", booking.SlotHour()),
			)
			return nil, err
		}
		span.SetStatus(codes.Error, "create booking failed")
		s.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("patient_id", patientID.String()),
			zap.String("consultant_id", consultantID.String()),
		)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, consultantID.String(), booking.SlotHour().Format(dateLayout)); err != nil {
			s.log.Warn("Failed to invalidate slot cache", zap.Error(err))
		}
	}

	s.notifier.Dispatch(Notification{
		RecipientID: consultantID,
		Title:       "New booking",
		Message:     fmt.Sprintf("A patient booked a consultation for %s", booking.AppointmentDate.UTC().Format("Mon 02 Jan 2006 15:04 MST")),
		Severity:    SeverityInfo,
		Category:    "booking",
	})

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.String("consultant_id", consultantID.String()),
		zap.Time("appointment", booking.AppointmentDate),
	)

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) StartBooking(ctx context.Context, consultantID uuid.UUID, bookingID string) (*response.BookingResponse, error) {
	booking, err := s.transition(ctx, "start", bookingID, func(b *entity.Booking, now time.Time) error {
		if b.ConsultantID != consultantID {
			return ErrForbidden
		}
		if err := requireStatus(b, entity.BookingStatusUpcoming); err != nil {
			return err
		}
		b.Status = entity.BookingStatusInProgress
		b.ActualStart = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(Notification{
		RecipientID: booking.PatientID,
		Title:       "Consultation started",
		Message:     "Your consultant has started the session.",
		Severity:    SeverityInfo,
		Category:    "booking",
	})

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) CompleteBooking(ctx context.Context, consultantID uuid.UUID, bookingID string, req *request.CompleteBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	booking, err := s.transition(ctx, "complete", bookingID, func(b *entity.Booking, now time.Time) error {
		if b.ConsultantID != consultantID {
			return ErrForbidden
		}
		if err := requireStatus(b, entity.BookingStatusInProgress); err != nil {
			return err
		}
		b.Status = entity.BookingStatusPendingConfirmation
		b.ActualEnd = &now
		b.ConsultantCompletedAt = &now
		b.ConsultantConfirmed = true
		b.ConsultationNotes = req.Notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(Notification{
		RecipientID: booking.PatientID,
		Title:       "Please confirm your consultation",
		Message:     "Your consultant marked the session as complete. Confirm or raise a dispute within 24 hours.",
		Severity:    SeverityInfo,
		Category:    "booking",
	})

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) ConfirmBooking(ctx context.Context, patientID uuid.UUID, bookingID string, req *request.ConfirmBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	confirmed := *req.Confirmed

	booking, err := s.transition(ctx, "confirm", bookingID, func(b *entity.Booking, now time.Time) error {
		if b.PatientID != patientID {
			return ErrForbidden
		}
		if err := requireStatus(b, entity.BookingStatusPendingConfirmation); err != nil {
			return err
		}
		b.PatientCompletedAt = &now
		b.PatientConfirmed = confirmed
		if confirmed {
			b.Status = entity.BookingStatusCompleted
			return nil
		}
		b.Status = entity.BookingStatusDisputed
		if reason := strings.TrimSpace(req.DisputeReason); reason != "" {
			b.DisputeReason = &reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	note := Notification{
		RecipientID: booking.ConsultantID,
		Title:       "Consultation confirmed",
		Message:     "The patient confirmed the consultation.",
		Severity:    SeveritySuccess,
		Category:    "booking",
	}
	if !confirmed {
		note.Title = "Consultation disputed"
		note.Message = "The patient disputed the consultation."
		note.Severity = SeverityWarning
	}
	s.notifier.Dispatch(note)

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) MarkNoShow(ctx context.Context, consultantID uuid.UUID, bookingID string) (*response.BookingResponse, error) {
	booking, err := s.transition(ctx, "no_show", bookingID, func(b *entity.Booking, now time.Time) error {
		if b.ConsultantID != consultantID {
			return ErrForbidden
		}
		if err := requireStatus(b, entity.BookingStatusInProgress); err != nil {
			return err
		}
		b.Status = entity.BookingStatusNoShow
		b.ConsultantMarkedNoShow = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(Notification{
		RecipientID: booking.PatientID,
		Title:       "Missed consultation",
		Message:     "Your consultant marked this session as a no-show.",
		Severity:    SeverityWarning,
		Category:    "booking",
	})

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

// AutoComplete completes a booking the patient left unconfirmed. It re-checks the sweep
// predicate under the row lock and reports false without writing when it no longer holds.
func (s *bookingService) AutoComplete(ctx context.Context, bookingID uuid.UUID, cutoff time.Time) (bool, error) {
	booking, err := s.transition(ctx, "auto_complete", bookingID.String(), func(b *entity.Booking, now time.Time) error {
		if b.Status != entity.BookingStatusPendingConfirmation ||
			b.PatientConfirmed ||
			b.ConsultantCompletedAt == nil ||
			!b.ConsultantCompletedAt.Before(cutoff) {
			return errNotEligible
		}
		b.Status = entity.BookingStatusCompleted
		b.PatientConfirmed = true
		b.PatientCompletedAt = &now
		return nil
	})
	if errors.Is(err, errNotEligible) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, recipient := range []uuid.UUID{booking.PatientID, booking.ConsultantID} {
		s.notifier.Dispatch(Notification{
			RecipientID: recipient,
			Title:       "Consultation completed",
			Message:     "The confirmation window closed and the consultation was marked complete.",
			Severity:    SeverityInfo,
			Category:    "booking",
		})
	}

	return true, nil
}

func (s *bookingService) GetBooking(ctx context.Context, callerID uuid.UUID, bookingID string) (*response.BookingResponse, error) {
	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", id)
	}
	if booking.ConsultantID != callerID && booking.PatientID != callerID {
		return nil, ErrForbidden
	}

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) ListBookings(ctx context.Context, callerID uuid.UUID, req *request.ListBookingsRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByUser(ctx, callerID, req.Status, limit, offset)
	if err != nil {
		s.log.Error("Failed to list bookings",
			zap.Error(err),
			zap.String("user_id", callerID.String()),
			zap.Int("page", req.Page),
			zap.Int("per_page", req.PerPage),
		)
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByUser(ctx, callerID, req.Status)
	if err != nil {
		s.log.Error("Failed to count bookings", zap.Error(err))
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	items := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = response.BookingToResponse(b)
	}

	return response.NewPaginatedResponse(items, req.Page, limit, total), nil
}

// transition loads the booking under a row lock, lets apply mutate it, and persists the result.
// apply returning an error rolls the transaction back with nothing written.
func (s *bookingService) transition(ctx context.Context, action, bookingID string, apply func(b *entity.Booking, now time.Time) error) (*entity.Booking, error) {
	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "booking."+action, trace.WithAttributes(
		attribute.String("booking.id", id.String()),
	))
	defer span.End()

	var updated *entity.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repo *repository.Repository) error {
		booking, err := repo.Booking.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return notFound("booking", id)
		}

		now := s.now().UTC()
		if err := apply(booking, now); err != nil {
			return err
		}
		booking.UpdatedAt = now

		if err := repo.Booking.Update(ctx, booking); err != nil {
			return err
		}
		updated = booking
		return nil
	})

	if errors.Is(err, errNotEligible) {
		return nil, err
	}
	s.metrics.ObserveTransition(action, err)
	if err != nil {
		span.RecordError(err)
		var stateErr *StateError
		if errors.As(err, &stateErr) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
			s.log.Info("Booking transition rejected",
				zap.String("action", action),
				zap.String("booking_id", id.String()),
				zap.Error(err),
			)
			return nil, err
		}
		span.SetStatus(codes.Error, action+" failed")
		s.log.Error("Booking transition failed",
			zap.String("action", action),
			zap.String("booking_id", id.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s booking %s: %w", action, id, err)
	}

	s.log.Info("Booking transitioned",
		zap.String("action", action),
		zap.String("booking_id", id.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func requireStatus(b *entity.Booking, expected entity.BookingStatus) error {
	if b.Status != expected {
		return &StateError{BookingID: b.ID, Current: b.Status, Expected: expected}
	}
	return nil
}

func parseBookingID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, &ValidationError{Fields: map[string]string{"id": "Must be a valid UUID"}}
	}
	return parsed, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
