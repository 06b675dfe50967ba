package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outcome says what a webhook delivery did. Every outcome is acknowledged to the gateway.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

var (
	errDuplicate = errors.New("charge already recorded as successful")
	errStale     = errors.New("event older than recorded payment state")
	errMismatch  = errors.New("event does not match the booking")
)

// SignatureVerifier is satisfied by gateway.Client.
type SignatureVerifier interface {
	VerifySignature(payload []byte, signature string) bool
}

type Reconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error)
}

type reconciler struct {
	repo     *repository.Repository
	tx       repository.Transactor
	verifier SignatureVerifier
	orders   Publisher
	notifier *NotificationDispatcher
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *zap.Logger
}

func NewReconciler(
	repo *repository.Repository,
	tx repository.Transactor,
	verifier SignatureVerifier,
	orders Publisher,
	notifier *NotificationDispatcher,
	m *metrics.Metrics,
	now func() time.Time,
	log *zap.Logger,
) Reconciler {
	if now == nil {
		now = time.Now
	}
	return &reconciler{
		repo:     repo,
		tx:       tx,
		verifier: verifier,
		orders:   orders,
		notifier: notifier,
		metrics:  m,
		now:      now,
		log:      log.With(zap.String("service", "reconciler")),
	}
}

func (r *reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	started := r.now()

	if !r.verifier.VerifySignature(payload, signature) {
		r.metrics.ObserveWebhook("unknown", "invalid_signature", r.now().Sub(started).Seconds())
		r.log.Warn("Rejected webhook with invalid signature")
		return "", ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.log.Warn("Acknowledged undecodable webhook", zap.Error(err))
		r.metrics.ObserveWebhook("unknown", string(OutcomeIgnored), r.now().Sub(started).Seconds())
		return OutcomeIgnored, nil
	}

	ctx, span := tracer.Start(ctx, "payment.webhook", trace.WithAttributes(
		attribute.String("payment.event", event.Event),
		attribute.String("payment.reference", event.Data.ChargeReference()),
	))
	defer span.End()

	var (
		outcome Outcome
		err     error
	)
	switch {
	case event.Event == EventChargeSuccess:
		outcome, err = r.applyCharge(ctx, entity.PaymentStatusSuccess, event.Data)
	case event.Event == EventChargeFailed:
		outcome, err = r.applyCharge(ctx, entity.PaymentStatusFailed, event.Data)
	case event.Event == EventChargePending:
		outcome, err = r.applyCharge(ctx, entity.PaymentStatusPending, event.Data)
	case event.Event == EventRefundProcessed:
		outcome, err = r.applyRefund(ctx, event.Data)
	case strings.HasPrefix(event.Event, eventTransferPrefix):
		outcome = OutcomeIgnored
	default:
		r.log.Info("Acknowledged unknown webhook event", zap.String("event", event.Event))
		outcome = OutcomeIgnored
	}

	label := string(outcome)
	if err != nil {
		label = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook processing failed")
	}
	r.metrics.ObserveWebhook(event.Event, label, r.now().Sub(started).Seconds())

	return outcome, err
}

func (r *reconciler) applyCharge(ctx context.Context, status entity.PaymentStatus, data WebhookData) (Outcome, error) {
	reference := data.ChargeReference()
	if reference == "" {
		r.log.Warn("Acknowledged charge event without reference")
		return OutcomeIgnored, nil
	}

	meta, err := DecodeMetadata(data.Metadata)
	if err != nil {
		r.log.Info("Acknowledged charge with unusable metadata",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return OutcomeIgnored, nil
	}

	var bookingID *uuid.UUID
	if m, ok := meta.(BookingPaymentMetadata); ok {
		id := m.BookingID
		bookingID = &id
	}

	now := r.now().UTC()
	var settledBy string
	err = r.tx.WithinTx(ctx, func(ctx context.Context, repo *repository.Repository) error {
		settledBy = ""
		if err := repo.Payment.LockReference(ctx, reference); err != nil {
			return err
		}

		existing, err := repo.Payment.FindByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if existing != nil {
			switch {
			case existing.Status == entity.PaymentStatusSuccess && status == entity.PaymentStatusSuccess:
				return errDuplicate
			case existing.Status == entity.PaymentStatusSuccess || existing.Status == entity.PaymentStatusRefunded:
				return errStale
			}
		}

		if bookingID != nil {
			booking, err := repo.Booking.FindByIDForUpdate(ctx, *bookingID)
			if err != nil {
				return err
			}
			if booking == nil || booking.PatientID != meta.Patient() {
				return errMismatch
			}

			// A second successful charge for a paid booking is kept for refund.
			if status == entity.PaymentStatusSuccess && booking.PaymentStatus {
				settled, err := repo.Payment.FindSuccessByBookingID(ctx, booking.ID)
				if err != nil {
					return err
				}
				settledBy = "unknown"
				if settled != nil {
					settledBy = settled.Reference
				}
			}
		}

		payment := &entity.Payment{
			Base: entity.Base{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			BookingID:   bookingID,
			PatientID:   meta.Patient(),
			Reference:   reference,
			Amount:      gateway.FromKobo(data.Amount),
			Method:      paymentMethodFromChannel(data.Channel),
			Category:    meta.Category(),
			Status:      status,
			InitiatedAt: now,
		}
		if existing != nil {
			payment.ID = existing.ID
			payment.CreatedAt = existing.CreatedAt
			payment.InitiatedAt = existing.InitiatedAt
		}

		if err := repo.Payment.Upsert(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicateReference) {
				return errDuplicate
			}
			return err
		}

		if status == entity.PaymentStatusSuccess && bookingID != nil && settledBy == "" {
			if err := repo.Booking.SetPaymentStatus(ctx, *bookingID, true); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errDuplicate):
		r.log.Info("Duplicate charge delivery", zap.String("reference", reference))
		return OutcomeDuplicate, nil
	case errors.Is(err, errStale):
		r.log.Info("Ignored charge event behind recorded state",
			zap.String("reference", reference),
			zap.String("status", string(status)),
		)
		return OutcomeIgnored, nil
	case errors.Is(err, errMismatch):
		r.log.Warn("Ignored charge for unknown booking or foreign patient",
			zap.String("reference", reference),
			zap.String("patient_id", meta.Patient().String()),
		)
		return OutcomeIgnored, nil
	case err != nil:
		r.log.Error("Failed to apply charge",
			zap.Error(err),
			zap.String("reference", reference),
			zap.String("status", string(status)),
		)
		return "", fmt.Errorf("apply %s charge %s: %w", status, reference, err)
	}

	if settledBy != "" {
		r.log.Warn("Overpayment recorded for refund",
			zap.String("reference", reference),
			zap.String("settled_by", settledBy),
			zap.String("booking_id", bookingID.String()),
			zap.String("amount", gateway.FromKobo(data.Amount).String()),
		)
		r.notifier.Dispatch(Notification{
			RecipientID: meta.Patient(),
			Title:       "Duplicate payment received",
			Message:     "This consultation was already paid. The extra charge will be refunded.",
			Severity:    SeverityWarning,
			Category:    "payment",
		})
		return OutcomeApplied, nil
	}

	r.log.Info("Charge applied",
		zap.String("reference", reference),
		zap.String("status", string(status)),
		zap.String("category", string(meta.Category())),
	)

	if meta.Category() != entity.PaymentCategoryBookings {
		r.forwardOrder(ctx, meta, reference, status)
	}
	r.notifier.Dispatch(chargeNotification(meta, status))

	return OutcomeApplied, nil
}

func (r *reconciler) applyRefund(ctx context.Context, data WebhookData) (Outcome, error) {
	reference := data.ChargeReference()
	meta, err := DecodeMetadata(data.Metadata)
	if reference == "" || err != nil {
		r.log.Info("Acknowledged refund without reference or patient",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return OutcomeIgnored, nil
	}

	updated, err := r.repo.Payment.UpdateStatusByReferenceAndPatient(ctx, reference, meta.Patient(), entity.PaymentStatusRefunded)
	if err != nil {
		return "", fmt.Errorf("apply refund %s: %w", reference, err)
	}
	if !updated {
		r.log.Info("Refund for unknown payment", zap.String("reference", reference))
		return OutcomeIgnored, nil
	}

	r.notifier.Dispatch(Notification{
		RecipientID: meta.Patient(),
		Title:       "Refund processed",
		Message:     "Your refund has been processed.",
		Severity:    SeverityInfo,
		Category:    "payment",
	})

	return OutcomeApplied, nil
}

// forwardOrder hands medication and test-booking payments to the order services.
func (r *reconciler) forwardOrder(ctx context.Context, meta PaymentMetadata, reference string, status entity.PaymentStatus) {
	if r.orders == nil {
		return
	}
	key := fmt.Sprintf("payment.%s.%s", meta.Category(), status)
	msg := map[string]any{
		"reference": reference,
		"status":    status,
		"metadata":  meta,
	}
	if err := r.orders.PublishJSON(ctx, key, msg); err != nil {
		r.log.Error("Failed to forward payment to order service",
			zap.Error(err),
			zap.String("routing_key", key),
			zap.String("reference", reference),
		)
	}
}

func chargeNotification(meta PaymentMetadata, status entity.PaymentStatus) Notification {
	n := Notification{
		RecipientID: meta.Patient(),
		Category:    "payment",
	}
	switch status {
	case entity.PaymentStatusSuccess:
		n.Title = "Payment received"
		n.Message = fmt.Sprintf("Your payment for %s was successful.", meta.Category())
		n.Severity = SeveritySuccess
	case entity.PaymentStatusFailed:
		n.Title = "Payment failed"
		n.Message = fmt.Sprintf("Your payment for %s failed. Please try again.", meta.Category())
		n.Severity = SeverityError
	default:
		n.Title = "Payment pending"
		n.Message = fmt.Sprintf("Your payment for %s is being processed.", meta.Category())
		n.Severity = SeverityInfo
	}
	return n
}
