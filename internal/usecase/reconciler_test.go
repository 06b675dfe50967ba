package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/pkg/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "sk_test_secret"

type reconcilerFixture struct {
	db         *memDB
	rec        Reconciler
	orders     *recordingPublisher
	notifier   *recordingNotifier
	dispatcher *NotificationDispatcher
	booking    entity.Booking
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db := newMemDB()
	consultant := db.addConsultant(entity.WorkingHours{"Wednesday": "10am-5pm"})
	patient := db.addPatient()
	booking := entity.Booking{
		Base:            entity.Base{ID: uuid.New(), CreatedAt: testNow, UpdatedAt: testNow},
		ConsultantID:    consultant,
		PatientID:       patient,
		AppointmentDate: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
		DurationHours:   1,
		Status:          entity.BookingStatusUpcoming,
	}
	db.putBooking(booking)

	notifier := &recordingNotifier{}
	dispatcher := NewNotificationDispatcher(notifier, time.Second, zap.NewNop())
	orders := &recordingPublisher{}
	verifier := gateway.NewPaystackClient(gateway.Config{SecretKey: testSecret}, nil, zap.NewNop())

	return &reconcilerFixture{
		db:         db,
		rec:        NewReconciler(db.repository(), &memTx{db: db}, verifier, orders, dispatcher, nil, fixedClock(testNow), zap.NewNop()),
		orders:     orders,
		notifier:   notifier,
		dispatcher: dispatcher,
		booking:    booking,
	}
}

func bookingEvent(t *testing.T, event, reference string, b entity.Booking) []byte {
	t.Helper()
	meta := BookingPaymentMetadata{
		PaymentFor:   entity.PaymentCategoryBookings,
		BookingID:    b.ID,
		PatientID:    b.PatientID,
		ConsultantID: b.ConsultantID,
		Amount:       decimal.NewFromInt(5000),
	}
	return marshalEvent(t, event, reference, meta)
}

func marshalEvent(t *testing.T, event, reference string, meta any) []byte {
	t.Helper()
	rawMeta, err := json.Marshal(meta)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"amount":    500000,
			"channel":   "card",
			"status":    "success",
			"metadata":  json.RawMessage(rawMeta),
		},
	})
	require.NoError(t, err)
	return payload
}

func (f *reconcilerFixture) deliver(payload []byte) (Outcome, error) {
	return f.rec.HandleWebhook(context.Background(), payload, gateway.Sign(testSecret, payload))
}

func TestReconciler_InvalidSignatureTouchesNothing(t *testing.T) {
	f := newReconcilerFixture(t)
	payload := bookingEvent(t, EventChargeSuccess, "ref-1", f.booking)

	_, err := f.rec.HandleWebhook(context.Background(), payload, gateway.Sign("wrong", payload))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, f.db.payments)
	assert.False(t, f.db.booking(f.booking.ID).PaymentStatus)
}

func TestReconciler_ChargeSuccessFlipsBooking(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-1", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	p := f.db.payments["ref-1"]
	assert.Equal(t, entity.PaymentStatusSuccess, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, entity.PaymentMethodCard, p.Method)
	require.NotNil(t, p.BookingID)
	assert.Equal(t, f.booking.ID, *p.BookingID)
	assert.True(t, f.db.booking(f.booking.ID).PaymentStatus)

	f.dispatcher.Wait()
	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, f.booking.PatientID, sent[0].RecipientID)
	assert.Equal(t, SeveritySuccess, sent[0].Severity)
}

func TestReconciler_ReplayedSuccessAppliesOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	payload := bookingEvent(t, EventChargeSuccess, "ref-dup", f.booking)
	const deliveries = 20

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.deliver(payload)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeApplied])
	assert.Equal(t, deliveries-1, outcomes[OutcomeDuplicate])
	assert.Len(t, f.db.payments, 1)
	assert.Equal(t, 1, f.db.paymentFlips)

	f.dispatcher.Wait()
	assert.Len(t, f.notifier.all(), 1)
}

func TestReconciler_FailedAndPendingLeaveBookingUnpaid(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.deliver(bookingEvent(t, EventChargePending, "ref-2", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, entity.PaymentStatusPending, f.db.payments["ref-2"].Status)

	outcome, err = f.deliver(bookingEvent(t, EventChargeFailed, "ref-2", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, entity.PaymentStatusFailed, f.db.payments["ref-2"].Status)

	assert.False(t, f.db.booking(f.booking.ID).PaymentStatus)
	assert.Zero(t, f.db.paymentFlips)
}

func TestReconciler_LateFailureDoesNotRegressSuccess(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-3", f.booking))
	require.NoError(t, err)

	outcome, err := f.deliver(bookingEvent(t, EventChargeFailed, "ref-3", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, entity.PaymentStatusSuccess, f.db.payments["ref-3"].Status)
	assert.True(t, f.db.booking(f.booking.ID).PaymentStatus)
}

func TestReconciler_StoreFailureRollsBackBoth(t *testing.T) {
	f := newReconcilerFixture(t)
	f.db.failUpsert = errors.New("disk full")

	_, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-4", f.booking))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, f.db.payments)
	assert.False(t, f.db.booking(f.booking.ID).PaymentStatus)
	assert.Equal(t, 1, f.db.rollbacks)
}

func TestReconciler_RefundByReferenceAndPatient(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-5", f.booking))
	require.NoError(t, err)

	stranger := f.booking
	stranger.PatientID = uuid.New()
	outcome, err := f.deliver(bookingEvent(t, EventRefundProcessed, "ref-5", stranger))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, entity.PaymentStatusSuccess, f.db.payments["ref-5"].Status)

	outcome, err = f.deliver(bookingEvent(t, EventRefundProcessed, "ref-5", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, entity.PaymentStatusRefunded, f.db.payments["ref-5"].Status)
	assert.True(t, f.db.booking(f.booking.ID).PaymentStatus)
}

func TestReconciler_SecondChargeForPaidBookingKeptAsOverpayment(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-1", f.booking))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = f.deliver(bookingEvent(t, EventChargeSuccess, "ref-2", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	second, ok := f.db.payments["ref-2"]
	require.True(t, ok)
	assert.Equal(t, entity.PaymentStatusSuccess, second.Status)
	require.NotNil(t, second.BookingID)
	assert.Equal(t, f.booking.ID, *second.BookingID)
	assert.Equal(t, entity.PaymentStatusSuccess, f.db.payments["ref-1"].Status)
	assert.True(t, f.db.booking(f.booking.ID).PaymentStatus)
	assert.Equal(t, 1, f.db.paymentFlips)

	// Redelivery of the extra charge is still a duplicate.
	outcome, err = f.deliver(bookingEvent(t, EventChargeSuccess, "ref-2", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	f.dispatcher.Wait()
	sent := f.notifier.all()
	require.Len(t, sent, 2)
	titles := []string{sent[0].Title, sent[1].Title}
	assert.ElementsMatch(t, []string{"Payment received", "Duplicate payment received"}, titles)
	for _, n := range sent {
		assert.Equal(t, f.booking.PatientID, n.RecipientID)
		if n.Title == "Duplicate payment received" {
			assert.Equal(t, SeverityWarning, n.Severity)
		}
	}
}

func TestReconciler_RefundOnlyMovesSuccessfulPayment(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.deliver(bookingEvent(t, EventChargeFailed, "ref-7", f.booking))
	require.NoError(t, err)
	require.Equal(t, entity.PaymentStatusFailed, f.db.payments["ref-7"].Status)

	outcome, err := f.deliver(bookingEvent(t, EventRefundProcessed, "ref-7", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, entity.PaymentStatusFailed, f.db.payments["ref-7"].Status)
}

func TestReconciler_AcknowledgesWithoutChange(t *testing.T) {
	f := newReconcilerFixture(t)

	cases := map[string][]byte{
		"transfer":         bookingEvent(t, "transfer.success", "ref-6", f.booking),
		"unknown event":    bookingEvent(t, "subscription.create", "ref-6", f.booking),
		"unknown category": marshalEvent(t, EventChargeSuccess, "ref-6", map[string]string{"payment_for": "gift-cards"}),
		"no metadata":      marshalEvent(t, EventChargeSuccess, "ref-6", nil),
		"garbage body":     []byte(`{not json`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			outcome, err := f.deliver(payload)
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, outcome)
		})
	}
	assert.Empty(t, f.db.payments)
}

func TestReconciler_ForeignPatientCannotPayBooking(t *testing.T) {
	f := newReconcilerFixture(t)
	forged := f.booking
	forged.PatientID = uuid.New()

	outcome, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-7", forged))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, f.db.payments)
	assert.False(t, f.db.booking(f.booking.ID).PaymentStatus)
}

func TestReconciler_MedicationPaymentForwardedToOrders(t *testing.T) {
	f := newReconcilerFixture(t)
	meta := MedicationPaymentMetadata{
		PaymentFor: entity.PaymentCategoryMedications,
		OrderID:    uuid.New(),
		PatientID:  f.booking.PatientID,
		Amount:     decimal.NewFromInt(5000),
	}

	outcome, err := f.deliver(marshalEvent(t, EventChargeSuccess, "ref-med", meta))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	p := f.db.payments["ref-med"]
	assert.Nil(t, p.BookingID)
	assert.Equal(t, entity.PaymentCategoryMedications, p.Category)
	assert.Equal(t, []string{"payment.medications.success"}, f.orders.keys)
	assert.False(t, f.db.booking(f.booking.ID).PaymentStatus)
}

func TestReconciler_NotificationFailureDoesNotRollBack(t *testing.T) {
	f := newReconcilerFixture(t)
	f.notifier.fail = errors.New("broker down")

	outcome, err := f.deliver(bookingEvent(t, EventChargeSuccess, "ref-8", f.booking))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	f.dispatcher.Wait()
	assert.Equal(t, entity.PaymentStatusSuccess, f.db.payments["ref-8"].Status)
	assert.True(t, f.db.booking(f.booking.ID).PaymentStatus)
}
