package usecase

import (
	"context"
	"testing"
	"time"

	"telehealth-core/internal/data/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pendingConfirmation(db *memDB, completedAt time.Time) uuid.UUID {
	id := uuid.New()
	db.putBooking(entity.Booking{
		Base:                  entity.Base{ID: id},
		ConsultantID:          uuid.New(),
		PatientID:             uuid.New(),
		AppointmentDate:       completedAt.Add(-time.Hour),
		DurationHours:         1,
		Status:                entity.BookingStatusPendingConfirmation,
		ConsultantConfirmed:   true,
		ConsultantCompletedAt: &completedAt,
	})
	return id
}

func newTestSweeper(db *memDB, now time.Time) *Sweeper {
	clock := fixedClock(now)
	bookings := NewBookingService(db.repository(), &memTx{db: db}, nil, nil, nil, clock, zap.NewNop())
	return NewSweeper(db.repository(), bookings, nil, time.Hour, clock, zap.NewNop())
}

func TestSweeper_CompletesOnlyPastWindow(t *testing.T) {
	db := newMemDB()
	stale := pendingConfirmation(db, testNow.Add(-24*time.Hour-time.Second))
	fresh := pendingConfirmation(db, testNow.Add(-23*time.Hour-59*time.Minute))
	boundary := pendingConfirmation(db, testNow.Add(-24*time.Hour))

	n, err := newTestSweeper(db, testNow).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done := db.booking(stale)
	assert.Equal(t, entity.BookingStatusCompleted, done.Status)
	assert.True(t, done.PatientConfirmed)
	require.NotNil(t, done.PatientCompletedAt)
	assert.Equal(t, testNow, *done.PatientCompletedAt)

	assert.Equal(t, entity.BookingStatusPendingConfirmation, db.booking(fresh).Status)
	assert.Equal(t, entity.BookingStatusPendingConfirmation, db.booking(boundary).Status)
}

func TestSweeper_LeavesConfirmedAndDisputedAlone(t *testing.T) {
	db := newMemDB()
	old := testNow.Add(-48 * time.Hour)

	confirmed := pendingConfirmation(db, old)
	b := db.booking(confirmed)
	b.PatientConfirmed = true
	db.putBooking(b)

	disputed := pendingConfirmation(db, old)
	b = db.booking(disputed)
	b.Status = entity.BookingStatusDisputed
	db.putBooking(b)

	n, err := newTestSweeper(db, testNow).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, entity.BookingStatusDisputed, db.booking(disputed).Status)
}

func TestSweeper_DrainsMoreThanOneBatch(t *testing.T) {
	db := newMemDB()
	const total = sweepBatchSize + 37
	for i := 0; i < total; i++ {
		pendingConfirmation(db, testNow.Add(-30*time.Hour))
	}

	n, err := newTestSweeper(db, testNow).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, n)

	again, err := newTestSweeper(db, testNow).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSweeper_StartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	db := newMemDB()
	id := pendingConfirmation(db, testNow.Add(-25*time.Hour))
	w := newTestSweeper(db, testNow)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		return db.booking(id).Status == entity.BookingStatusCompleted
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
