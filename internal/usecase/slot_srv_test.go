package usecase

import (
	"context"
	"testing"
	"time"

	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/dto/request"
	"telehealth-core/internal/dto/response"
	"telehealth-core/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSlotCache(t *testing.T) *cache.SlotCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewSlotCache(rdb, time.Minute)
}

func hoursOf(slots []response.SlotResponse) []int {
	out := make([]int, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Hour)
	}
	return out
}

func TestGetAvailableSlots_BookingMovesHourToBooked(t *testing.T) {
	db := newMemDB()
	slotCache := newSlotCache(t)
	consultant := db.addConsultant(entity.WorkingHours{"Wednesday": "10am-5pm"})
	patient := db.addPatient()

	slots := NewSlotService(db.repository(), slotCache, nil, zap.NewNop())
	bookings := NewBookingService(db.repository(), &memTx{db: db}, slotCache, nil, nil, fixedClock(testNow), zap.NewNop())

	before, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, "Wednesday", before.Weekday)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16}, hoursOf(before.AvailableSlots))
	assert.Empty(t, before.BookedSlots)
	assert.Equal(t, "10:00 AM", before.AvailableSlots[0].Display)
	assert.Equal(t, "10:00:00", before.AvailableSlots[0].Value)

	_, err = bookings.CreateBooking(context.Background(), patient, &request.CreateBookingRequest{
		ConsultantID: consultant.String(),
		Date:         "2025-03-12T12:30:00Z",
		Symptoms:     "headache",
	})
	require.NoError(t, err)

	after, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 13, 14, 15, 16}, hoursOf(after.AvailableSlots))
	assert.Equal(t, []int{12}, hoursOf(after.BookedSlots))
}

func TestGetAvailableSlots_CachedUntilInvalidated(t *testing.T) {
	db := newMemDB()
	slotCache := newSlotCache(t)
	consultant := db.addConsultant(entity.WorkingHours{"Wednesday": "10am-5pm"})
	slots := NewSlotService(db.repository(), slotCache, nil, zap.NewNop())

	_, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-12")
	require.NoError(t, err)

	// A row written behind the service's back stays hidden until the version moves.
	db.putBooking(entity.Booking{
		Base:            entity.Base{ID: uuid.New()},
		ConsultantID:    consultant,
		PatientID:       uuid.New(),
		AppointmentDate: time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC),
		DurationHours:   1,
		Status:          entity.BookingStatusUpcoming,
	})

	cached, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-12")
	require.NoError(t, err)
	assert.Empty(t, cached.BookedSlots)

	require.NoError(t, slotCache.Invalidate(context.Background(), consultant.String(), "2025-03-12"))

	fresh, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, []int{15}, hoursOf(fresh.BookedSlots))
}

func TestGetAvailableSlots_OvernightShift(t *testing.T) {
	db := newMemDB()
	consultant := db.addConsultant(entity.WorkingHours{"friday": "10pm - 4am"})
	slots := NewSlotService(db.repository(), nil, nil, zap.NewNop())

	resp, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 23, 0, 1, 2, 3}, hoursOf(resp.AvailableSlots))
	assert.Equal(t, "12:00 AM", resp.AvailableSlots[2].Display)
}

func TestGetAvailableSlots_DayOff(t *testing.T) {
	db := newMemDB()
	consultant := db.addConsultant(entity.WorkingHours{"Wednesday": "10am-5pm"})
	slots := NewSlotService(db.repository(), nil, nil, zap.NewNop())

	resp, err := slots.GetAvailableSlots(context.Background(), consultant.String(), "2025-03-13")
	require.NoError(t, err)
	assert.Equal(t, "Thursday", resp.Weekday)
	assert.Empty(t, resp.AvailableSlots)
	assert.Empty(t, resp.BookedSlots)
	assert.Contains(t, resp.Message, "Thursday")
}

func TestGetAvailableSlots_Errors(t *testing.T) {
	db := newMemDB()
	noHours := db.addConsultant(nil)
	slots := NewSlotService(db.repository(), nil, nil, zap.NewNop())

	_, err := slots.GetAvailableSlots(context.Background(), uuid.NewString(), "2025-03-12")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = slots.GetAvailableSlots(context.Background(), noHours.String(), "2025-03-12")
	assert.ErrorIs(t, err, ErrNotFound)

	var verr *ValidationError
	_, err = slots.GetAvailableSlots(context.Background(), "not-a-uuid", "2025-03-12")
	assert.ErrorAs(t, err, &verr)

	_, err = slots.GetAvailableSlots(context.Background(), noHours.String(), "12/03/2025")
	assert.ErrorAs(t, err, &verr)
}
