package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telehealth-core/internal/data/repository"
	"telehealth-core/internal/dto/response"
	"telehealth-core/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type SlotService interface {
	GetAvailableSlots(ctx context.Context, consultantID, date string) (*response.AvailableSlotsResponse, error)
}

// SlotCache is satisfied by *cache.SlotCache.
type SlotCache interface {
	Get(ctx context.Context, consultantID, date string) ([]byte, int64, bool, error)
	Set(ctx context.Context, consultantID, date string, version int64, data []byte) error
	Invalidate(ctx context.Context, consultantID, date string) error
}

type slotService struct {
	repo    *repository.Repository
	cache   SlotCache
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewSlotService(repo *repository.Repository, cache SlotCache, m *metrics.Metrics, log *zap.Logger) SlotService {
	return &slotService{
		repo:    repo,
		cache:   cache,
		metrics: m,
		log:     log.With(zap.String("service", "slot")),
	}
}

func (s *slotService) GetAvailableSlots(ctx context.Context, consultantID, date string) (*response.AvailableSlotsResponse, error) {
	consultantUUID, err := uuid.Parse(consultantID)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"consultant_id": "Must be a valid UUID"}}
	}

	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"date": "Must match layout " + dateLayout}}
	}
	key := day.Format(dateLayout)

	var version int64
	if s.cache != nil {
		data, v, hit, err := s.cache.Get(ctx, consultantUUID.String(), key)
		switch {
		case err != nil:
			s.metrics.ObserveSlotCache("error")
			s.log.Warn("Slot cache read failed", zap.Error(err))
		case hit:
			var cached response.AvailableSlotsResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				s.metrics.ObserveSlotCache("hit")
				return &cached, nil
			}
			s.metrics.ObserveSlotCache("error")
		default:
			s.metrics.ObserveSlotCache("miss")
		}
		version = v
	}

	result, err := s.compute(ctx, consultantUUID, day)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := s.cache.Set(ctx, consultantUUID.String(), key, version, data); err != nil {
				s.log.Warn("Slot cache write failed", zap.Error(err))
			}
		}
	}

	return result, nil
}

func (s *slotService) compute(ctx context.Context, consultantID uuid.UUID, day time.Time) (*response.AvailableSlotsResponse, error) {
	consultant, err := s.repo.Account.FindConsultant(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("get consultant: %w", err)
	}
	if consultant == nil {
		return nil, notFound("consultant", consultantID)
	}
	if len(consultant.WorkingHours) == 0 {
		return nil, notFound("working hours for consultant", consultantID)
	}

	weekday := day.Weekday().String()
	result := &response.AvailableSlotsResponse{
		Date:           day.Format(dateLayout),
		Weekday:        weekday,
		AvailableSlots: []response.SlotResponse{},
		BookedSlots:    []response.SlotResponse{},
	}

	hoursText, ok := consultant.WorkingHours.ForWeekday(weekday)
	if !ok {
		result.Message = fmt.Sprintf("Consultant is not available on %s", weekday)
		return result, nil
	}

	start, end := ParseHourRange(hoursText)
	if start < 0 || end < 0 {
		s.log.Warn("Unreadable working hours",
			zap.String("consultant_id", consultantID.String()),
			zap.String("weekday", weekday),
			zap.String("hours", hoursText),
		)
		result.Message = fmt.Sprintf("Working hours for %s could not be read", weekday)
		return result, nil
	}

	dayStart := day
	dayEnd := day.Add(24*time.Hour - time.Millisecond)
	bookings, err := s.repo.Booking.FindByConsultantBetween(ctx, consultantID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("get bookings for day: %w", err)
	}

	booked := make(map[int]bool, len(bookings))
	for _, b := range bookings {
		booked[b.AppointmentDate.UTC().Hour()] = true
	}

	available, taken := BuildSlots(GenerateHours(start, end), booked)
	for _, slot := range available {
		result.AvailableSlots = append(result.AvailableSlots, slotToResponse(slot))
	}
	for _, slot := range taken {
		result.BookedSlots = append(result.BookedSlots, slotToResponse(slot))
	}
	if len(result.AvailableSlots) == 0 && len(result.BookedSlots) == 0 {
		result.Message = fmt.Sprintf("No working hours on %s", weekday)
	}

	return result, nil
}

func slotToResponse(s Slot) response.SlotResponse {
	return response.SlotResponse{Hour: s.Hour, Display: s.Display, Value: s.Value}
}
