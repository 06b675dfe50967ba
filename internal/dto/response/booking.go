package response

import (
	"time"

	"telehealth-core/internal/data/entity"
)

type BookingResponse struct {
	ID                     string               `json:"id"`
	ConsultantID           string               `json:"consultant_id"`
	PatientID              string               `json:"patient_id"`
	AppointmentDate        time.Time            `json:"appointment_date"`
	Duration               int                  `json:"duration"`
	Symptoms               string               `json:"symptoms"`
	Status                 entity.BookingStatus `json:"status"`
	PaymentStatus          bool                 `json:"payment_status"`
	ActualStart            *time.Time           `json:"actual_start,omitempty"`
	ActualEnd              *time.Time           `json:"actual_end,omitempty"`
	ConsultantCompletedAt  *time.Time           `json:"consultant_completed_at,omitempty"`
	PatientCompletedAt     *time.Time           `json:"patient_completed_at,omitempty"`
	ConsultantConfirmed    bool                 `json:"consultant_confirmed"`
	PatientConfirmed       bool                 `json:"patient_confirmed"`
	ConsultantMarkedNoShow bool                 `json:"consultant_marked_no_show"`
	PatientMarkedNoShow    bool                 `json:"patient_marked_no_show"`
	DisputeReason          *string              `json:"dispute_reason,omitempty"`
	ConsultationNotes      string               `json:"consultation_notes,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:                     b.ID.String(),
		ConsultantID:           b.ConsultantID.String(),
		PatientID:              b.PatientID.String(),
		AppointmentDate:        b.AppointmentDate,
		Duration:               b.DurationHours,
		Symptoms:               b.Symptoms,
		Status:                 b.Status,
		PaymentStatus:          b.PaymentStatus,
		ActualStart:            b.ActualStart,
		ActualEnd:              b.ActualEnd,
		ConsultantCompletedAt:  b.ConsultantCompletedAt,
		PatientCompletedAt:     b.PatientCompletedAt,
		ConsultantConfirmed:    b.ConsultantConfirmed,
		PatientConfirmed:       b.PatientConfirmed,
		ConsultantMarkedNoShow: b.ConsultantMarkedNoShow,
		PatientMarkedNoShow:    b.PatientMarkedNoShow,
		DisputeReason:          b.DisputeReason,
		ConsultationNotes:      b.ConsultationNotes,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
}
