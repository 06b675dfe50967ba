package request

type CreateBookingRequest struct {
	ConsultantID string `json:"consultant_id" validate:"required,uuid"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Duration     *int   `json:"duration,omitempty" validate:"omitempty,gte=1,lte=8"`
	Symptoms     string `json:"symptoms" validate:"required,max=2000"`
}

type CompleteBookingRequest struct {
	Notes string `json:"notes" validate:"max=5000"`
}

type ConfirmBookingRequest struct {
	Confirmed     *bool  `json:"confirmed" validate:"required"`
	DisputeReason string `json:"dispute_reason,omitempty" validate:"max=2000"`
}

type ListBookingsRequest struct {
	PaginatedRequest
	Status string `json:"status" validate:"omitempty,oneof=upcoming in_progress pending_confirmation completed disputed no_show"`
}
