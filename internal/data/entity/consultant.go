package entity

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WorkingHours maps a weekday name to an hour range such as "10am-5pm".
type WorkingHours map[string]string

// ForWeekday looks the weekday up case-insensitively.
func (w WorkingHours) ForWeekday(day string) (string, bool) {
	for k, v := range w {
		if strings.EqualFold(strings.TrimSpace(k), day) {
			v = strings.TrimSpace(v)
			return v, v != ""
		}
	}
	return "", false
}

// Consultant is the slice of the consultant profile this service reads.
type Consultant struct {
	UserID          uuid.UUID       `db:"user_id"`
	FullName        string          `db:"full_name"`
	Email           string          `db:"email"`
	IsApproved      bool            `db:"is_approved"`
	WorkingHours    WorkingHours    `db:"working_hours"`
	ConsultationFee decimal.Decimal `db:"consultation_fee"`
}
