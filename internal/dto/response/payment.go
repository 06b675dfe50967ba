package response

import (
	"time"

	"github.com/shopspring/decimal"
)

type InitializePaymentResponse struct {
	BookingID        string          `json:"booking_id"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
}

type VerifyPaymentResponse struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}
