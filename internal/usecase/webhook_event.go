package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"telehealth-core/internal/data/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventChargePending   = "charge.pending"
	EventRefundProcessed = "refund.processed"
	eventTransferPrefix  = "transfer."
)

var errUnknownCategory = errors.New("unknown payment category")

// WebhookEvent is the gateway callback body.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	Reference            string          `json:"reference"`
	TransactionReference string          `json:"transaction_reference"`
	Amount               int64           `json:"amount"`
	Channel              string          `json:"channel"`
	Status               string          `json:"status"`
	PaidAt               *time.Time      `json:"paid_at"`
	Metadata             json.RawMessage `json:"metadata"`
}

// ChargeReference is the reference of the charge the event is about.
// Refund events carry it as transaction_reference.
func (d WebhookData) ChargeReference() string {
	if d.TransactionReference != "" {
		return d.TransactionReference
	}
	return d.Reference
}

// PaymentMetadata is the charge metadata, one variant per PaymentCategory.
type PaymentMetadata interface {
	Category() entity.PaymentCategory
	Patient() uuid.UUID
}

type BookingPaymentMetadata struct {
	PaymentFor   entity.PaymentCategory `json:"payment_for"`
	BookingID    uuid.UUID              `json:"booking_id"`
	PatientID    uuid.UUID              `json:"patient_id"`
	ConsultantID uuid.UUID              `json:"consultant_id"`
	Amount       decimal.Decimal        `json:"amount"`
}

func (m BookingPaymentMetadata) Category() entity.PaymentCategory {
	return entity.PaymentCategoryBookings
}
func (m BookingPaymentMetadata) Patient() uuid.UUID { return m.PatientID }

type MedicationPaymentMetadata struct {
	PaymentFor entity.PaymentCategory `json:"payment_for"`
	OrderID    uuid.UUID              `json:"order_id"`
	PatientID  uuid.UUID              `json:"patient_id"`
	Amount     decimal.Decimal        `json:"amount"`
}

func (m MedicationPaymentMetadata) Category() entity.PaymentCategory {
	return entity.PaymentCategoryMedications
}
func (m MedicationPaymentMetadata) Patient() uuid.UUID { return m.PatientID }

type TestBookingPaymentMetadata struct {
	PaymentFor    entity.PaymentCategory `json:"payment_for"`
	TestBookingID uuid.UUID              `json:"test_booking_id"`
	PatientID     uuid.UUID              `json:"patient_id"`
	Amount        decimal.Decimal        `json:"amount"`
}

func (m TestBookingPaymentMetadata) Category() entity.PaymentCategory {
	return entity.PaymentCategoryTestBookings
}
func (m TestBookingPaymentMetadata) Patient() uuid.UUID { return m.PatientID }

// DecodeMetadata picks the variant from the payment_for discriminator.
// The gateway sometimes delivers metadata as a JSON-encoded string; both forms are accepted.
func DecodeMetadata(raw json.RawMessage) (PaymentMetadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode metadata string: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errUnknownCategory
	}

	var head struct {
		PaymentFor string `json:"payment_for"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	category := entity.PaymentCategory(strings.ToLower(strings.TrimSpace(head.PaymentFor)))
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", errUnknownCategory, head.PaymentFor)
	}

	switch category {
	case entity.PaymentCategoryBookings:
		var m BookingPaymentMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode booking metadata: %w", err)
		}
		if m.BookingID == uuid.Nil || m.PatientID == uuid.Nil {
			return nil, errors.New("booking metadata missing booking_id or patient_id")
		}
		return m, nil
	case entity.PaymentCategoryMedications:
		var m MedicationPaymentMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode medication metadata: %w", err)
		}
		if m.PatientID == uuid.Nil {
			return nil, errors.New("medication metadata missing patient_id")
		}
		return m, nil
	case entity.PaymentCategoryTestBookings:
		var m TestBookingPaymentMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode test booking metadata: %w", err)
		}
		if m.PatientID == uuid.Nil {
			return nil, errors.New("test booking metadata missing patient_id")
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %q", errUnknownCategory, head.PaymentFor)
}

func paymentMethodFromChannel(channel string) entity.PaymentMethod {
	switch strings.ToLower(channel) {
	case "bank", "bank_transfer", "transfer", "dedicated_nuban":
		return entity.PaymentMethodTransfer
	}
	return entity.PaymentMethodCard
}
