package adaptor

import (
	"errors"
	"net/http"

	"telehealth-core/internal/usecase"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Slot    *SlotHandler
	Booking *BookingHandler
	Payment *PaymentHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Slot:    NewSlotHandler(service.Slot, log),
		Booking: NewBookingHandler(service.Booking, log),
		Payment: NewPaymentHandler(service.Payment, service.Reconciler, log),
	}
}

// handleServiceError maps usecase errors to the response envelope.
func handleServiceError(log *zap.Logger, w http.ResponseWriter, err error, operation string) {
	var (
		validationErr *usecase.ValidationError
		stateErr      *usecase.StateError
		apiErr        *gateway.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		log.Warn(operation+" validation failed", zap.Error(err))
		utils.ResponseBadRequest(w, "Validation failed", validationErr.Fields)

	case errors.Is(err, usecase.ErrNotFound):
		log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.As(err, &stateErr):
		log.Warn(operation+" failed - invalid state", zap.Error(err))
		utils.ResponseBadRequest(w, err.Error(), map[string]string{
			"current_status":  string(stateErr.Current),
			"expected_status": string(stateErr.Expected),
		})

	case errors.Is(err, usecase.ErrForbidden):
		log.Warn(operation+" failed - forbidden", zap.Error(err))
		utils.ResponseForbidden(w, err.Error())

	case errors.Is(err, usecase.ErrSlotTaken), errors.Is(err, usecase.ErrAlreadyPaid):
		log.Info(operation+" failed - conflict", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrPastDate),
		errors.Is(err, usecase.ErrConsultantNotApproved),
		errors.Is(err, usecase.ErrInvalidSignature):
		log.Warn(operation+" rejected", zap.Error(err))
		utils.ResponseBadRequest(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrUpstream):
		log.Error(operation+" failed - payment gateway unavailable", zap.Error(err))
		utils.ResponseBadGateway(w, "Payment provider is unavailable, please retry")

	case errors.As(err, &apiErr):
		log.Warn(operation+" failed - payment gateway rejected request", zap.Error(err))
		utils.ResponseBadGateway(w, apiErr.Message)

	default:
		log.Error("Failed to "+operation, zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
