package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"telehealth-core/internal/dto/request"
	"telehealth-core/internal/usecase"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the body read before the signature is checked.
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	service    usecase.PaymentService
	reconciler usecase.Reconciler
	log        *zap.Logger
}

func NewPaymentHandler(service usecase.PaymentService, reconciler usecase.Reconciler, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:    service,
		reconciler: reconciler,
		log:        log.With(zap.String("handler", "payment")),
	}
}

// InitializePayment handles POST /api/payments/initialize (patient)
func (h *PaymentHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	payment, err := h.service.InitializePayment(r.Context(), userID, &req)
	if err != nil {
		handleServiceError(h.log, w, err, "initialize payment")
		return
	}

	utils.ResponseSuccess(w, "Payment initialized", payment)
}

// VerifyPayment handles GET /api/payments/verify/{reference}
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		handleServiceError(h.log, w, err, "verify payment")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Webhook handles POST /api/payments/webhook. The gateway only needs a 200 to stop
// retrying, so every processed delivery is acknowledged the same way.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Unable to read request body", nil)
		return
	}

	outcome, err := h.reconciler.HandleWebhook(r.Context(), payload, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSignature) {
			utils.ResponseBadRequest(w, "Invalid signature", nil)
			return
		}
		handleServiceError(h.log, w, err, "process webhook")
		return
	}

	h.log.Debug("Webhook acknowledged", zap.String("outcome", string(outcome)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"message":"success"}`))
}
