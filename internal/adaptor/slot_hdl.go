package adaptor

import (
	"net/http"
	"time"

	"telehealth-core/internal/usecase"
	"telehealth-core/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SlotHandler struct {
	service usecase.SlotService
	log     *zap.Logger
}

func NewSlotHandler(service usecase.SlotService, log *zap.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		log:     log.With(zap.String("handler", "slot")),
	}
}

// GetAvailableSlots handles GET /api/consultants/{id}/slots?date=YYYY-MM-DD (public).
// date defaults to today in UTC.
func (h *SlotHandler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	consultantID := chi.URLParam(r, "id")
	if consultantID == "" {
		utils.ResponseBadRequest(w, "Consultant ID is required", nil)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), consultantID, date)
	if err != nil {
		handleServiceError(h.log, w, err, "get available slots")
		return
	}

	utils.ResponseSuccess(w, "success", slots)
}
