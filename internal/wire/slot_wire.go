package wire

import (
	"telehealth-core/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireSlot(r chi.Router, slotHandler *adaptor.SlotHandler) {
	// GET /api/consultants/{id}/slots?date=YYYY-MM-DD - public availability
	r.Get("/api/consultants/{id}/slots", slotHandler.GetAvailableSlots)
}
