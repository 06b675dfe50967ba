package wire

import (
	"telehealth-core/internal/adaptor"
	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"
	"telehealth-core/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Use(middleware.AuthSession(repo, log))

		// Either participant
		r.Get("/", bookingHandler.ListBookings)
		r.Get("/{id}", bookingHandler.GetBooking)

		// Patient
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(log, entity.RolePatient))
			r.Post("/", bookingHandler.CreateBooking)
			r.Post("/{id}/confirm", bookingHandler.ConfirmBooking)
		})

		// Consultant
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(log, entity.RoleConsultant))
			r.Post("/{id}/start", bookingHandler.StartBooking)
			r.Post("/{id}/complete", bookingHandler.CompleteBooking)
			r.Post("/{id}/no-show", bookingHandler.MarkNoShow)
		})
	})
}
