package wire

import (
	"telehealth-core/internal/adaptor"
	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"
	"telehealth-core/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.Route("/api/payments", func(r chi.Router) {
		// Gateway callback; authenticated by signature, not session
		r.Post("/webhook", paymentHandler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthSession(repo, log))
			r.Get("/verify/{reference}", paymentHandler.VerifyPayment)

			r.With(middleware.RequireRole(log, entity.RolePatient)).
				Post("/initialize", paymentHandler.InitializePayment)
		})
	})
}
