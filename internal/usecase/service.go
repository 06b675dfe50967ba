package usecase

import (
	"time"

	"telehealth-core/internal/data/repository"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/metrics"
	"telehealth-core/pkg/utils"

	"go.uber.org/zap"
)

// Deps are the collaborators shared by the services.
type Deps struct {
	Repo      *repository.Repository
	Tx        repository.Transactor
	Gateway   gateway.Client
	SlotCache SlotCache
	Notifier  *NotificationDispatcher
	Orders    Publisher
	Metrics   *metrics.Metrics
	Config    *utils.Config
	Now       func() time.Time
}

type Service struct {
	Slot       SlotService
	Booking    BookingService
	Payment    PaymentService
	Reconciler Reconciler
	Sweeper    *Sweeper
}

func NewService(deps Deps, log *zap.Logger) *Service {
	booking := NewBookingService(deps.Repo, deps.Tx, deps.SlotCache, deps.Notifier, deps.Metrics, deps.Now, log)

	return &Service{
		Slot:       NewSlotService(deps.Repo, deps.SlotCache, deps.Metrics, log),
		Booking:    booking,
		Payment:    NewPaymentService(deps.Repo, deps.Gateway, deps.Config.Paystack.CallbackURL, log),
		Reconciler: NewReconciler(deps.Repo, deps.Tx, deps.Gateway, deps.Orders, deps.Notifier, deps.Metrics, deps.Now, log),
		Sweeper:    NewSweeper(deps.Repo, booking, deps.Metrics, deps.Config.Sweeper.Interval, deps.Now, log),
	}
}
