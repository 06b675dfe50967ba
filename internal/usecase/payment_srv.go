package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"telehealth-core/internal/data/entity"
	"telehealth-core/internal/data/repository"
	"telehealth-core/internal/dto/request"
	"telehealth-core/internal/dto/response"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentService interface {
	InitializePayment(ctx context.Context, patientID uuid.UUID, req *request.InitializePaymentRequest) (*response.InitializePaymentResponse, error)
	VerifyPayment(ctx context.Context, callerID uuid.UUID, reference string) (*response.VerifyPaymentResponse, error)
}

type paymentService struct {
	repo        *repository.Repository
	gateway     gateway.Client
	callbackURL string
	log         *zap.Logger
}

func NewPaymentService(repo *repository.Repository, gw gateway.Client, callbackURL string, log *zap.Logger) PaymentService {
	return &paymentService{
		repo:        repo,
		gateway:     gw,
		callbackURL: callbackURL,
		log:         log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) InitializePayment(ctx context.Context, patientID uuid.UUID, req *request.InitializePaymentRequest) (*response.InitializePaymentResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	bookingID, err := parseBookingID(req.BookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, notFound("booking", bookingID)
	}
	if booking.PatientID != patientID {
		return nil, ErrForbidden
	}
	if booking.PaymentStatus {
		return nil, ErrAlreadyPaid
	}

	consultant, err := s.repo.Account.FindConsultant(ctx, booking.ConsultantID)
	if err != nil {
		return nil, fmt.Errorf("get consultant: %w", err)
	}
	if consultant == nil {
		return nil, notFound("consultant", booking.ConsultantID)
	}

	patient, err := s.repo.Account.FindUser(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if patient == nil {
		return nil, notFound("patient", patientID)
	}

	amount := consultant.ConsultationFee.Mul(decimal.NewFromInt(int64(booking.DurationHours)))
	reference := utils.GenerateReference(booking.ID.String())

	initResp, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       patient.Email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata: BookingPaymentMetadata{
			PaymentFor:   entity.PaymentCategoryBookings,
			BookingID:    booking.ID,
			PatientID:    patientID,
			ConsultantID: booking.ConsultantID,
			Amount:       amount,
		},
	})
	if err != nil {
		s.log.Error("Failed to initialize payment",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("reference", reference),
			zap.Bool("retryable", errors.Is(err, ErrUpstream)),
		)
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	s.log.Info("Payment initialized",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reference", initResp.Reference),
		zap.String("amount", amount.String()),
	)

	return &response.InitializePaymentResponse{
		BookingID:        booking.ID.String(),
		Reference:        initResp.Reference,
		AuthorizationURL: initResp.AuthorizationURL,
		AccessCode:       initResp.AccessCode,
		Amount:           amount,
	}, nil
}

// VerifyPayment asks the gateway for the charge status. A reference is only visible to the
// patient who paid it: the stored row decides when there is one, otherwise the charge metadata.
func (s *paymentService) VerifyPayment(ctx context.Context, callerID uuid.UUID, reference string) (*response.VerifyPaymentResponse, error) {
	if reference == "" {
		return nil, &ValidationError{Fields: map[string]string{"reference": "This field is required"}}
	}

	payment, err := s.repo.Payment.FindByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment != nil && payment.PatientID != callerID {
		return nil, ErrForbidden
	}

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, notFound("payment reference", reference)
		}
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	if payment == nil {
		meta, err := DecodeMetadata(result.Metadata)
		if err != nil || meta.Patient() != callerID {
			s.log.Warn("Verify denied for reference not owned by caller",
				zap.String("reference", reference),
				zap.String("caller_id", callerID.String()),
			)
			return nil, ErrForbidden
		}
	}

	return &response.VerifyPaymentResponse{
		Reference: result.Reference,
		Status:    result.Status,
		Amount:    result.Amount,
		Channel:   result.Channel,
		PaidAt:    result.PaidAt,
	}, nil
}
