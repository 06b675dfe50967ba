package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"telehealth-core/internal/data/entity"
	"telehealth-core/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AccountRepository reads the user directory. Accounts are written by the account service.
type AccountRepository interface {
	FindUser(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindConsultant(ctx context.Context, userID uuid.UUID) (*entity.Consultant, error)
}

type accountRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewAccountRepository(db database.Querier, log *zap.Logger) AccountRepository {
	return &accountRepository{
		db:  db,
		log: log.With(zap.String("repository", "account")),
	}
}

// FindUser retrieves an active user by ID
func (r *accountRepository) FindUser(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	query := `
		SELECT id, full_name, email, role, is_active, created_at, updated_at
		FROM users
		WHERE id = $1 AND is_active = TRUE
	`

	var user entity.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find user by ID",
			zap.Error(err),
			zap.String("user_id", id.String()),
		)
		return nil, fmt.Errorf("find user by ID %s: %w", id.String(), err)
	}

	return &user, nil
}

// FindConsultant joins the consultant profile onto its user row.
func (r *accountRepository) FindConsultant(ctx context.Context, userID uuid.UUID) (*entity.Consultant, error) {
	query := `
		SELECT u.id, u.full_name, u.email, cp.is_approved, cp.working_hours, cp.consultation_fee
		FROM users u
		JOIN consultant_profiles cp ON cp.user_id = u.id
		WHERE u.id = $1 AND u.role = 'consultant'
	`

	var (
		consultant entity.Consultant
		hours      []byte
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&consultant.UserID,
		&consultant.FullName,
		&consultant.Email,
		&consultant.IsApproved,
		&hours,
		&consultant.ConsultationFee,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find consultant",
			zap.Error(err),
			zap.String("consultant_id", userID.String()),
		)
		return nil, fmt.Errorf("find consultant %s: %w", userID.String(), err)
	}

	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &consultant.WorkingHours); err != nil {
			r.log.Warn("Invalid working hours document",
				zap.Error(err),
				zap.String("consultant_id", userID.String()),
			)
			consultant.WorkingHours = nil
		}
	}

	return &consultant, nil
}
