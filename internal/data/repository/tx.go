package repository

import (
	"context"
	"errors"
	"fmt"

	"telehealth-core/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Transactor runs a unit of work against repositories bound to one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo *Repository) error) error
}

type pgTransactor struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewTransactor(db database.PgxIface, log *zap.Logger) Transactor {
	return &pgTransactor{
		db:  db,
		log: log,
	}
}

// WithinTx commits when fn returns nil and rolls back on error or panic.
func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repo *Repository) error) (err error) {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		t.log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.log.Warn("Rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(ctx, NewRepository(tx, t.log)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		t.log.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
