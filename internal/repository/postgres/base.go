package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BaseRepository provides common functionality for all repositories.
// db is either the pool or an open transaction.
type BaseRepository struct {
	db sqlx.ExtContext
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db sqlx.ExtContext) BaseRepository {
	return BaseRepository{db: db}
}

// inTx runs fn in a transaction, reusing the current one when the
// repository is already bound to a transaction.
func (r *BaseRepository) inTx(ctx context.Context, fn func(sqlx.ExtContext) error) error {
	pool, ok := r.db.(*sqlx.DB)
	if !ok {
		return fn(r.db)
	}
	return withTx(ctx, pool, func(tx *sqlx.Tx) error { return fn(tx) })
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// affected turns a zero-row write into ErrNotFound.
func affected(res interface{ RowsAffected() (int64, error) }, what string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(what)
	}
	return nil
}
