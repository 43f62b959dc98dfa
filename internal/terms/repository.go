package terms

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-pay/internal/shared"
)

// Repository defines payment term data access.
type Repository interface {
	Get(ctx context.Context, id int64) (PaymentTerm, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a PostgreSQL payment term repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Get(ctx context.Context, id int64) (PaymentTerm, error) {
	var term PaymentTerm
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, discount_percent, discount_days, writeoff_account_id, created_at, updated_at
		FROM payment_terms WHERE id = $1`, id).Scan(
		&term.ID, &term.Name, &term.DiscountPercent, &term.DiscountDays,
		&term.WriteoffAccountID, &term.CreatedAt, &term.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentTerm{}, fmt.Errorf("terms: %d: %w", id, shared.ErrNotFound)
		}
		return PaymentTerm{}, err
	}
	return term, nil
}
