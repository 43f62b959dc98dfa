package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-pay/internal/shared"
)

// Repository defines invoice data access.
type Repository interface {
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Invoice, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a PostgreSQL invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const invoiceColumns = `id, number, partner_id, commercial_partner_id, move_type, state,
	payment_mode_id, currency, amount_residual, payment_term_id, invoice_date, created_at, updated_at`

func (r *pgRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("invoices: %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgRepository) GetByIDs(ctx context.Context, ids []int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]Invoice, len(ids))
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		byID[inv.ID] = inv
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's ordering.
	out := make([]Invoice, 0, len(ids))
	for _, id := range ids {
		inv, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("invoices: %d: %w", id, shared.ErrNotFound)
		}
		out = append(out, inv)
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var termID pgtype.Int8
	var invoiceDate pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.PartnerID, &inv.CommercialPartnerID,
		&inv.MoveType, &inv.State, &inv.PaymentModeID, &inv.Currency,
		&inv.AmountResidual, &termID, &invoiceDate, &createdAt, &updatedAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	if termID.Valid {
		v := termID.Int64
		inv.PaymentTermID = &v
	}
	inv.InvoiceDate = invoiceDate.Time
	inv.CreatedAt = createdAt.Time
	inv.UpdatedAt = updatedAt.Time
	return inv, nil
}
