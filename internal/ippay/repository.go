package ippay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-pay/internal/platform/httpx"
)

type pgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*pgRepository)(nil)

// NewRepository builds a Postgres-backed token repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const acquirerColumns = `id, provider, name, api_url, terminal_id, save_token, active, created_at`

func (r *pgRepository) GetAcquirer(ctx context.Context, id int64) (Acquirer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+acquirerColumns+` FROM payment_acquirers WHERE id = $1`, id)
	var a Acquirer
	err := row.Scan(&a.ID, &a.Provider, &a.Name, &a.APIURL, &a.TerminalID, &a.SaveToken, &a.Active, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Acquirer{}, fmt.Errorf("%w: id %d", ErrAcquirerNotFound, id)
	}
	if err != nil {
		return Acquirer{}, fmt.Errorf("ippay: get acquirer: %w", err)
	}
	return a, nil
}

const tokenColumns = `id, partner_id, acquirer_id, name, acquirer_ref, save_token, expiry_date, fingerprint, active, created_at`

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.PartnerID, &t.AcquirerID, &t.Name, &t.AcquirerRef,
		&t.SaveToken, &t.ExpiryDate, &t.Fingerprint, &t.Active, &t.CreatedAt)
	return t, err
}

func (r *pgRepository) GetToken(ctx context.Context, id int64) (Token, error) {
	t, err := scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM payment_tokens WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, fmt.Errorf("%w: id %d", ErrTokenNotFound, id)
	}
	if err != nil {
		return Token{}, fmt.Errorf("ippay: get token: %w", err)
	}
	return t, nil
}

func (r *pgRepository) FindTokenByRef(ctx context.Context, partnerID, acquirerID int64, acquirerRef string) (Token, error) {
	t, err := scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM payment_tokens
		 WHERE partner_id = $1 AND acquirer_id = $2 AND acquirer_ref = $3
		 LIMIT 1`, partnerID, acquirerID, acquirerRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("ippay: find token by ref: %w", err)
	}
	return t, nil
}

func (r *pgRepository) HasTokenWithSuffix(ctx context.Context, partnerID, acquirerID int64, lastFour string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM payment_tokens
		   WHERE partner_id = $1 AND acquirer_id = $2 AND active
		     AND split_part(name, ' - ', 1) LIKE '%' || $3
		 )`, partnerID, acquirerID, lastFour).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ippay: token suffix lookup: %w", err)
	}
	return exists, nil
}

func (r *pgRepository) CreateToken(ctx context.Context, t Token) (Token, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO payment_tokens
		   (partner_id, acquirer_id, name, acquirer_ref, save_token, expiry_date, fingerprint, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		t.PartnerID, t.AcquirerID, t.Name, t.AcquirerRef, t.SaveToken, t.ExpiryDate, t.Fingerprint, t.Active)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Token{}, fmt.Errorf("%w: %v", httpx.ErrDuplicate, ErrDuplicateCard)
		}
		return Token{}, fmt.Errorf("ippay: create token: %w", err)
	}
	return t, nil
}

func (r *pgRepository) ListTokensByPartner(ctx context.Context, partnerID int64) ([]Token, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM payment_tokens
		 WHERE partner_id = $1 AND active
		 ORDER BY created_at DESC`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("ippay: list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("ippay: scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *pgRepository) DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_tokens SET active = false
		 WHERE active AND expiry_date < $1`, asOf)
	if err != nil {
		return 0, fmt.Errorf("ippay: deactivate expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
