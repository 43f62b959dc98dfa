package terms

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-pay/internal/invoices"
	"github.com/meridian-erp/meridian-pay/internal/shared"
)

const cacheKeyPrefix = "terms:"

// Service resolves early-payment discounts for invoices.
type Service struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewService builds a terms Service. The cache client may be nil.
func NewService(repo Repository, cache *redis.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// CheckDiscount evaluates the invoice's payment term against a candidate
// payment date. Invoices without a term, or paid outside the discount window,
// yield a zero Discount.
func (s *Service) CheckDiscount(ctx context.Context, inv invoices.Invoice, paymentDate time.Time) (Discount, error) {
	if inv.PaymentTermID == nil {
		return Discount{}, nil
	}
	term, err := s.getTerm(ctx, *inv.PaymentTermID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Discount{}, nil
		}
		return Discount{}, err
	}
	if !term.Applies(inv.InvoiceDate, paymentDate) {
		return Discount{}, nil
	}
	return Discount{
		Amount:            Round(inv.AmountResidual * term.DiscountPercent / 100),
		WriteoffAccountID: term.WriteoffAccountID,
		EligibleAmount:    inv.AmountResidual,
	}, nil
}

// getTerm loads a term through the cache, collapsing concurrent lookups for
// the same ID into a single repository call.
func (s *Service) getTerm(ctx context.Context, id int64) (PaymentTerm, error) {
	key := cacheKeyPrefix + strconv.FormatInt(id, 10)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var term PaymentTerm
			if err := json.Unmarshal(data, &term); err == nil {
				return term, nil
			}
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		term, err := s.repo.Get(ctx, id)
		if err != nil {
			return PaymentTerm{}, err
		}
		if s.cache != nil {
			if data, err := json.Marshal(term); err == nil {
				_ = s.cache.Set(ctx, key, data, s.cacheTTL).Err()
			}
		}
		return term, nil
	})
	if err != nil {
		return PaymentTerm{}, err
	}
	return v.(PaymentTerm), nil
}

// Round rounds a monetary amount to two decimal places.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
