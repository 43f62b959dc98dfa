package ippay

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/meridian-erp/meridian-pay/internal/observability"
)

// Gateway turns card details into an acquirer-side token reference.
type Gateway interface {
	Tokenize(ctx context.Context, acq Acquirer, card CardDetails) (string, error)
}

// Repository persists acquirers and tokens.
type Repository interface {
	GetAcquirer(ctx context.Context, id int64) (Acquirer, error)
	GetToken(ctx context.Context, id int64) (Token, error)
	FindTokenByRef(ctx context.Context, partnerID, acquirerID int64, acquirerRef string) (Token, error)
	HasTokenWithSuffix(ctx context.Context, partnerID, acquirerID int64, lastFour string) (bool, error)
	CreateToken(ctx context.Context, t Token) (Token, error)
	ListTokensByPartner(ctx context.Context, partnerID int64) ([]Token, error)
	DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// Service implements the tokenization flows.
type Service struct {
	repo    Repository
	gateway Gateway
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a Service instance. A nil metrics is allowed; attempts are
// then not counted.
func NewService(repo Repository, gateway Gateway, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, gateway: gateway, metrics: metrics, logger: logger, now: time.Now}
}

// tokenize calls the gateway and counts the attempt by outcome.
func (s *Service) tokenize(ctx context.Context, acq Acquirer, card CardDetails) (string, error) {
	ref, err := s.gateway.Tokenize(ctx, acq, card)
	if err != nil {
		s.metrics.RecordTokenization(observability.OutcomeError)
		return "", err
	}
	s.metrics.RecordTokenization(observability.OutcomeSuccess)
	return ref, nil
}

// FormInput is the checkout form submission: either a previously saved token
// id or raw card details.
type FormInput struct {
	AcquirerID      int64
	PartnerID       int64
	SelectedTokenID *int64
	SaveToken       bool
	Card            CardDetails
}

// ProcessForm resolves a form submission to a token record. A selected token
// id short-circuits; otherwise the card is tokenized at the gateway, reusing
// an existing record when the gateway returns a reference we already hold.
func (s *Service) ProcessForm(ctx context.Context, input FormInput) (Token, error) {
	if input.SelectedTokenID != nil {
		return s.repo.GetToken(ctx, *input.SelectedTokenID)
	}
	if err := input.Card.Validate(s.now()); err != nil {
		return Token{}, err
	}

	acq, err := s.repo.GetAcquirer(ctx, input.AcquirerID)
	if err != nil {
		return Token{}, err
	}
	save := acq.SaveToken == SaveAlways || (acq.SaveToken == SaveAsk && input.SaveToken)

	ref, err := s.tokenize(ctx, acq, input.Card)
	if err != nil {
		return Token{}, err
	}

	existing, err := s.repo.FindTokenByRef(ctx, input.PartnerID, input.AcquirerID, ref)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrTokenNotFound):
		return Token{}, err
	}

	token, err := s.newToken(input.PartnerID, input.AcquirerID, input.Card, ref, save)
	if err != nil {
		return Token{}, err
	}
	created, err := s.repo.CreateToken(ctx, token)
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("payment token created",
		slog.Int64("partner_id", created.PartnerID),
		slog.Int64("acquirer_id", created.AcquirerID),
		slog.Int64("token_id", created.ID))
	return created, nil
}

// CreateTokenInput is an explicit backend token creation request.
type CreateTokenInput struct {
	AcquirerID int64
	PartnerID  int64
	Card       CardDetails
	// AcquirerRef skips the gateway round trip when the reference is
	// already known.
	AcquirerRef string
}

// CreateToken stores a new token record, rejecting cards whose last four
// digits already exist for the partner/acquirer pair.
func (s *Service) CreateToken(ctx context.Context, input CreateTokenInput) (Token, error) {
	if err := input.Card.Validate(s.now()); err != nil {
		return Token{}, err
	}

	dup, err := s.repo.HasTokenWithSuffix(ctx, input.PartnerID, input.AcquirerID, lastFour(input.Card.Number))
	if err != nil {
		return Token{}, err
	}
	if dup {
		return Token{}, ErrDuplicateCard
	}

	ref := input.AcquirerRef
	if ref == "" {
		acq, err := s.repo.GetAcquirer(ctx, input.AcquirerID)
		if err != nil {
			return Token{}, err
		}
		ref, err = s.tokenize(ctx, acq, input.Card)
		if err != nil {
			return Token{}, err
		}
	}

	token, err := s.newToken(input.PartnerID, input.AcquirerID, input.Card, ref, true)
	if err != nil {
		return Token{}, err
	}
	return s.repo.CreateToken(ctx, token)
}

// GetToken loads a token by id.
func (s *Service) GetToken(ctx context.Context, id int64) (Token, error) {
	return s.repo.GetToken(ctx, id)
}

// ListTokens returns a partner's stored tokens.
func (s *Service) ListTokens(ctx context.Context, partnerID int64) ([]Token, error) {
	return s.repo.ListTokensByPartner(ctx, partnerID)
}

// DeactivateExpired retires tokens whose card expiry has passed.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("expired payment tokens deactivated", slog.Int64("count", count))
	}
	return count, nil
}

// newToken assembles the persisted record. The token expires on the last
// calendar day of the card's expiry month; two-digit years map to 20YY.
func (s *Service) newToken(partnerID, acquirerID int64, card CardDetails, ref string, save bool) (Token, error) {
	month, year, err := card.expiryParts()
	if err != nil {
		return Token{}, err
	}
	return Token{
		PartnerID:   partnerID,
		AcquirerID:  acquirerID,
		Name:        maskedName(card.Number, card.HolderName),
		AcquirerRef: ref,
		SaveToken:   save,
		ExpiryDate:  endOfMonth(2000+year, time.Month(month)),
		Fingerprint: fingerprint(card.normalizedNumber()),
		Active:      true,
	}, nil
}

// fingerprint is a stable digest of the card number used for duplicate
// detection without storing the number itself.
func fingerprint(cardNumber string) string {
	sum := sha3.Sum256([]byte(cardNumber))
	return hex.EncodeToString(sum[:])
}
