package ippay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-pay/internal/observability"
)

type memRepository struct {
	acquirers map[int64]Acquirer
	tokens    map[int64]Token
	nextID    int64
}

var _ Repository = (*memRepository)(nil)

func newMemRepository() *memRepository {
	return &memRepository{
		acquirers: make(map[int64]Acquirer),
		tokens:    make(map[int64]Token),
		nextID:    1,
	}
}

func (m *memRepository) GetAcquirer(_ context.Context, id int64) (Acquirer, error) {
	a, ok := m.acquirers[id]
	if !ok {
		return Acquirer{}, ErrAcquirerNotFound
	}
	return a, nil
}

func (m *memRepository) GetToken(_ context.Context, id int64) (Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

func (m *memRepository) FindTokenByRef(_ context.Context, partnerID, acquirerID int64, ref string) (Token, error) {
	for _, t := range m.tokens {
		if t.PartnerID == partnerID && t.AcquirerID == acquirerID && t.AcquirerRef == ref {
			return t, nil
		}
	}
	return Token{}, ErrTokenNotFound
}

func (m *memRepository) HasTokenWithSuffix(_ context.Context, partnerID, acquirerID int64, lastFour string) (bool, error) {
	for _, t := range m.tokens {
		if t.PartnerID != partnerID || t.AcquirerID != acquirerID || !t.Active {
			continue
		}
		masked, _, _ := strings.Cut(t.Name, " - ")
		if strings.HasSuffix(masked, lastFour) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepository) CreateToken(_ context.Context, t Token) (Token, error) {
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	m.nextID++
	m.tokens[t.ID] = t
	return t, nil
}

func (m *memRepository) ListTokensByPartner(_ context.Context, partnerID int64) ([]Token, error) {
	out := make([]Token, 0)
	for _, t := range m.tokens {
		if t.PartnerID == partnerID && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memRepository) DeactivateExpired(_ context.Context, asOf time.Time) (int64, error) {
	var count int64
	for id, t := range m.tokens {
		if t.Active && t.ExpiryDate.Before(asOf) {
			t.Active = false
			m.tokens[id] = t
			count++
		}
	}
	return count, nil
}

type stubGateway struct {
	ref string
	err error
}

func (s stubGateway) Tokenize(context.Context, Acquirer, CardDetails) (string, error) {
	return s.ref, s.err
}

func newTestService(repo *memRepository, gw Gateway) *Service {
	svc := NewService(repo, gw, nil, slog.Default())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestProcessFormCreatesToken(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1, Provider: ProviderIPpay, TerminalID: "T1", SaveToken: SaveAlways}
	svc := newTestService(repo, stubGateway{ref: "TKN-1"})

	token, err := svc.ProcessForm(context.Background(), FormInput{
		AcquirerID: 1,
		PartnerID:  7,
		Card:       validCard(),
	})
	require.NoError(t, err)
	require.Equal(t, "TKN-1", token.AcquirerRef)
	require.Equal(t, "XXXXXXXXXXXX1111 - Jane Doe", token.Name)
	require.True(t, token.SaveToken)
	require.True(t, token.Active)
	require.NotEmpty(t, token.Fingerprint)
}

func TestProcessFormSaveTokenPolicy(t *testing.T) {
	for _, tc := range []struct {
		name      string
		policy    SaveTokenPolicy
		userOptIn bool
		want      bool
	}{
		{"never", SaveNever, true, false},
		{"ask declined", SaveAsk, false, false},
		{"ask accepted", SaveAsk, true, true},
		{"always", SaveAlways, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepository()
			repo.acquirers[1] = Acquirer{ID: 1, SaveToken: tc.policy}
			svc := newTestService(repo, stubGateway{ref: "TKN-1"})

			token, err := svc.ProcessForm(context.Background(), FormInput{
				AcquirerID: 1,
				PartnerID:  7,
				SaveToken:  tc.userOptIn,
				Card:       validCard(),
			})
			require.NoError(t, err)
			require.Equal(t, tc.want, token.SaveToken)
		})
	}
}

func TestProcessFormReusesExistingTokenByRef(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1, SaveToken: SaveAlways}
	existing, err := repo.CreateToken(context.Background(), Token{
		PartnerID: 7, AcquirerID: 1, AcquirerRef: "TKN-1", Name: "XXXXXXXXXXXX1111 - Jane Doe", Active: true,
	})
	require.NoError(t, err)

	svc := newTestService(repo, stubGateway{ref: "TKN-1"})
	token, err := svc.ProcessForm(context.Background(), FormInput{
		AcquirerID: 1,
		PartnerID:  7,
		Card:       validCard(),
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, token.ID)
	require.Len(t, repo.tokens, 1)
}

func TestProcessFormSelectedTokenShortCircuits(t *testing.T) {
	repo := newMemRepository()
	existing, err := repo.CreateToken(context.Background(), Token{PartnerID: 7, AcquirerID: 1, AcquirerRef: "TKN-1", Active: true})
	require.NoError(t, err)

	svc := newTestService(repo, stubGateway{err: ErrCardValidation})

	token, err := svc.ProcessForm(context.Background(), FormInput{SelectedTokenID: &existing.ID})
	require.NoError(t, err)
	require.Equal(t, existing.ID, token.ID)
}

func TestProcessFormRejectsInvalidCard(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1}
	svc := newTestService(repo, stubGateway{ref: "TKN-1"})

	card := validCard()
	card.Expiry = "01/20"
	_, err := svc.ProcessForm(context.Background(), FormInput{AcquirerID: 1, PartnerID: 7, Card: card})
	require.ErrorIs(t, err, ErrCardValidation)
}

func TestTokenizationOutcomesAreCounted(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1, SaveToken: SaveAlways}
	metrics := observability.NewMetrics()

	svc := NewService(repo, stubGateway{err: errors.New("gateway down")}, metrics, slog.Default())
	svc.now = func() time.Time { return fixedNow }

	_, err := svc.ProcessForm(context.Background(), FormInput{AcquirerID: 1, PartnerID: 7, Card: validCard()})
	require.Error(t, err)

	svc.gateway = stubGateway{ref: "TKN-1"}
	_, err = svc.ProcessForm(context.Background(), FormInput{AcquirerID: 1, PartnerID: 7, Card: validCard()})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	require.Contains(t, body, `meridian_tokenization_total{outcome="error"} 1`)
	require.Contains(t, body, `meridian_tokenization_total{outcome="success"} 1`)
}

func TestCreateTokenDuplicateLastFour(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1}
	svc := newTestService(repo, stubGateway{ref: "TKN-1"})

	_, err := svc.CreateToken(context.Background(), CreateTokenInput{
		AcquirerID: 1, PartnerID: 7, Card: validCard(),
	})
	require.NoError(t, err)

	// Different number, same trailing four digits.
	card := validCard()
	card.Number = "5500 0000 0000 1111"
	_, err = svc.CreateToken(context.Background(), CreateTokenInput{
		AcquirerID: 1, PartnerID: 7, Card: card,
	})
	require.ErrorIs(t, err, ErrDuplicateCard)
}

func TestCreateTokenExpiryIsEndOfMonth(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1}
	svc := newTestService(repo, stubGateway{ref: "TKN-1"})

	card := validCard()
	card.Expiry = "02/28"
	token, err := svc.CreateToken(context.Background(), CreateTokenInput{
		AcquirerID: 1, PartnerID: 7, Card: card,
	})
	require.NoError(t, err)
	// 2028 is a leap year.
	require.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), token.ExpiryDate)
}

func TestCreateTokenWithKnownRefSkipsGateway(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo, stubGateway{err: ErrCardValidation})

	token, err := svc.CreateToken(context.Background(), CreateTokenInput{
		AcquirerID: 1, PartnerID: 7, Card: validCard(), AcquirerRef: "TKN-KNOWN",
	})
	require.NoError(t, err)
	require.Equal(t, "TKN-KNOWN", token.AcquirerRef)
}

func TestDeactivateExpired(t *testing.T) {
	repo := newMemRepository()
	_, err := repo.CreateToken(context.Background(), Token{
		PartnerID: 7, AcquirerID: 1, AcquirerRef: "OLD",
		ExpiryDate: time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), Active: true,
	})
	require.NoError(t, err)
	fresh, err := repo.CreateToken(context.Background(), Token{
		PartnerID: 7, AcquirerID: 1, AcquirerRef: "FRESH",
		ExpiryDate: time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC), Active: true,
	})
	require.NoError(t, err)

	svc := newTestService(repo, stubGateway{})
	count, err := svc.DeactivateExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	remaining, err := svc.ListTokens(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, fresh.ID, remaining[0].ID)
}
