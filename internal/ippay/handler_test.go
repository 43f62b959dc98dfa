package ippay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(slog.Default(), svc)
	r.Route("/ippay", h.MountRoutes)
	return r
}

func TestHandlerProcessForm(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1, SaveToken: SaveAlways}
	router := newTestRouter(newTestService(repo, stubGateway{ref: "TKN-1"}))

	body := `{
		"acquirer_id": 1,
		"partner_id": 7,
		"card": {
			"cc_number": "4111 1111 1111 1111",
			"cc_holder_name": "Jane Doe",
			"cc_expiry": "12/99",
			"cc_cvc": "123",
			"cc_brand": "visa"
		}
	}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ippay/form", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var token Token
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &token))
	require.Equal(t, "TKN-1", token.AcquirerRef)
	require.Equal(t, "XXXXXXXXXXXX1111 - Jane Doe", token.Name)
}

func TestHandlerCreateTokenDuplicateIsConflict(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1}
	svc := newTestService(repo, stubGateway{ref: "TKN-1"})
	router := newTestRouter(svc)

	_, err := svc.CreateToken(context.Background(), CreateTokenInput{AcquirerID: 1, PartnerID: 7, Card: validCard()})
	require.NoError(t, err)

	body := `{
		"acquirer_id": 1,
		"partner_id": 7,
		"card": {
			"cc_number": "5500 0000 0000 1111",
			"cc_holder_name": "Jane Doe",
			"cc_expiry": "12/99",
			"cc_cvc": "123",
			"cc_brand": "mastercard"
		}
	}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ippay/tokens", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerCardValidationIs400(t *testing.T) {
	repo := newMemRepository()
	repo.acquirers[1] = Acquirer{ID: 1}
	router := newTestRouter(newTestService(repo, stubGateway{ref: "TKN-1"}))

	body := `{
		"acquirer_id": 1,
		"partner_id": 7,
		"card": {
			"cc_number": "4111 1111 1111 1111",
			"cc_holder_name": "Jane Doe",
			"cc_expiry": "01/20",
			"cc_cvc": "123",
			"cc_brand": "visa"
		}
	}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ippay/form", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerListTokens(t *testing.T) {
	repo := newMemRepository()
	_, err := repo.CreateToken(context.Background(), Token{PartnerID: 7, AcquirerID: 1, AcquirerRef: "TKN-1", Active: true})
	require.NoError(t, err)
	router := newTestRouter(newTestService(repo, stubGateway{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ippay/tokens?partner_id=7", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var payload struct {
		Tokens []Token `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Tokens, 1)
}
