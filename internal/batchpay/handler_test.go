package batchpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-pay/internal/invoices"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(slog.Default(), svc)
	r.Route("/batch-payments", h.MountRoutes)
	return r
}

func TestHandlerCreateAndFetch(t *testing.T) {
	invs := &memInvoices{items: map[int64]invoices.Invoice{
		1: postedInvoice(1, invoices.MoveCustomerInvoice, 1234.5),
	}}
	svc, _ := newTestService(invs, discountOf(2, 99))
	router := newTestRouter(svc)

	body := `{"source_model":"account.move","invoice_ids":[1],"payment_date":"2026-03-05"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/batch-payments", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created wizardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created.CustomerLines, 1)
	require.Equal(t, "1,232.50 USD", created.DisplayChequeAmount)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/batch-payments/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	invs := &memInvoices{items: map[int64]invoices.Invoice{}}
	svc, _ := newTestService(invs, stubDiscounts{})
	router := newTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/batch-payments", strings.NewReader(`{"source_model":"account.move"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUpdateLine(t *testing.T) {
	invs := &memInvoices{items: map[int64]invoices.Invoice{
		1: postedInvoice(1, invoices.MoveCustomerInvoice, 100),
	}}
	svc, _ := newTestService(invs, discountOf(2, 99))
	router := newTestRouter(svc)

	w, err := svc.Create(context.Background(), CreateInput{SourceModel: SourceModelMove, InvoiceIDs: []int64{1}})
	require.NoError(t, err)

	body := `{"trigger":"amount","amount":90}`
	url := fmt.Sprintf("/batch-payments/%s/lines/1", w.ID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, url, strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var updated wizardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Equal(t, HandlingOpen, updated.CustomerLines[0].Handling)
	require.InDelta(t, 10, updated.CustomerLines[0].PaymentDifference, 1e-9)
}

func TestHandlerUnknownWizardIs404(t *testing.T) {
	invs := &memInvoices{items: map[int64]invoices.Invoice{}}
	svc, _ := newTestService(invs, stubDiscounts{})
	router := newTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/batch-payments/00000000-0000-0000-0000-000000000001", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerAutoFillRequiresDate(t *testing.T) {
	invs := &memInvoices{items: map[int64]invoices.Invoice{
		1: postedInvoice(1, invoices.MoveCustomerInvoice, 100),
	}}
	svc, store := newTestService(invs, stubDiscounts{})
	router := newTestRouter(svc)

	w, err := svc.Create(context.Background(), CreateInput{SourceModel: SourceModelMove, InvoiceIDs: []int64{1}})
	require.NoError(t, err)

	// Blank the date directly in the store to simulate an unset wizard.
	w.PaymentDate = time.Time{}
	require.NoError(t, store.Save(context.Background(), w))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/batch-payments/"+w.ID.String()+"/autofill", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
