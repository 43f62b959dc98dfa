package batchpay

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-pay/internal/platform/httpx"
	"github.com/meridian-erp/meridian-pay/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes the wizard over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers wizard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/payment-date", h.setPaymentDate)
	r.Patch("/{id}/lines/{invoiceID}", h.updateLine)
	r.Post("/{id}/autofill", h.autoFill)
}

type createRequest struct {
	SourceModel   string  `json:"source_model" validate:"required"`
	InvoiceIDs    []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	PaymentDate   string  `json:"payment_date,omitempty"`
	Communication string  `json:"communication,omitempty"`
	JournalID     int64   `json:"journal_id,omitempty"`
}

type paymentDateRequest struct {
	PaymentDate string `json:"payment_date" validate:"required"`
}

type lineUpdateRequest struct {
	Trigger       string   `json:"trigger" validate:"required,oneof=handling difference amount"`
	Amount        *float64 `json:"amount,omitempty"`
	Handling      *string  `json:"handling,omitempty" validate:"omitempty,oneof=open reconcile"`
	Difference    *float64 `json:"difference,omitempty"`
	ResetAutofill bool     `json:"reset_autofill,omitempty"`
}

type wizardResponse struct {
	Wizard
	DisplayAmount       string `json:"display_amount"`
	DisplayChequeAmount string `json:"display_cheque_amount"`
}

type autoFillResponse struct {
	Wizard wizardResponse `json:"wizard"`
	Action Action         `json:"action"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{
		SourceModel:   req.SourceModel,
		InvoiceIDs:    req.InvoiceIDs,
		Communication: req.Communication,
		JournalID:     req.JournalID,
	}
	if req.PaymentDate != "" {
		date, err := time.Parse(dateLayout, req.PaymentDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
			return
		}
		input.PaymentDate = date
	}

	wizard, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toWizardResponse(wizard))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.wizardID(w, r)
	if !ok {
		return
	}
	wizard, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWizardResponse(wizard))
}

func (h *Handler) setPaymentDate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.wizardID(w, r)
	if !ok {
		return
	}
	var req paymentDateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
		return
	}

	wizard, err := h.service.SetPaymentDate(r.Context(), id, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWizardResponse(wizard))
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.wizardID(w, r)
	if !ok {
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid invoice id")
		return
	}
	var req lineUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	upd := LineUpdate{
		Trigger:       Trigger(req.Trigger),
		Amount:        req.Amount,
		Difference:    req.Difference,
		ResetAutofill: req.ResetAutofill,
	}
	if req.Handling != nil {
		handling := DifferenceHandling(*req.Handling)
		upd.Handling = &handling
	}

	wizard, err := h.service.UpdateLine(r.Context(), id, invoiceID, upd)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWizardResponse(wizard))
}

func (h *Handler) autoFill(w http.ResponseWriter, r *http.Request) {
	id, ok := h.wizardID(w, r)
	if !ok {
		return
	}
	wizard, action, err := h.service.AutoFill(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, autoFillResponse{Wizard: toWizardResponse(wizard), Action: action})
}

func (h *Handler) wizardID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid wizard id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingContext),
		errors.Is(err, ErrWrongSourceModel),
		errors.Is(err, ErrMixedPaymentModes),
		errors.Is(err, ErrUnpostedInvoice),
		errors.Is(err, ErrMixedDirections),
		errors.Is(err, ErrMixedCurrencies),
		errors.Is(err, ErrNoPaymentDate),
		errors.Is(err, ErrUnknownTrigger):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrWizardExpired), errors.Is(err, ErrLineNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("batchpay handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toWizardResponse(w Wizard) wizardResponse {
	return wizardResponse{
		Wizard:              w,
		DisplayAmount:       FormatAmount(w.Currency, w.Amount),
		DisplayChequeAmount: FormatAmount(w.Currency, w.ChequeAmount),
	}
}
