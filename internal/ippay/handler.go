package ippay

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-pay/internal/platform/httpx"
	"github.com/meridian-erp/meridian-pay/internal/shared"
)

// Handler exposes the tokenization flows over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers acquirer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/form", h.processForm)
	r.Post("/tokens", h.createToken)
	r.Get("/tokens", h.listTokens)
	r.Get("/tokens/{id}", h.getToken)
}

type cardRequest struct {
	Number     string `json:"cc_number"`
	HolderName string `json:"cc_holder_name"`
	Expiry     string `json:"cc_expiry"`
	CVC        string `json:"cc_cvc"`
	Brand      string `json:"cc_brand"`
}

func (c cardRequest) details() CardDetails {
	return CardDetails{
		Number:     c.Number,
		HolderName: c.HolderName,
		Expiry:     c.Expiry,
		CVC:        c.CVC,
		Brand:      c.Brand,
	}
}

type formRequest struct {
	AcquirerID      int64       `json:"acquirer_id" validate:"required,gt=0"`
	PartnerID       int64       `json:"partner_id" validate:"required,gt=0"`
	SelectedTokenID *int64      `json:"selected_token_id,omitempty"`
	SaveToken       bool        `json:"save_token,omitempty"`
	Card            cardRequest `json:"card"`
}

type createTokenRequest struct {
	AcquirerID  int64       `json:"acquirer_id" validate:"required,gt=0"`
	PartnerID   int64       `json:"partner_id" validate:"required,gt=0"`
	Card        cardRequest `json:"card"`
	AcquirerRef string      `json:"acquirer_ref,omitempty"`
}

func (h *Handler) processForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	token, err := h.service.ProcessForm(r.Context(), FormInput{
		AcquirerID:      req.AcquirerID,
		PartnerID:       req.PartnerID,
		SelectedTokenID: req.SelectedTokenID,
		SaveToken:       req.SaveToken,
		Card:            req.Card.details(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) createToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	token, err := h.service.CreateToken(r.Context(), CreateTokenInput{
		AcquirerID:  req.AcquirerID,
		PartnerID:   req.PartnerID,
		Card:        req.Card.details(),
		AcquirerRef: req.AcquirerRef,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, token)
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	partnerID, err := strconv.ParseInt(r.URL.Query().Get("partner_id"), 10, 64)
	if err != nil || partnerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "partner_id query parameter is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	tokens, err := h.service.ListTokens(r.Context(), partnerID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	p := shared.NewPagination(page, perPage, len(tokens))
	start := (p.Page - 1) * p.PerPage
	if start > len(tokens) {
		start = len(tokens)
	}
	end := start + p.PerPage
	if end > len(tokens) {
		end = len(tokens)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tokens":     tokens[start:end],
		"pagination": p,
	})
}

func (h *Handler) getToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid token id")
		return
	}
	token, err := h.service.GetToken(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCardValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateCard):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrAcquirerNotFound), errors.Is(err, ErrTokenNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		if !errors.Is(err, httpx.ErrGateway) {
			h.logger.Error("ippay handler", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
