// Package ledger — handlers.go отдаёт балансы и административные операции по HTTP.
package ledger

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/httpapi"
	"efhc.app/ledger/internal/money"
)

// Handler обрабатывает HTTP-запросы к леджеру.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя (после RequireAccount).
func (h *Handler) RegisterUser(r chi.Router) {
	r.Get("/accounts/me", h.handleMe)
	r.Post("/exchange", h.handleExchange)
}

// RegisterAdmin подключает административные маршруты (после RequireAdmin).
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/mint", h.supply(h.service.Mint))
	r.Post("/burn", h.supply(h.service.Burn))
	r.Post("/mint-bonus", h.supply(h.service.MintBonus))
	r.Post("/burn-bonus", h.supply(h.service.BurnBonus))
	r.Post("/accounts/{id}/credit", h.adjust(h.service.Credit))
	r.Post("/accounts/{id}/debit", h.adjust(h.service.Debit))
	r.Get("/accounts/{id}", h.handleAccount)
	r.Get("/supply", h.handleSupplyLog)
	r.Get("/audit", h.handleAudit)
}

type amountRequest struct {
	Amount money.Amount `json:"amount"`
	Note   string       `json:"note"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), httpapi.AccountID(r.Context()))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	receipt, err := h.service.Exchange(r.Context(), httpapi.AccountID(r.Context()), req.Amount)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, receipt)
}

type supplyFunc func(ctx context.Context, admin int64, amount money.Amount, note string) (*Receipt, error)

func (h *Handler) supply(op supplyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if err := httpapi.Decode(r, &req); err != nil {
			httpapi.Error(w, r, err)
			return
		}
		receipt, err := op(r.Context(), httpapi.AdminID(r.Context()), req.Amount, req.Note)
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		httpapi.JSON(w, http.StatusOK, receipt)
	}
}

type adjustFunc func(ctx context.Context, admin, user int64, adj Adjustment) (*Receipt, error)

func (h *Handler) adjust(op adjustFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := httpapi.PathInt64(chi.URLParam(r, "id"))
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		var adj Adjustment
		if err := httpapi.Decode(r, &adj); err != nil {
			httpapi.Error(w, r, err)
			return
		}
		receipt, err := op(r.Context(), httpapi.AdminID(r.Context()), user, adj)
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		httpapi.JSON(w, http.StatusOK, receipt)
	}
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSupplyLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpapi.Error(w, r, httpapi.ErrBadRequest)
			return
		}
		limit = min(n, 1000)
	}
	records, err := h.service.SupplyLog(r.Context(), limit)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Audit(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, report)
}
