package referrals

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает реферальную программу.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/referrals", h.handleSetReferrer)
	r.Get("/referrals", h.handleStats)
}

type setReferrerRequest struct {
	ReferrerID int64 `json:"referrer_id"`
}

func (h *Handler) handleSetReferrer(w http.ResponseWriter, r *http.Request) {
	var req setReferrerRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	ref, err := h.service.SetReferrer(r.Context(), httpapi.AccountID(r.Context()), req.ReferrerID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, ref)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), httpapi.AccountID(r.Context()))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, stats)
}
