package panels

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает покупку панелей.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/panels", h.handlePurchase)
}

type purchaseRequest struct {
	Quantity int64  `json:"quantity"`
	Priority string `json:"priority"` // bonus_first (по умолчанию) или main_first
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	req := purchaseRequest{Quantity: 1}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	priority, ok := ledger.ParsePriority(req.Priority)
	if !ok {
		httpapi.Error(w, r, fmt.Errorf("%w: приоритет %q", httpapi.ErrBadRequest, req.Priority))
		return
	}

	purchase, err := h.service.PurchaseCapacityUnit(r.Context(), httpapi.AccountID(r.Context()), req.Quantity, priority)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, purchase)
}
