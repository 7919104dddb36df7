package tasks

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает выполнение заданий.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/tasks/{code}/complete", h.handleComplete)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.CompleteTask(r.Context(), httpapi.AccountID(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, receipt)
}
