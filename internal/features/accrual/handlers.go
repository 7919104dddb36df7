package accrual

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/httpapi"
)

// Handler позволяет администратору запустить начисление вне расписания.
type Handler struct {
	service *Service
	runner  Runner
}

// NewHandler создаёт обработчик. Запуски идут через runner (планировщик),
// чтобы не пересекаться с плановым тиком.
func NewHandler(service *Service, runner Runner) *Handler {
	return &Handler{service: service, runner: runner}
}

// RegisterAdmin подключает административные маршруты.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/accrual/run", h.handleRun)
}

type runRequest struct {
	At *time.Time `json:"at"` // по умолчанию текущий момент; только текущие сутки
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength > 0 {
		if err := httpapi.Decode(r, &req); err != nil {
			httpapi.Error(w, r, err)
			return
		}
	}
	report, err := h.service.RunManual(r.Context(), h.runner, req.At)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, report)
}
