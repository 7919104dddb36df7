// Package admin — handlers.go обрабатывает вход и выход администратора.
package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает админ-сессии.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublic подключает вход (без сессии).
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

// RegisterAdmin подключает маршруты для вошедшего администратора.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	UserID   int64  `json:"user_id"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), httpapi.BearerToken(r)); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
