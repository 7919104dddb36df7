package draws

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает розыгрыши.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Get("/draws/{code}", h.handleGet)
	r.Post("/draws/{code}/tickets", h.handleBuy)
}

// RegisterAdmin подключает административные маршруты.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/draws", h.handleCreate)
	r.Post("/draws/settle", h.handleSettle)
}

type drawView struct {
	*domain.Draw
	Sold int64 `json:"sold"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	d, sold, err := h.service.Draw(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, drawView{Draw: d, Sold: sold})
}

type buyRequest struct {
	Count int64 `json:"count"`
}

func (h *Handler) handleBuy(w http.ResponseWriter, r *http.Request) {
	req := buyRequest{Count: 1}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	purchase, err := h.service.BuyTickets(r.Context(), httpapi.AccountID(r.Context()), chi.URLParam(r, "code"), req.Count)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, purchase)
}

type createRequest struct {
	Code   string           `json:"code"`
	Title  string           `json:"title"`
	Target int64            `json:"target"`
	Prize  domain.PrizeKind `json:"prize"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	d, err := h.service.CreateDraw(r.Context(), httpapi.AdminID(r.Context()), req.Code, req.Title, req.Target, req.Prize)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, d)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Settle(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, report)
}
