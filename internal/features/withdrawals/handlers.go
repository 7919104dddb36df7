package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/httpapi"
)

// Handler обрабатывает заявки на вывод.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/withdrawals", h.handleCreate)
	r.Get("/withdrawals", h.handleListOwn)
	r.Get("/withdrawals/{id}", h.handleGetOwn)
	r.Post("/withdrawals/{id}/cancel", h.handleCancel)
}

// RegisterAdmin подключает административные маршруты.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/withdrawals", h.handleListAll)
	r.Post("/withdrawals/{id}/approve", h.action(func(ctx context.Context, admin, id int64, req actionRequest) (*Result, error) {
		return h.service.Approve(ctx, admin, id, req.Comment)
	}))
	r.Post("/withdrawals/{id}/reject", h.action(func(ctx context.Context, admin, id int64, req actionRequest) (*Result, error) {
		return h.service.Reject(ctx, admin, id, req.Comment)
	}))
	r.Post("/withdrawals/{id}/send", h.action(func(ctx context.Context, admin, id int64, req actionRequest) (*Result, error) {
		return h.service.Send(ctx, admin, id, req.TxHash, req.Comment)
	}))
	r.Post("/withdrawals/{id}/fail", h.action(func(ctx context.Context, admin, id int64, req actionRequest) (*Result, error) {
		return h.service.Fail(ctx, admin, id, req.Comment)
	}))
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrMissingTxHash) {
		httpapi.Fail(w, r, http.StatusBadRequest, err)
		return
	}
	httpapi.Error(w, r, err)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	res, err := h.service.Create(r.Context(), httpapi.AccountID(r.Context()), req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httpapi.JSON(w, status, res)
}

func (h *Handler) handleListOwn(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, httpapi.AccountID(r.Context()))
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, 0)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, account int64) {
	status := domain.WithdrawalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httpapi.Error(w, r, fmt.Errorf("%w: статус %q", httpapi.ErrBadRequest, status))
		return
	}
	list, err := h.service.List(r.Context(), domain.WithdrawalFilter{AccountID: account, Status: status})
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetOwn(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	wd, err := h.service.Get(r.Context(), id)
	if err == nil && wd.AccountID != httpapi.AccountID(r.Context()) {
		err = common.ErrNotFound
	}
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, wd)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	res, err := h.service.Cancel(r.Context(), httpapi.AccountID(r.Context()), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, res)
}

type actionRequest struct {
	Comment string `json:"comment"`
	TxHash  string `json:"tx_hash"`
}

func (h *Handler) action(op func(ctx context.Context, admin, id int64, req actionRequest) (*Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		var req actionRequest
		if r.ContentLength > 0 {
			if err := httpapi.Decode(r, &req); err != nil {
				httpapi.Error(w, r, err)
				return
			}
		}
		res, err := op(r.Context(), httpapi.AdminID(r.Context()), id, req)
		if err != nil {
			fail(w, r, err)
			return
		}
		httpapi.JSON(w, http.StatusOK, res)
	}
}
