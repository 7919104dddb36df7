package settlement

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/httpapi"
	"efhc.app/ledger/internal/money"
)

// Handler обрабатывает заказы, вебхуки и очередь выдачи.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterUser подключает маршруты пользователя.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Get("/offers", h.handleOffers)
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Post("/orders/{id}/cancel", h.handleCancel)
}

// RegisterWebhooks подключает вебхуки платёжного шлюза и наблюдателя блокчейна.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/payment", h.handlePaymentWebhook)
	r.Post("/chain", h.handleChainWebhook)
}

// RegisterAdmin подключает административные маршруты.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/orders/{id}", h.handleAdminGetOrder)
	r.Post("/orders/{id}/approve", h.orderAction(h.service.Approve))
	r.Post("/orders/{id}/deliver", h.orderAction(h.service.Deliver))
	r.Post("/orders/{id}/reject", h.handleReject)
	r.Get("/fulfillments", h.handleFulfillments)
}

func (h *Handler) handleOffers(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, h.service.Catalog().List())
}

type createOrderRequest struct {
	Kind           domain.OrderKind `json:"kind"`
	Asset          string           `json:"asset"`
	Amount         money.Amount     `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type orderResponse struct {
	Order *domain.Order `json:"order"`
	Memo  string        `json:"memo,omitempty"` // комментарий к платежу в TON
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	order, created, err := h.service.CreateExternalOrder(r.Context(), httpapi.AccountID(r.Context()),
		req.Kind, req.Asset, req.Amount, req.IdempotencyKey)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpapi.JSON(w, status, orderResponse{Order: order, Memo: BuildPaymentMemo(order)})
}

// ownOrder загружает заказ и скрывает чужие заказы как несуществующие.
func (h *Handler) ownOrder(r *http.Request) (*domain.Order, error) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	order, err := h.service.OrderStatus(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if order.AccountID != httpapi.AccountID(r.Context()) {
		return nil, common.ErrNotFound
	}
	return order, nil
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownOrder(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), httpapi.AccountID(r.Context()), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, order)
}

type paymentWebhookRequest struct {
	OrderRef string `json:"order_ref"`
	TxRef    string `json:"tx_ref"`
}

type webhookResponse struct {
	Status string        `json:"status"`
	Order  *domain.Order `json:"order,omitempty"`
	Result *EventResult  `json:"result,omitempty"`
}

// Повтор уже обработанного события отвечает 200, чтобы отправитель перестал повторять.
const webhookDuplicate = "duplicate"

func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	order, err := h.service.PaymentWebhook(r.Context(), req.OrderRef, req.TxRef)
	switch {
	case errors.Is(err, common.ErrDuplicateEvent):
		httpapi.JSON(w, http.StatusOK, webhookResponse{Status: webhookDuplicate})
	case errors.Is(err, ErrMissingTxRef):
		httpapi.Fail(w, r, http.StatusBadRequest, err)
	case err != nil:
		httpapi.Error(w, r, err)
	default:
		httpapi.JSON(w, http.StatusOK, webhookResponse{Status: domain.OutcomeApplied, Order: order})
	}
}

func (h *Handler) handleChainWebhook(w http.ResponseWriter, r *http.Request) {
	var ev ChainEvent
	if err := httpapi.Decode(r, &ev); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	if ev.ID == "" {
		httpapi.Fail(w, r, http.StatusBadRequest, ErrMissingTxRef)
		return
	}
	res, err := h.service.BlockchainEvent(r.Context(), ev)
	switch {
	case errors.Is(err, common.ErrDuplicateEvent):
		httpapi.JSON(w, http.StatusOK, webhookResponse{Status: webhookDuplicate})
	case err != nil:
		httpapi.Error(w, r, err)
	default:
		httpapi.JSON(w, http.StatusOK, webhookResponse{Status: res.Outcome, Result: res})
	}
}

func (h *Handler) handleAdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	order, err := h.service.OrderStatus(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderAction(op func(ctx context.Context, admin, orderID int64) (*domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		order, err := op(r.Context(), httpapi.AdminID(r.Context()), id)
		if err != nil {
			httpapi.Error(w, r, err)
			return
		}
		httpapi.JSON(w, http.StatusOK, order)
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	var req rejectRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	order, err := h.service.Reject(r.Context(), httpapi.AdminID(r.Context()), id, req.Reason)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleFulfillments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Fulfillments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, list)
}
