// Package httpapi содержит общие части HTTP-интерфейса: ответы JSON,
// перевод ошибок леджера в статусы, идентификацию и middleware.
// Маршруты объявляют сами фичи в своих handlers.go.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/money"
)

// maxBodyBytes ограничивает тело запроса.
const maxBodyBytes = 1 << 20

// ErrBadRequest — тело или параметры запроса не разбираются.
var ErrBadRequest = errors.New("некорректный запрос")

// ErrorBody — тело ответа с ошибкой. Для отказов леджера к нему
// прикладываются текущие балансы.
type ErrorBody struct {
	Error   string `json:"error"`
	Receipt any    `json:"receipt,omitempty"`
}

// receiptCarrier — ошибка, несущая балансы на момент отказа.
type receiptCarrier interface {
	RejectedReceipt() any
}

// JSON пишет v с указанным статусом.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Не удалось записать ответ")
	}
}

// Decode читает JSON-тело запроса в v.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// StatusFor сопоставляет ошибку статусу HTTP.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrSelfTransfer),
		errors.Is(err, common.ErrBankAccount),
		errors.Is(err, common.ErrUnknownOffer),
		errors.Is(err, common.ErrTicketLimit),
		errors.Is(err, common.ErrInvalidDate),
		errors.Is(err, common.ErrInvalidAddress),
		errors.Is(err, common.ErrSelfReferral),
		errors.Is(err, money.ErrMalformed),
		errors.Is(err, money.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrWrongPassword),
		errors.Is(err, common.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateEvent),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrInvalidStateTransition),
		errors.Is(err, common.ErrDrawFull),
		errors.Is(err, common.ErrJobBusy):
		return http.StatusConflict
	case errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrInsufficientBankBalance),
		errors.Is(err, common.ErrInsufficientFunds),
		errors.Is(err, common.ErrPanelLimit),
		errors.Is(err, common.ErrNoYieldRates):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error пишет ошибку со статусом из StatusFor.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	Fail(w, r, StatusFor(err), err)
}

// Fail пишет ошибку с явным статусом. Внутренние ошибки не раскрываются клиенту.
func Fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := ErrorBody{Error: err.Error()}

	var rejected receiptCarrier
	if errors.As(err, &rejected) {
		body.Receipt = rejected.RejectedReceipt()
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Ошибка обработки запроса")
		body.Error = "внутренняя ошибка"
		body.Receipt = nil
	}
	JSON(w, status, body)
}
