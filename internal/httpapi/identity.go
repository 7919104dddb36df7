package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// AccountHeader — заголовок с id аккаунта. Его выставляет шлюз бота,
// который уже проверил пользователя Telegram.
const AccountHeader = "X-Account-ID"

// ErrBadSecret — вебхук пришёл без верного секрета.
var ErrBadSecret = errors.New("неверный секрет вебхука")

type ctxKey int

const (
	accountKey ctxKey = iota
	adminKey
)

// Authenticator проверяет токен сессии администратора.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// RequireAccount требует заголовок X-Account-ID с положительным id.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(AccountHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			Fail(w, r, http.StatusUnauthorized, fmt.Errorf("%w: нужен заголовок %s", ErrBadRequest, AccountHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, id)))
	})
}

// RequireAdmin проверяет Authorization: Bearer <токен сессии>.
func RequireAdmin(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey, id)))
		})
	}
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// AccountID возвращает id аккаунта, выставленный RequireAccount.
func AccountID(ctx context.Context) int64 {
	id, _ := ctx.Value(accountKey).(int64)
	return id
}

// AdminID возвращает id администратора, выставленный RequireAdmin.
func AdminID(ctx context.Context) int64 {
	id, _ := ctx.Value(adminKey).(int64)
	return id
}

// PathInt64 читает числовой параметр пути.
func PathInt64(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: ожидался положительный id, получено %q", ErrBadRequest, raw)
	}
	return id, nil
}

// RequireSecret проверяет общий секрет вебхука в заголовке X-Webhook-Secret.
// Пустой секрет отключает проверку.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				Fail(w, r, http.StatusUnauthorized, ErrBadSecret)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
