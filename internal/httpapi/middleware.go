package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"efhc.app/ledger/internal/metrics"
)

// Recover перехватывает панику обработчика, логирует стек и отвечает 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"panic":     fmt.Sprintf("%v", rec),
					"stack":     string(debug.Stack()),
					"path":      r.URL.Path,
				}).Error("ПАНИКА в обработчике, восстановлено")
				JSON(w, http.StatusInternalServerError, ErrorBody{Error: "внутренняя ошибка"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Logger логирует запрос и пишет метрики HTTP. Метка route берётся
// из шаблона chi, чтобы id в пути не раздували число серий.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), took.Seconds())

		log.WithFields(log.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"took":       took.Round(time.Microsecond),
			"account_id": r.Header.Get(AccountHeader),
			"request_id": chimw.GetReqID(r.Context()),
		}).Debug("HTTP-запрос")
	})
}
