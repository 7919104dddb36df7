package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"efhc.app/ledger/internal/features/accrual"
	"efhc.app/ledger/internal/features/admin"
	"efhc.app/ledger/internal/features/draws"
	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/features/panels"
	"efhc.app/ledger/internal/features/referrals"
	"efhc.app/ledger/internal/features/settlement"
	"efhc.app/ledger/internal/features/tasks"
	"efhc.app/ledger/internal/features/withdrawals"
	"efhc.app/ledger/internal/httpapi"
)

// Handlers — HTTP-обработчики фич.
type Handlers struct {
	Ledger      *ledger.Handler
	Panels      *panels.Handler
	Settlement  *settlement.Handler
	Draws       *draws.Handler
	Tasks       *tasks.Handler
	Accrual     *accrual.Handler
	Admin       *admin.Handler
	Withdrawals *withdrawals.Handler
	Referrals   *referrals.Handler
}

// RouterConfig — зависимости middleware.
type RouterConfig struct {
	Auth          httpapi.Authenticator
	Limiter       *httpapi.RateLimiter
	WebhookSecret string
}

// NewRouter собирает маршруты:
//
//	/healthz, /metrics
//	/api/...          пользователь (X-Account-ID)
//	/api/webhooks/... платёжный шлюз и наблюдатель блокчейна
//	/api/admin/...    администратор (Bearer-сессия после /api/admin/login)
func NewRouter(h Handlers, rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httpapi.Recover)
	r.Use(httpapi.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpapi.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		if rc.Limiter != nil {
			r.Use(rc.Limiter.Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(httpapi.RequireAccount)
			h.Ledger.RegisterUser(r)
			h.Panels.RegisterUser(r)
			h.Settlement.RegisterUser(r)
			h.Draws.RegisterUser(r)
			h.Tasks.RegisterUser(r)
			h.Withdrawals.RegisterUser(r)
			h.Referrals.RegisterUser(r)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(httpapi.RequireSecret(rc.WebhookSecret))
			h.Settlement.RegisterWebhooks(r)
		})

		r.Route("/admin", func(r chi.Router) {
			h.Admin.RegisterPublic(r)
			r.Group(func(r chi.Router) {
				r.Use(httpapi.RequireAdmin(rc.Auth))
				h.Admin.RegisterAdmin(r)
				h.Ledger.RegisterAdmin(r)
				h.Settlement.RegisterAdmin(r)
				h.Draws.RegisterAdmin(r)
				h.Accrual.RegisterAdmin(r)
				h.Withdrawals.RegisterAdmin(r)
			})
		})
	})
	return r
}
