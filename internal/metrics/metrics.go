// Package metrics — счётчики Prometheus для леджера, выгружаются на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efhc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_ledger_operations_total",
			Help: "Ledger operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	SupplyChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_supply_changes_milli_total",
			Help: "Minted and burned supply in thousandths",
		},
		[]string{"direction", "currency"},
	)

	ExternalEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_external_events_total",
			Help: "External settlement events by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_order_transitions_total",
			Help: "Order state transitions",
		},
		[]string{"kind", "status"},
	)

	AccrualAccountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_accrual_accounts_total",
			Help: "Accounts processed by the daily accrual",
		},
		[]string{"result"},
	)

	DrawsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_draws_settled_total",
			Help: "Settled draws by prize",
		},
		[]string{"prize"},
	)

	WithdrawalTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_withdrawal_transitions_total",
			Help: "Withdrawal request state transitions by asset",
		},
		[]string{"asset", "status"},
	)

	ReferralRewardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_referral_rewards_total",
			Help: "Referral rewards paid to referrers by kind",
		},
		[]string{"kind"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efhc_job_runs_total",
			Help: "Background job runs by job and result",
		},
		[]string{"job", "result"},
	)
)

// Result переводит ошибку в метку result.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

func RecordLedgerOperation(operation string, err error) {
	LedgerOperationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

func RecordSupplyChange(direction, currency string, milli int64) {
	SupplyChangesTotal.WithLabelValues(direction, currency).Add(float64(milli))
}

func RecordExternalEvent(source, outcome string) {
	ExternalEventsTotal.WithLabelValues(source, outcome).Inc()
}

func RecordOrderTransition(kind, status string) {
	OrderTransitionsTotal.WithLabelValues(kind, status).Inc()
}

func RecordAccrual(result string) {
	AccrualAccountsTotal.WithLabelValues(result).Inc()
}

func RecordDrawSettled(prize string) {
	DrawsSettledTotal.WithLabelValues(prize).Inc()
}

func RecordJobRun(job string, err error) {
	JobRunsTotal.WithLabelValues(job, Result(err)).Inc()
}

func RecordWithdrawalTransition(asset, status string) {
	WithdrawalTransitionsTotal.WithLabelValues(asset, status).Inc()
}

func RecordReferralReward(kind string) {
	ReferralRewardsTotal.WithLabelValues(kind).Inc()
}
