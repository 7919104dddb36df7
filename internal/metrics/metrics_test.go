package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/panels", "200", 0.02)
	RecordHTTPRequest("POST", "/api/panels", "200", 0.03)
	RecordHTTPRequest("POST", "/api/panels", "409", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/panels", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/panels", "409")))
}

func TestRecordLedgerOperation(t *testing.T) {
	LedgerOperationsTotal.Reset()

	RecordLedgerOperation("mint", nil)
	RecordLedgerOperation("mint", errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("mint", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("mint", "error")))
}

func TestRecordSupplyChange(t *testing.T) {
	SupplyChangesTotal.Reset()

	RecordSupplyChange("MINT", "main", 500000)
	RecordSupplyChange("MINT", "main", 1)

	assert.Equal(t, float64(500001), testutil.ToFloat64(SupplyChangesTotal.WithLabelValues("MINT", "main")))
}

func TestRecordJobRun(t *testing.T) {
	JobRunsTotal.Reset()

	RecordJobRun("accrual", nil)
	RecordJobRun("accrual", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(JobRunsTotal.WithLabelValues("accrual", "ok")))
}

func TestRecordWithdrawalTransition(t *testing.T) {
	WithdrawalTransitionsTotal.Reset()

	RecordWithdrawalTransition("TON", "pending")
	RecordWithdrawalTransition("TON", "sent")
	RecordWithdrawalTransition("USDT", "pending")

	assert.Equal(t, float64(1), testutil.ToFloat64(WithdrawalTransitionsTotal.WithLabelValues("TON", "sent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WithdrawalTransitionsTotal.WithLabelValues("USDT", "pending")))
}
