package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

func TestHandlerScrapesRegisteredMetrics(t *testing.T) {
	m := New()
	m.RecordSwapSuccess("orca", "SOL", "SOL/USDC", 0.25, 10)
	m.RecordUserOperation("order.create")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "swap_duration_seconds")
	assert.Contains(t, body, "swap_volume_total")
	assert.Contains(t, body, "swap_success_total")
	assert.Contains(t, body, "user_operations_total")
}

func TestRecordSwapFailureIncrementsFailureNotSuccess(t *testing.T) {
	m := New()
	m.RecordSwapFailure("orca", "SOL", "transient", 0.1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `swap_failure_total{error_type="transient",network="SOL",venue="orca"} 1`)
	assert.NotContains(t, body, "swap_success_total")
}

func TestRecordAPICallOnlyCountsErrorsWhenErrorTypeSet(t *testing.T) {
	m := New()
	m.RecordAPICall("orders.create", "POST", 0.01, "")
	m.RecordAPICall("orders.create", "POST", 0.02, "validation")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `api_errors_total{endpoint="orders.create",error_type="validation"} 1`)
}

func TestSampleUsersSetsActiveUsersGauge(t *testing.T) {
	db, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.CreateUser(&storage.User{ID: "user-1", Handle: "alice", CreatedAt: time.Now()}))

	m := New()
	s := NewSampler(m, db, t.TempDir(), logging.Default())
	s.sampleUsers()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "active_users 1")
}
