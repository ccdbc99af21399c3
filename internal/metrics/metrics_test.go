package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ExpensesCreated("single", 1)
	m.ExpensesCreated("bulk", 3)
	m.ExpensesDeleted(2)
	m.StatsCache(true)
	m.StatsCache(false)
	m.StatsCache(false)
	m.ObserveHTTP(http.MethodGet, "GET /api/expenses", 200, 10*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.created.WithLabelValues("bulk")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.statsCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "GET /api/expenses", "200")))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ExpensesDeleted(1)
	m.ObserveHTTP(http.MethodPost, "", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.True(t, strings.Contains(out, "expenses_deleted_total 1"))
	assert.True(t, strings.Contains(out, `route="unmatched"`))
}
