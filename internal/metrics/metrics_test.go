package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestResultLabels(t *testing.T) {
	m := NewMetrics()

	m.ObserveContractAction("createTask", nil)
	m.ObserveContractAction("createTask", lib.WrapError(lib.ErrUserRejected, errors.New("denied")))
	m.ObserveContractAction("createTask", errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("createTask", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("createTask", "UserRejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("createTask", "error")))
}

func TestSetTaskCountsReplacesStatuses(t *testing.T) {
	m := NewMetrics()

	m.SetTaskCounts("local", map[string]int{"available": 2, "paid": 1})
	m.SetTaskCounts("local", map[string]int{"paid": 3})
	m.SetTaskCounts("chain", map[string]int{"available": 5})

	require.Equal(t, 2, testutil.CollectAndCount(m.tasks))
	require.Equal(t, 3.0, testutil.ToFloat64(m.tasks.WithLabelValues("local", "paid")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveSessionChange("connected")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `edubounty_session_changes_total{kind="connected"} 1`)
}
