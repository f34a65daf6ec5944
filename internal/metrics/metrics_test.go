package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/storage"
)

func TestCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	observe := m.TxObserver()
	observe(storage.OutcomeConflict)
	observe(storage.OutcomeConflict)
	observe(storage.OutcomeCommitted)
	require.Equal(t, 2.0, testutil.ToFloat64(m.txAttempts.WithLabelValues("conflict")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.txAttempts.WithLabelValues("committed")))

	m.ObserveRPC("/teamsync.v1.TeamService/JoinTeam", "ok", 10*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.rpcRequests.WithLabelValues("/teamsync.v1.TeamService/JoinTeam", "ok")))

	done := m.Subscribed("schedules")
	require.Equal(t, 1.0, testutil.ToFloat64(m.subscriptions.WithLabelValues("schedules")))
	done()
	require.Equal(t, 0.0, testutil.ToFloat64(m.subscriptions.WithLabelValues("schedules")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.Nil(t, m.TxObserver())
	m.ObserveRPC("p", "ok", time.Second)
	m.Subscribed("team")()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRPC("/teamsync.v1.AuthService/Login", "unauthenticated", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `teamsync_rpc_requests_total{code="unauthenticated",procedure="/teamsync.v1.AuthService/Login"} 1`)
}
