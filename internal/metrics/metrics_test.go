package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCounters(t *testing.T) {
	m := New()
	m.Inc(PairingsEstablished)
	m.Add(RelayForwarded, 3)
	m.Add(RelayForwarded, 0)

	assert.Equal(t, uint64(1), m.Get(PairingsEstablished))
	assert.Equal(t, uint64(3), m.Get(RelayForwarded))
	assert.Equal(t, uint64(0), m.Get(PartnerLeft))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.events.WithLabelValues(RelayForwarded)))
}

func TestSetPool(t *testing.T) {
	m := New()
	m.SetPool(5, 1, 2)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.live))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.waiting))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.pairs))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(PartnerLeft)
	m.SetPool(1, 1, 1)
	m.AddDroppedBytes(10)
	assert.Equal(t, uint64(0), m.Get(PartnerLeft))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Inc(PairingsPending)
	m.AddDroppedBytes(42)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `swapy_relay_events_total{event="pairings_pending"} 1`)
	assert.Contains(t, string(body), `swapy_relay_send_queue_dropped_bytes_total 42`)
	assert.Contains(t, string(body), "go_goroutines")
}
