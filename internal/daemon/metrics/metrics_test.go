package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAcceptsEverything(t *testing.T) {
	r := NewNoop()
	r.ProbeObserved("git", OutcomeOK, time.Second)
	r.CacheLookup("git", true)
	r.LaunchObserved(OutcomeFailed)
	r.ProcessesKilled(3)
	r.ProxyCall("list_memories", OutcomeOK)
}

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus("")

	p.CacheLookup("metadata", true)
	p.CacheLookup("metadata", true)
	p.CacheLookup("metadata", false)
	p.LaunchObserved(OutcomeOK)
	p.ProcessesKilled(2)
	p.ProcessesKilled(0)
	p.ProxyCall("store_memory", OutcomeFailed)
	p.ProbeObserved("port", OutcomeTimeout, 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("metadata", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("metadata", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.launches.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.killed))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.closes))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.proxyCalls.WithLabelValues("store_memory", OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.probeDuration))
}

func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheus("devdash")
	p.LaunchObserved(OutcomeOK)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `devdash_launches_total{outcome="ok"} 1`)
}
