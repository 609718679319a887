package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakinnaird/stsdb/internal/metric"
	"github.com/jakinnaird/stsdb/internal/stats"
	"github.com/jakinnaird/stsdb/internal/store"
)

func metricFor(name string, ts uint64, value float64, tags string) metric.Metric {
	return metric.New(name, ts, value, tags)
}

func newTestServer(t *testing.T) (*Server, *store.Datastore) {
	t.Helper()
	dir := t.TempDir()
	st := stats.New(nil)
	ds := store.New(dir, "tsdb", "testhost", st)
	require.NoError(t, ds.Start())
	t.Cleanup(ds.Stop)

	s := New("127.0.0.1", "0", ds, st)
	return s, ds
}

func TestAggregators(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/aggregators", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `["avg","min","max","sum"]`, w.Body.String())
}

func TestPutValidLine(t *testing.T) {
	s, ds := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/put", strings.NewReader("sys.cpu 1700000000 0.5 host=a\n"))
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	ds.Process()
	assert.Equal(t, int64(0), ds.QueueDepth())
}

func TestPutInvalidLineReturns400(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/put", strings.NewReader("bad line\n"))
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPutNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/put", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Puts/second")
	assert.Equal(t, "5", w.Header().Get("Refresh"))
}

func TestQueryEndToEnd(t *testing.T) {
	s, ds := newTestServer(t)

	oldNow := nowFn
	nowFn = func() int64 { return 1700000100 }
	defer func() { nowFn = oldNow }()

	ds.QueueMetric(metricFor("sys.cpu", 1700000000, 0.5, "host=a"))
	ds.QueueMetric(metricFor("sys.cpu", 1700000010, 0.7, "host=a"))
	ds.Process()

	req := httptest.NewRequest(http.MethodGet, "/api/query?start=3600-ago&end=0-ago&m=avg:sys.cpu{host=*}:all-avg", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"metric":"sys.cpu"`)
	assert.Contains(t, w.Body.String(), `"1700000000":0.6`)
}

func TestParseRelTime(t *testing.T) {
	assert.Equal(t, int64(300), parseRelTime("5m-ago"))
	assert.Equal(t, int64(3600), parseRelTime("1h-ago"))
	assert.Equal(t, int64(172800), parseRelTime("2d-ago"))
	assert.Equal(t, int64(123), parseRelTime("123"))
	assert.Equal(t, int64(0), parseRelTime("10m"))
}
