package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakinnaird/stsdb/internal/downsample"
	"github.com/jakinnaird/stsdb/internal/metric"
	"github.com/jakinnaird/stsdb/internal/query"
	"github.com/jakinnaird/stsdb/internal/stats"
)

func newTestDatastore(t *testing.T) (*Datastore, string) {
	t.Helper()
	dir := t.TempDir()
	st := stats.New(nil)
	d := New(dir, "tsdb", "testhost", st)
	require.NoError(t, d.Start())
	return d, dir
}

func TestQueueAndWriteCreatesFile(t *testing.T) {
	d, dir := newTestDatastore(t)
	defer d.Stop()

	d.QueueMetric(metric.New("sys.cpu", 1700000000, 0.5, "host=a"))
	d.Process()

	path := filepath.Join(dir, "sys.cpu.tsdb")
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestPrepareQueryMissingMetricReturnsFalse(t *testing.T) {
	d, _ := newTestDatastore(t)
	defer d.Stop()

	q, err := query.Parse("avg:does.not.exist{host=a}")
	require.NoError(t, err)

	_, ok := d.PrepareQuery(q)
	assert.False(t, ok)
}

func TestQueryRoundTrip(t *testing.T) {
	d, _ := newTestDatastore(t)
	defer d.Stop()

	d.QueueMetric(metric.New("sys.cpu", 1700000000, 0.5, "host=a"))
	d.QueueMetric(metric.New("sys.cpu", 1700000001, 0.7, "host=a"))
	d.Process()

	q, err := query.Parse("avg:sys.cpu{host=*}")
	require.NoError(t, err)

	rs, ok := d.PrepareQuery(q)
	require.True(t, ok)
	defer rs.Close()

	var out []downsample.Point
	ok = rs.Execute(1699999999, 1700000002, &out)
	require.True(t, ok)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(1700000000), out[0].Timestamp)
	assert.Equal(t, 0.5, out[0].Value)
}

func TestStopDrainsQueue(t *testing.T) {
	d, dir := newTestDatastore(t)

	d.QueueMetric(metric.New("m.a", 100, 1.0, "host=a"))
	d.QueueMetric(metric.New("m.a", 101, 2.0, "host=a"))
	d.Stop()

	assert.Equal(t, int64(0), d.QueueDepth())

	path := filepath.Join(dir, "m.a.tsdb")
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestRestartReopensExistingStore(t *testing.T) {
	dir := t.TempDir()
	st := stats.New(nil)

	d1 := New(dir, "tsdb", "testhost", st)
	require.NoError(t, d1.Start())
	d1.QueueMetric(metric.New("m.a", 100, 1.0, "host=a"))
	d1.QueueMetric(metric.New("m.a", 101, 2.0, "host=a"))
	d1.Stop()

	d2 := New(dir, "tsdb", "testhost", st)
	require.NoError(t, d2.Start())
	defer d2.Stop()

	q, err := query.Parse("sum:m.a{host=a}")
	require.NoError(t, err)
	rs, ok := d2.PrepareQuery(q)
	require.True(t, ok)
	defer rs.Close()

	var out []downsample.Point
	ok = rs.Execute(0, 1000, &out)
	require.True(t, ok)
	require.Len(t, out, 2)
}
