package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	q, err := Parse("avg:sys.cpu{host=a}")
	require.NoError(t, err)
	assert.Equal(t, "sys.cpu", q.Metric)
	assert.Contains(t, q.SQL, "avg(value)")
	assert.Contains(t, q.SQL, "timestamp >= ? AND timestamp <= ?")
	assert.Contains(t, q.SQL, "tags LIKE '%host=a%'")
	assert.Empty(t, q.Downsampler)
}

func TestParseWithDownsampler(t *testing.T) {
	q, err := Parse("sum:sys.cpu{host=a}:10s-avg")
	require.NoError(t, err)
	assert.Equal(t, "10s-avg", q.Downsampler)
}

func TestParseWildcardFilter(t *testing.T) {
	q, err := Parse("max:sys.cpu{host=web*}")
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "tags LIKE '%host=web%%'")
}

func TestParseAlternationFilter(t *testing.T) {
	q, err := Parse("min:sys.cpu{host=a|b|c}")
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "tags LIKE '%host=a%' OR tags LIKE '%host=b%' OR tags LIKE '%host=c%'")
}

func TestParseMultipleFilters(t *testing.T) {
	q, err := Parse("avg:sys.cpu{host=a,rack=3}")
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "tags LIKE '%host=a%'")
	assert.Contains(t, q.SQL, "tags LIKE '%rack=3%'")
}

func TestParseUnknownAggregator(t *testing.T) {
	_, err := Parse("bogus:sys.cpu{host=a}")
	require.Error(t, err)
	var me *ErrMalformed
	require.ErrorAs(t, err, &me)
}

func TestParseMissingBraces(t *testing.T) {
	_, err := Parse("avg:sys.cpu")
	require.Error(t, err)
}

func TestParseEmptyFilterBlock(t *testing.T) {
	_, err := Parse("avg:sys.cpu{}")
	require.Error(t, err)
}

func TestParseEmptyMetricName(t *testing.T) {
	_, err := Parse("avg:{host=a}")
	require.Error(t, err)
}

func TestParseBadFilterFormat(t *testing.T) {
	_, err := Parse("avg:sys.cpu{hostonly}")
	require.Error(t, err)
}

func TestParseTooFewSegments(t *testing.T) {
	_, err := Parse("avg")
	require.Error(t, err)
}
