package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	m := Parse("sys.cpu 1700000000 0.5 host=a")
	ok, errStr := m.Valid()
	require.True(t, ok, errStr)
	assert.Equal(t, "sys.cpu", m.Name)
	assert.Equal(t, uint64(1700000000), m.Timestamp)
	assert.Equal(t, 0.5, m.Value)
	assert.Equal(t, "host=a", m.Tags)
}

func TestParseTagsWithSpaces(t *testing.T) {
	m := Parse("sys.cpu 1700000000 0.5 host=a rack=3")
	ok, _ := m.Valid()
	require.True(t, ok)
	assert.Equal(t, "host=a rack=3", m.Tags)
}

func TestParseInvalidTimestamp(t *testing.T) {
	m := Parse("sys.cpu 17x00 0.5 host=a")
	ok, msg := m.Valid()
	require.False(t, ok)
	assert.Contains(t, msg, "timestamp")
}

func TestParseInvalidValue(t *testing.T) {
	m := Parse("sys.cpu 1700000000 0.5x host=a")
	ok, msg := m.Valid()
	require.False(t, ok)
	assert.Contains(t, msg, "value")
}

func TestParseMissingTags(t *testing.T) {
	m := Parse("sys.cpu 1700000000 0.5 ")
	ok, msg := m.Valid()
	require.False(t, ok)
	assert.Contains(t, msg, "missing field")
}

func TestParseMissingName(t *testing.T) {
	m := Parse(" 1700000000 0.5 host=a")
	ok, _ := m.Valid()
	require.False(t, ok)
}

func TestNewConstructor(t *testing.T) {
	m := New("sys.cpu", 100, 1.5, "host=a")
	ok, _ := m.Valid()
	require.True(t, ok)

	m2 := New("", 100, 1.5, "host=a")
	ok2, _ := m2.Valid()
	require.False(t, ok2)
}

func TestRoundTrip(t *testing.T) {
	original := New("sys.cpu", 1700000000, 0.5, "host=a")
	line := original.Line()
	reparsed := Parse(line)
	ok, errStr := reparsed.Valid()
	require.True(t, ok, errStr)
	assert.Equal(t, original.Name, reparsed.Name)
	assert.Equal(t, original.Timestamp, reparsed.Timestamp)
	assert.Equal(t, original.Value, reparsed.Value)
	assert.Equal(t, original.Tags, reparsed.Tags)
}
