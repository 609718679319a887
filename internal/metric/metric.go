// Package metric parses and validates individual time-series samples off
// the wire, in the OpenTSDB-compatible "put" line format:
//
//	<name> <timestamp-seconds> <value> <k=v> [<k=v> ...]
//
// A Metric is immutable once constructed; construction is fallible and the
// failure reason is carried on the value itself (mirrors a parser that
// can't throw).
package metric

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric is one parsed, validated sample.
type Metric struct {
	Name      string
	Timestamp uint64
	Value     float64
	Tags      string

	ok  bool
	err error
}

// Parse splits line into name, timestamp, value and a tags remainder.
// Per spec §4.1, splitting happens on the first three spaces only -
// everything after the third space (including embedded spaces) is the
// tags string.
func Parse(line string) Metric {
	fields := splitN3(line)

	var m Metric
	m.Name = fields[0]

	// strtoull-style leniency: an empty token parses as zero rather than
	// an error, matching the original parser's trailing-garbage check.
	if fields[1] != "" {
		ts, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			m.err = fmt.Errorf("invalid timestamp format: %q", fields[1])
			return m
		}
		m.Timestamp = ts
	}

	if fields[2] != "" {
		val, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			m.err = fmt.Errorf("invalid value: %q", fields[2])
			return m
		}
		m.Value = val
	}

	m.Tags = fields[3]

	if m.Name == "" || m.Tags == "" {
		m.err = fmt.Errorf("missing field: name and tags must be non-empty")
		return m
	}

	m.ok = true
	return m
}

// splitN3 splits s on the first three spaces, returning exactly 4 elements
// (name, timestamp token, value token, remainder). Missing fields are "".
func splitN3(s string) [4]string {
	var out [4]string
	rest := s
	for i := 0; i < 3; i++ {
		idx := strings.IndexByte(rest, ' ')
		if idx < 0 {
			out[i] = rest
			rest = ""
			break
		}
		out[i] = rest[:idx]
		rest = rest[idx+1:]
	}
	out[3] = rest
	return out
}

// New builds a Metric from already-parsed primitive fields, applying the
// same validity check as Parse (spec §4.1's "dedicated constructor").
func New(name string, timestamp uint64, value float64, tags string) Metric {
	m := Metric{Name: name, Timestamp: timestamp, Value: value, Tags: tags}
	if name == "" || tags == "" {
		m.err = fmt.Errorf("missing field: name and tags must be non-empty")
		return m
	}
	m.ok = true
	return m
}

// Valid reports whether the metric parsed successfully and, if not,
// returns the diagnostic message describing why.
func (m Metric) Valid() (bool, string) {
	if m.ok {
		return true, ""
	}
	if m.err != nil {
		return false, m.err.Error()
	}
	return false, "unknown error"
}

// Line formats the metric back into wire form, inverse of Parse.
func (m Metric) Line() string {
	return fmt.Sprintf("%s %d %s %s", m.Name, m.Timestamp, strconv.FormatFloat(m.Value, 'g', -1, 64), m.Tags)
}
