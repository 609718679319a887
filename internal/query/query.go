// Package query parses the OpenTSDB-like query language described in
// spec §4.2 ("AGG:METRIC{FILTERS}[:DOWNSAMPLER]") into a parameterized SQL
// SELECT built with github.com/Masterminds/squirrel, the way
// internal/repository/jobQuery.go in the teacher assembles filtered
// sq.Select statements.
package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrMalformed is returned (wrapped with detail) for any input that does
// not match the grammar in spec §4.2.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return "malformed query: " + e.Reason
}

// Query is the parsed result: a ready-to-prepare SQL statement plus the
// metric name it targets and an opaque downsampler spec string.
type Query struct {
	Metric      string
	SQL         string
	Downsampler string
}

var allowedAggregators = map[string]bool{
	"avg": true, "sum": true, "min": true, "max": true,
}

// Parse builds a Query from the query-language text. Fails with
// *ErrMalformed when fewer than two colon-segments exist, when braces are
// missing/unbalanced, when the filter set is empty, or when any filter has
// other than exactly one '='.
func Parse(text string) (Query, error) {
	segments := strings.Split(text, ":")
	if len(segments) < 2 {
		return Query{}, &ErrMalformed{Reason: "expected at least AGG:METRIC{FILTERS}"}
	}

	agg := segments[0]
	if !allowedAggregators[agg] {
		return Query{}, &ErrMalformed{Reason: fmt.Sprintf("unknown aggregator %q", agg)}
	}

	ob := strings.IndexByte(segments[1], '{')
	cb := strings.IndexByte(segments[1], '}')
	if ob < 0 || cb < 0 || cb < ob {
		return Query{}, &ErrMalformed{Reason: "a {filter} block is required"}
	}

	metricName := segments[1][:ob]
	if metricName == "" {
		return Query{}, &ErrMalformed{Reason: "metric name is empty"}
	}

	rawFilters := segments[1][ob+1 : cb]
	if rawFilters == "" {
		return Query{}, &ErrMalformed{Reason: "empty filter block"}
	}

	filters := strings.Split(rawFilters, ",")

	// The two window-bound placeholders are left as literal "?" markers:
	// they are bound later, per-Execute, against the prepared statement
	// (spec §4.5), not filled in by squirrel here. Tag filters, by
	// contrast, are baked into the SQL text as literals the way the
	// original query builder does ("tags like '%k=v%'") rather than as
	// bound parameters.
	builder := sq.Select("timestamp", fmt.Sprintf("%s(value) as value", agg)).
		From("METRIC").
		Where("(timestamp >= ? AND timestamp <= ?)").
		GroupBy("timestamp")

	anyFilter := false
	for _, filter := range filters {
		filter = strings.ReplaceAll(filter, "*", "%")

		kv := strings.Split(filter, "=")
		if len(kv) != 2 {
			return Query{}, &ErrMalformed{Reason: fmt.Sprintf("filter %q must have exactly one '='", filter)}
		}
		key, value := kv[0], kv[1]

		values := strings.Split(value, "|")
		if len(values) > 1 {
			clauses := make([]string, len(values))
			for i, v := range values {
				clauses[i] = fmt.Sprintf("tags LIKE '%%%s=%s%%'", key, v)
			}
			builder = builder.Where("(" + strings.Join(clauses, " OR ") + ")")
		} else {
			builder = builder.Where(fmt.Sprintf("tags LIKE '%%%s=%s%%'", key, value))
		}
		anyFilter = true
	}
	if !anyFilter {
		return Query{}, &ErrMalformed{Reason: "at least one tag filter is required"}
	}

	sqlText, _, err := builder.ToSql() // args discarded: filters are inlined as literals above
	if err != nil {
		return Query{}, &ErrMalformed{Reason: err.Error()}
	}

	q := Query{
		Metric: metricName,
		SQL:    sqlText,
	}
	if len(segments) >= 3 {
		q.Downsampler = segments[2]
	}
	return q, nil
}
