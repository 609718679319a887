// Package downsample implements the stateless post-query bucketing
// transform described in spec §4.3: given a dense, time-ascending series
// and a "<N><unit>-<method>" spec, it reduces the series into one point per
// bucket.
package downsample

import (
	"strconv"
	"strings"
)

// Point is one (timestamp, value) sample, time-ascending within a series.
type Point struct {
	Timestamp uint64
	Value     float64
}

// Method is an aggregation reducer applied within a bucket.
type Method int

const (
	MethodNone Method = iota
	MethodAvg
	MethodSum
	MethodMin
	MethodMax
)

// Downsampler holds a parsed spec string, ready to Decimate any number of
// series. A malformed or empty spec parses to the identity transform.
type Downsampler struct {
	method   Method
	interval uint64 // 0 means "collapse the whole range to one point"
}

// New parses a downsampler spec string. Grammar: "<N><unit>-<method>" where
// unit in {s(implicit),m,h,d} or the literal "all" in place of "<N><unit>".
// An empty or malformed spec yields the identity Downsampler.
func New(spec string) Downsampler {
	if spec == "" {
		return Downsampler{method: MethodNone}
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Downsampler{method: MethodNone}
	}

	d := Downsampler{}

	switch parts[1] {
	case "avg":
		d.method = MethodAvg
	case "sum":
		d.method = MethodSum
	case "min":
		d.method = MethodMin
	case "max":
		d.method = MethodMax
	default:
		return Downsampler{method: MethodNone}
	}

	if parts[0] == "all" {
		d.interval = 0
		return d
	}

	// split the leading digits from the unit suffix
	i := 0
	for i < len(parts[0]) && parts[0][i] >= '0' && parts[0][i] <= '9' {
		i++
	}
	if i == 0 {
		return Downsampler{method: MethodNone}
	}
	n, err := strconv.ParseUint(parts[0][:i], 10, 64)
	if err != nil {
		return Downsampler{method: MethodNone}
	}

	unit := parts[0][i:]
	switch {
	case unit == "" || unit[0] == 's':
		d.interval = n
	case unit[0] == 'm':
		d.interval = n * 60
	case unit[0] == 'h':
		d.interval = n * 60 * 60
	case unit[0] == 'd':
		d.interval = n * 60 * 60 * 24
	default:
		return Downsampler{method: MethodNone}
	}

	return d
}

// Decimate reduces input into output per spec §4.3's sliding-window group
// semantics: a group closes on the first point whose timestamp advances at
// least `interval` past the group's start timestamp; the aggregate carries
// the group-start timestamp, and a trailing partial group is always
// emitted. Returns the output points.
func (d Downsampler) Decimate(input []Point) []Point {
	if d.method == MethodNone {
		out := make([]Point, len(input))
		copy(out, input)
		return out
	}

	if len(input) == 0 {
		return nil
	}

	if d.interval == 0 {
		return []Point{{
			Timestamp: input[0].Timestamp,
			Value:     aggregate(d.method, input),
		}}
	}

	var out []Point
	start := 0
	for start < len(input) {
		groupStart := input[start].Timestamp
		next := start
		for next < len(input) && input[next].Timestamp-groupStart < d.interval {
			next++
		}
		out = append(out, Point{
			Timestamp: groupStart,
			Value:     aggregate(d.method, input[start:next]),
		})
		start = next
	}
	return out
}

func aggregate(m Method, pts []Point) float64 {
	switch m {
	case MethodAvg:
		if len(pts) == 0 {
			return 0
		}
		var sum float64
		for _, p := range pts {
			sum += p.Value
		}
		return sum / float64(len(pts))
	case MethodSum:
		var sum float64
		for _, p := range pts {
			sum += p.Value
		}
		return sum
	case MethodMin:
		if len(pts) == 0 {
			return 0
		}
		min := pts[0].Value
		for _, p := range pts[1:] {
			if p.Value < min {
				min = p.Value
			}
		}
		return min
	case MethodMax:
		if len(pts) == 0 {
			return 0
		}
		max := pts[0].Value
		for _, p := range pts[1:] {
			if p.Value > max {
				max = p.Value
			}
		}
		return max
	default:
		return 0
	}
}
