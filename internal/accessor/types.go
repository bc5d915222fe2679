package accessor

import (
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// TimeWindow bounds the observations a fetch returns.
type TimeWindow struct {
	// Start is the lower bound; zero means unbounded.
	Start time.Time
	// StartExclusive excludes observations stamped exactly at Start.
	// Incremental windows starting at the previous run use it.
	StartExclusive bool
	// End is the inclusive upper bound, normally the execution's reference time.
	End time.Time
	// LatestOnly keeps only the most recent observation per identifier.
	LatestOnly bool
}

// Contains reports whether t falls inside the window bounds.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	if w.Start.IsZero() {
		return true
	}
	if w.StartExclusive {
		return t.After(w.Start)
	}
	return !t.Before(w.Start)
}

// Feature is one identified geometry of a static series.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Attributes map[string]any
}

// GeometrySet is the materialized content of a geometry series.
type GeometrySet struct {
	DataSeriesID int64
	Features     []Feature
}

// Observation is one timestamped row of a dynamic series. Geometry is the
// station position for DCP series and the event location for occurrences.
type Observation struct {
	ID         string
	DataSetID  int64
	Timestamp  time.Time
	Geometry   orb.Geometry
	Attributes map[string]any
}

// ObservationSet is the materialized content of a dynamic series inside a window.
type ObservationSet struct {
	DataSeriesID int64
	Window       TimeWindow
	Rows         []Observation
}

// LastTimestamp returns the most recent row timestamp, or zero when empty.
func (s *ObservationSet) LastTimestamp() time.Time {
	var last time.Time
	for i := range s.Rows {
		if s.Rows[i].Timestamp.After(last) {
			last = s.Rows[i].Timestamp
		}
	}
	return last
}

// Clone returns a copy whose rows and attribute maps can be filtered freely.
func (s *ObservationSet) Clone() *ObservationSet {
	c := &ObservationSet{DataSeriesID: s.DataSeriesID, Window: s.Window, Rows: make([]Observation, len(s.Rows))}
	for i, row := range s.Rows {
		row.Attributes = maps.Clone(row.Attributes)
		c.Rows[i] = row
	}
	return c
}

// Numeric converts an attribute value to float64. Missing, non-numeric
// and NaN values report false.
func Numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// keepLatest reduces rows to the most recent observation per identifier,
// preserving first-seen identifier order.
func keepLatest(rows []Observation) []Observation {
	index := make(map[string]int, len(rows))
	var out []Observation
	for _, row := range rows {
		i, ok := index[row.ID]
		if !ok {
			index[row.ID] = len(out)
			out = append(out, row)
			continue
		}
		if row.Timestamp.After(out[i].Timestamp) {
			out[i] = row
		}
	}
	return out
}
