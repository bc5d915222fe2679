package operators

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/geometry"
)

var windowPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(s|sec|m|min|h|d|w)$`)

var windowUnits = map[string]time.Duration{
	"s":   time.Second,
	"sec": time.Second,
	"m":   time.Minute,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   24 * time.Hour,
	"w":   7 * 24 * time.Hour,
}

// ParseWindow parses a lookback such as "30min", "6h", "2d" or "1w".
func ParseWindow(s string) (time.Duration, error) {
	m := windowPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	d := time.Duration(n * float64(windowUnits[m[2]]))
	if d <= 0 {
		return 0, fmt.Errorf("window %q must be positive", s)
	}
	return d, nil
}

// DeviationMode selects the standard deviation formula.
type DeviationMode int

const (
	Population DeviationMode = iota
	Sample
)

// ParseDeviationMode reads the STANDARD_DEVIATION analysis metadata.
// Absent means population.
func ParseDeviationMode(meta map[string]string) (DeviationMode, error) {
	v, ok := meta[catalog.MetaStandardDeviation]
	if !ok || v == "" {
		return Population, nil
	}
	switch strings.ToLower(v) {
	case "population":
		return Population, nil
	case "sample":
		return Sample, nil
	default:
		return Population, fmt.Errorf("%s must be population or sample, got %q", catalog.MetaStandardDeviation, v)
	}
}

// ParseInfluence reads the INFLUENCE_* analysis metadata. declared is false
// when none of the keys is present.
func ParseInfluence(meta map[string]string) (rule geometry.InfluenceRule, declared bool, err error) {
	rawType, hasType := meta[catalog.MetaInfluenceType]
	rawRadius, hasRadius := meta[catalog.MetaInfluenceRadius]
	unit, hasUnit := meta[catalog.MetaInfluenceRadiusUnit]
	if !hasType && !hasRadius && !hasUnit {
		return rule, false, nil
	}
	if !hasType {
		return rule, true, fmt.Errorf("%s is required with influence metadata", catalog.MetaInfluenceType)
	}

	t, err := strconv.Atoi(strings.TrimSpace(rawType))
	if err != nil || t < int(geometry.InfluenceRadiusTouches) || t > int(geometry.InfluenceRegion) {
		return rule, true, fmt.Errorf("%s must be 1, 2 or 3, got %q", catalog.MetaInfluenceType, rawType)
	}
	rule.Type = geometry.InfluenceType(t)
	if rule.Type == geometry.InfluenceRegion {
		return rule, true, nil
	}

	if !hasRadius {
		return rule, true, fmt.Errorf("%s is required for influence type %d", catalog.MetaInfluenceRadius, t)
	}
	radius, err := strconv.ParseFloat(strings.TrimSpace(rawRadius), 64)
	if err != nil || radius < 0 {
		return rule, true, fmt.Errorf("%s must be a non-negative number, got %q", catalog.MetaInfluenceRadius, rawRadius)
	}
	if unit == "" {
		unit = string(geometry.Kilometer)
	}
	meters, err := geometry.ToMeters(radius, unit)
	if err != nil {
		return rule, true, fmt.Errorf("%s: %w", catalog.MetaInfluenceRadiusUnit, err)
	}
	rule.Radius = meters
	return rule, true, nil
}

// BufferSpec describes a zone around the current row's geometry.
type BufferSpec struct {
	Type     geometry.BufferType
	Distance float64
	Unit     string
}

func (b BufferSpec) String() string {
	if b.Type == geometry.BufferNone {
		return "Buffer()"
	}
	return fmt.Sprintf("Buffer(%s, %g, %q)", b.Type, b.Distance, b.Unit)
}
