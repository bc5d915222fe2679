package geometry

import (
	"fmt"
	"strings"
)

// Unit is a linear distance unit accepted in buffer and radius specs.
type Unit string

const (
	Meter     Unit = "m"
	Kilometer Unit = "km"
	Mile      Unit = "mi"
	Foot      Unit = "ft"
)

var metersPer = map[Unit]float64{
	Meter:     1,
	Kilometer: 1000,
	Mile:      1609.344,
	Foot:      0.3048,
}

// ParseUnit normalizes a unit name. Long forms such as "km", "kilometer"
// and "kilometers" are accepted.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "meter", "meters", "metre", "metres":
		return Meter, nil
	case "km", "kilometer", "kilometers", "kilometre", "kilometres":
		return Kilometer, nil
	case "mi", "mile", "miles":
		return Mile, nil
	case "ft", "foot", "feet":
		return Foot, nil
	default:
		return "", fmt.Errorf("unknown distance unit %q", s)
	}
}

// ToMeters converts distance in unit to meters.
func ToMeters(distance float64, unit string) (float64, error) {
	u, err := ParseUnit(unit)
	if err != nil {
		return 0, err
	}
	if distance < 0 {
		return 0, fmt.Errorf("distance must not be negative, got %g", distance)
	}
	return distance * metersPer[u], nil
}
