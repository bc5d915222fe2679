package operators

import (
	"fmt"
	"math"
	"slices"

	"github.com/guianderson/terrama2/internal/errors"
)

// Statistic is a zonal or history aggregate.
type Statistic string

const (
	Count             Statistic = "count"
	Min               Statistic = "min"
	Max               Statistic = "max"
	Mean              Statistic = "mean"
	Median            Statistic = "median"
	StandardDeviation Statistic = "standard_deviation"
)

// Statistics lists the aggregates in vocabulary order.
func Statistics() []Statistic {
	return []Statistic{Count, Min, Max, Mean, Median, StandardDeviation}
}

// ErrEmptyInput is returned by every aggregate except count when no
// numeric value is left after dropping missing readings.
var ErrEmptyInput = errors.NewStd("aggregate over empty numeric input")

// Aggregate computes stat over values. count is len(values).
func Aggregate(stat Statistic, values []float64, mode DeviationMode) (float64, error) {
	if stat == Count {
		return float64(len(values)), nil
	}
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	switch stat {
	case Min:
		return slices.Min(values), nil
	case Max:
		return slices.Max(values), nil
	case Mean:
		return mean(values), nil
	case Median:
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		n := len(sorted)
		if n%2 == 1 {
			return sorted[n/2], nil
		}
		return (sorted[n/2-1] + sorted[n/2]) / 2, nil
	case StandardDeviation:
		n := float64(len(values))
		if mode == Sample {
			if len(values) < 2 {
				return 0, fmt.Errorf("sample standard deviation needs at least 2 values: %w", ErrEmptyInput)
			}
			n--
		}
		m := mean(values)
		var sum float64
		for _, v := range values {
			sum += (v - m) * (v - m)
		}
		return math.Sqrt(sum / n), nil
	default:
		return 0, fmt.Errorf("unknown statistic %q", stat)
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
