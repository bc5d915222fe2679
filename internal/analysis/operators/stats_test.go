package operators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/geometry"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	values := []float64{4, 1, 3, 2}
	tests := []struct {
		stat Statistic
		mode DeviationMode
		want float64
	}{
		{Count, Population, 4},
		{Min, Population, 1},
		{Max, Population, 4},
		{Mean, Population, 2.5},
		{Median, Population, 2.5},
		{StandardDeviation, Population, 1.118033988749895},
		{StandardDeviation, Sample, 1.2909944487358056},
	}
	for _, tt := range tests {
		t.Run(string(tt.stat), func(t *testing.T) {
			t.Parallel()
			got, err := Aggregate(tt.stat, values, tt.mode)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	median, err := Aggregate(Median, []float64{5, 1, 9}, Population)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, median, 1e-12)
	assert.Equal(t, []float64{4, 1, 3, 2}, values, "input is not reordered")
}

func TestAggregateEmptyInput(t *testing.T) {
	t.Parallel()

	count, err := Aggregate(Count, nil, Population)
	require.NoError(t, err)
	assert.Zero(t, count)

	for _, stat := range Statistics()[1:] {
		_, err := Aggregate(stat, nil, Population)
		assert.ErrorIs(t, err, ErrEmptyInput, "%s over nothing must fail", stat)
	}

	_, err = Aggregate(StandardDeviation, []float64{1}, Sample)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestParseWindow(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"30min": 30 * time.Minute,
		"6h":    6 * time.Hour,
		"2d":    48 * time.Hour,
		"1w":    7 * 24 * time.Hour,
		"1.5h":  90 * time.Minute,
		" 10 s": 10 * time.Second,
	}
	for in, want := range cases {
		got, err := ParseWindow(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "2", "d", "-1h", "0h", "3y"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseInfluence(t *testing.T) {
	t.Parallel()

	_, declared, err := ParseInfluence(map[string]string{})
	require.NoError(t, err)
	assert.False(t, declared)

	rule, declared, err := ParseInfluence(map[string]string{
		"INFLUENCE_TYPE": "1", "INFLUENCE_RADIUS": "2", "INFLUENCE_RADIUS_UNIT": "km",
	})
	require.NoError(t, err)
	assert.True(t, declared)
	assert.Equal(t, geometry.InfluenceRadiusTouches, rule.Type)
	assert.InDelta(t, 2000.0, rule.Radius, 1e-9)

	rule, _, err = ParseInfluence(map[string]string{"INFLUENCE_TYPE": "3"})
	require.NoError(t, err)
	assert.Equal(t, geometry.InfluenceRegion, rule.Type)

	bad := []map[string]string{
		{"INFLUENCE_RADIUS": "2"},
		{"INFLUENCE_TYPE": "7", "INFLUENCE_RADIUS": "2"},
		{"INFLUENCE_TYPE": "2"},
		{"INFLUENCE_TYPE": "2", "INFLUENCE_RADIUS": "-1"},
		{"INFLUENCE_TYPE": "2", "INFLUENCE_RADIUS": "1", "INFLUENCE_RADIUS_UNIT": "parsec"},
	}
	for _, meta := range bad {
		_, declared, err := ParseInfluence(meta)
		assert.Error(t, err, "%v", meta)
		assert.True(t, declared)
	}
}

func TestParseDeviationMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseDeviationMode(nil)
	require.NoError(t, err)
	assert.Equal(t, Population, mode)

	mode, err = ParseDeviationMode(map[string]string{"STANDARD_DEVIATION": "Sample"})
	require.NoError(t, err)
	assert.Equal(t, Sample, mode)

	_, err = ParseDeviationMode(map[string]string{"STANDARD_DEVIATION": "both"})
	assert.Error(t, err)
}
