package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square is roughly 11 km on a side near Cubatão, SP.
var square = orb.Polygon{orb.Ring{
	{-46.50, -23.90}, {-46.40, -23.90}, {-46.40, -23.80}, {-46.50, -23.80}, {-46.50, -23.90},
}}

// 0.01 degree of latitude is about 1.11 km.
var (
	center       = orb.Point{-46.45, -23.85}
	nearInside   = orb.Point{-46.45, -23.8995} // ~55 m inside the south edge
	out1km       = orb.Point{-46.45, -23.909}  // ~1 km south of the edge
	out3km       = orb.Point{-46.45, -23.927}  // ~3 km south of the edge
	northOutside = orb.Point{-46.45, -23.79}   // ~1.1 km north of the edge
)

func TestToMeters(t *testing.T) {
	t.Parallel()

	m, err := ToMeters(2, "km")
	require.NoError(t, err)
	assert.InDelta(t, 2000, m, 1e-9)

	m, err = ToMeters(1, "Miles")
	require.NoError(t, err)
	assert.InDelta(t, 1609.344, m, 1e-9)

	_, err = ToMeters(1, "parsec")
	require.Error(t, err)
	_, err = ToMeters(-1, "m")
	require.Error(t, err)
}

func TestZoneContainsByBufferType(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	cases := []struct {
		kind BufferType
		want map[orb.Point]bool
	}{
		{BufferNone, map[orb.Point]bool{center: true, nearInside: true, out1km: false, out3km: false}},
		{BufferOut, map[orb.Point]bool{center: false, nearInside: false, out1km: true, out3km: false}},
		{BufferOutUnion, map[orb.Point]bool{center: true, nearInside: true, out1km: true, out3km: false, northOutside: true}},
		{BufferIn, map[orb.Point]bool{center: false, nearInside: true, out1km: false}},
		{BufferInDiff, map[orb.Point]bool{center: true, nearInside: false, out1km: false}},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Parallel()
			zone, err := e.Buffer(square, 2, "km", tc.kind)
			require.NoError(t, err)
			for p, want := range tc.want {
				assert.Equal(t, want, zone.Contains(p), "point %v", p)
			}
		})
	}
}

func TestBufferRejectsBadInput(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	_, err := e.Buffer(nil, 1, "km", BufferOut)
	require.Error(t, err)
	_, err = e.Buffer(square, 1, "furlong", BufferOut)
	require.Error(t, err)
	_, err = e.Buffer(square, 1, "km", BufferType(42))
	require.Error(t, err)
}

func TestSelectByInfluenceOrdersByDistanceThenID(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	zone, err := e.Buffer(square, 2, "km", BufferOutUnion)
	require.NoError(t, err)

	candidates := []Candidate{
		{ID: "far", Geometry: out3km},
		{ID: "b", Geometry: out1km},
		{ID: "a", Geometry: out1km},
		{ID: "inside", Geometry: nearInside},
		{ID: "nogeom"},
	}

	ids, err := e.SelectByInfluence(zone, candidates, InfluenceRule{})
	require.NoError(t, err)
	assert.Equal(t, []string{"inside", "a", "b"}, ids)

	again, err := e.SelectByInfluence(zone, candidates, InfluenceRule{})
	require.NoError(t, err)
	assert.Equal(t, ids, again, "selection is deterministic")
}

func TestSelectByInfluenceRadiusRules(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	zone, err := e.Buffer(square, 0, "m", BufferNone)
	require.NoError(t, err)

	candidates := []Candidate{
		{ID: "c1", Geometry: out1km},
		{ID: "c3", Geometry: out3km},
		{ID: "mid", Geometry: center},
	}

	touches, err := e.SelectByInfluence(zone, candidates, InfluenceRule{Type: InfluenceRadiusTouches, Radius: 1500})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "c1"}, touches)

	byCenter, err := e.SelectByInfluence(zone, candidates, InfluenceRule{Type: InfluenceRadiusCenter, Radius: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, byCenter)

	_, err = e.SelectByInfluence(zone, candidates, InfluenceRule{Type: InfluenceType(9)})
	require.Error(t, err)
}
