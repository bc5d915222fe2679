// Package geometry is the spatial engine behind the zonal operators: it
// builds buffer zones around monitored-object geometries and selects the
// stations or occurrences that fall under a zone's influence.
//
// Coordinates are WGS84 longitude/latitude. Distances are computed in meters
// on a local equirectangular projection centred on the zone's geometry,
// which keeps errors well below a percent for the tens-of-kilometres
// extents monitored objects and buffers have.
//
// Buffers are not materialized as polygons. A Zone answers membership from
// the signed distance to the base geometry's boundary, which gives exact
// results for every buffer type without a polygon offsetting library.
package geometry

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// BufferType selects which part of the space around a geometry a zone covers.
type BufferType int

const (
	// BufferNone is the geometry itself.
	BufferNone BufferType = iota
	// BufferOut is the outer band of width d, excluding the geometry.
	BufferOut
	// BufferOutUnion is the geometry plus its outer band.
	BufferOutUnion
	// BufferIn is the inner band of width d along the boundary.
	BufferIn
	// BufferInDiff is the geometry minus its inner band.
	BufferInDiff
)

var bufferTypeNames = map[BufferType]string{
	BufferNone:     "None",
	BufferOut:      "Out",
	BufferOutUnion: "Out_union",
	BufferIn:       "In",
	BufferInDiff:   "In_diff",
}

func (t BufferType) String() string {
	if name, ok := bufferTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BufferType(%d)", int(t))
}

// BufferTypes lists every buffer type in declaration order.
func BufferTypes() []BufferType {
	return []BufferType{BufferNone, BufferOut, BufferOutUnion, BufferIn, BufferInDiff}
}

// InfluenceType is the rule used to associate candidates with a zone.
type InfluenceType int

const (
	// InfluenceNone selects candidates contained in the zone.
	InfluenceNone InfluenceType = 0
	// InfluenceRadiusTouches selects candidates whose radius circle touches the zone.
	InfluenceRadiusTouches InfluenceType = 1
	// InfluenceRadiusCenter selects candidates within radius of the zone's centre.
	InfluenceRadiusCenter InfluenceType = 2
	// InfluenceRegion selects candidates inside the zone region.
	InfluenceRegion InfluenceType = 3
)

// InfluenceRule parameterizes SelectByInfluence. Radius is in meters.
type InfluenceRule struct {
	Type   InfluenceType
	Radius float64
}

// Candidate is a station or occurrence that may fall under a zone.
type Candidate struct {
	ID       string
	Geometry orb.Geometry
}

// Engine is stateless and safe for concurrent use.
type Engine struct{}

// NewEngine returns a geometry engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Zone is a buffered geometry. It is immutable.
type Zone struct {
	base      orb.Geometry
	projected orb.Geometry
	center    orb.Point // lon/lat origin of the local projection
	kind      BufferType
	distance  float64 // meters
}

// Buffer builds the zone of kind around g with distance expressed in unit.
func (e *Engine) Buffer(g orb.Geometry, distance float64, unit string, kind BufferType) (*Zone, error) {
	if g == nil {
		return nil, fmt.Errorf("buffer: geometry is nil")
	}
	if _, ok := bufferTypeNames[kind]; !ok {
		return nil, fmt.Errorf("buffer: unknown buffer type %d", int(kind))
	}
	meters, err := ToMeters(distance, unit)
	if err != nil {
		return nil, fmt.Errorf("buffer: %w", err)
	}

	center := g.Bound().Center()
	return &Zone{
		base:      g,
		projected: project.Geometry(orb.Clone(g), localProjection(center)),
		center:    center,
		kind:      kind,
		distance:  meters,
	}, nil
}

// Base returns the unbuffered geometry.
func (z *Zone) Base() orb.Geometry { return z.base }

// Type returns the buffer type.
func (z *Zone) Type() BufferType { return z.kind }

// Distance returns the buffer distance in meters.
func (z *Zone) Distance() float64 { return z.distance }

// Contains reports whether the lon/lat point p lies in the zone.
// Boundaries are inclusive.
func (z *Zone) Contains(p orb.Point) bool {
	inside, d := z.locate(p)
	switch z.kind {
	case BufferOut:
		return !inside && d <= z.distance
	case BufferOutUnion:
		return inside || d <= z.distance
	case BufferIn:
		return inside && d <= z.distance
	case BufferInDiff:
		return inside && d > z.distance
	default:
		return inside || d == 0
	}
}

// DistanceTo returns the distance in meters from p to the zone, zero when
// p is contained.
func (z *Zone) DistanceTo(p orb.Point) float64 {
	if z.Contains(p) {
		return 0
	}
	inside, d := z.locate(p)
	switch z.kind {
	case BufferOut, BufferOutUnion:
		if inside {
			return d
		}
		return d - z.distance
	case BufferIn:
		if inside {
			return d - z.distance
		}
		return d
	case BufferInDiff:
		if inside {
			return z.distance - d
		}
		return d + z.distance
	default:
		return d
	}
}

// centerDistance is the great-circle distance in meters from p to the zone's base centroid.
func (z *Zone) centerDistance(p orb.Point) float64 {
	return geo.Distance(representativePoint(z.base), p)
}

// locate returns whether p is inside the base area and its distance in
// meters to the base boundary.
func (z *Zone) locate(p orb.Point) (bool, float64) {
	pp := localProjection(z.center)(p)
	return areaContains(z.projected, pp), boundaryDistance(z.projected, pp)
}

// SelectByInfluence returns the ids of candidates associated with zone
// under rule. The result is ordered by ascending distance (to the zone, or
// to its centre for InfluenceRadiusCenter) with ties broken by id, so
// identical inputs always produce identical output.
func (e *Engine) SelectByInfluence(zone *Zone, candidates []Candidate, rule InfluenceRule) ([]string, error) {
	if zone == nil {
		return nil, fmt.Errorf("select by influence: zone is nil")
	}
	if rule.Radius < 0 {
		return nil, fmt.Errorf("select by influence: radius must not be negative")
	}

	type hit struct {
		id   string
		dist float64
	}
	var hits []hit
	for _, c := range candidates {
		if c.Geometry == nil {
			continue
		}
		p := representativePoint(c.Geometry)

		var selected bool
		var dist float64
		switch rule.Type {
		case InfluenceRadiusTouches:
			dist = zone.DistanceTo(p)
			selected = dist <= rule.Radius
		case InfluenceRadiusCenter:
			dist = zone.centerDistance(p)
			selected = dist <= rule.Radius
		case InfluenceNone, InfluenceRegion:
			selected = zone.Contains(p)
			_, dist = zone.locate(p)
		default:
			return nil, fmt.Errorf("select by influence: unknown influence type %d", int(rule.Type))
		}
		if selected {
			hits = append(hits, hit{id: c.ID, dist: dist})
		}
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true
		ids = append(ids, h.id)
	}
	return ids, nil
}

// RepresentativePoint returns the point used to locate g: the point itself
// or the centroid of anything else.
func RepresentativePoint(g orb.Geometry) orb.Point {
	return representativePoint(g)
}

func representativePoint(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}

// localProjection maps lon/lat to meters east/north of origin.
func localProjection(origin orb.Point) orb.Projection {
	kx := orb.EarthRadius * math.Pi / 180 * math.Cos(origin.Lat()*math.Pi/180)
	ky := orb.EarthRadius * math.Pi / 180
	return func(p orb.Point) orb.Point {
		return orb.Point{(p.Lon() - origin.Lon()) * kx, (p.Lat() - origin.Lat()) * ky}
	}
}

func areaContains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	case orb.Bound:
		return geom.Contains(p)
	case orb.Collection:
		for _, sub := range geom {
			if areaContains(sub, p) {
				return true
			}
		}
	}
	return false
}

// boundaryDistance is the planar distance from p to the boundary of g
// (or to g itself for points and lines).
func boundaryDistance(g orb.Geometry, p orb.Point) float64 {
	switch geom := g.(type) {
	case orb.Point:
		return planar.Distance(geom, p)
	case orb.MultiPoint:
		best := math.Inf(1)
		for _, q := range geom {
			best = math.Min(best, planar.Distance(q, p))
		}
		return best
	case orb.LineString:
		return planar.DistanceFrom(geom, p)
	case orb.Ring:
		return planar.DistanceFrom(orb.LineString(geom), p)
	case orb.MultiLineString:
		best := math.Inf(1)
		for _, ls := range geom {
			best = math.Min(best, planar.DistanceFrom(ls, p))
		}
		return best
	case orb.Polygon:
		best := math.Inf(1)
		for _, r := range geom {
			best = math.Min(best, planar.DistanceFrom(orb.LineString(r), p))
		}
		return best
	case orb.MultiPolygon:
		best := math.Inf(1)
		for _, poly := range geom {
			best = math.Min(best, boundaryDistance(poly, p))
		}
		return best
	case orb.Bound:
		return boundaryDistance(geom.ToPolygon(), p)
	case orb.Collection:
		best := math.Inf(1)
		for _, sub := range geom {
			best = math.Min(best, boundaryDistance(sub, p))
		}
		return best
	}
	return math.Inf(1)
}
