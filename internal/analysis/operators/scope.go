// Package operators implements the zonal vocabulary analysis scripts call.
// A Library is built once per execution over the bound series; every
// evaluated row gets its own Scope, so emissions never cross rows.
package operators

import (
	"fmt"
	"maps"
	"time"

	"github.com/paulmach/orb"

	"github.com/guianderson/terrama2/internal/accessor"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/geometry"
)

// ErrUnknownAlias is returned when a script names a series that is not
// bound in the execution.
var ErrUnknownAlias = errors.NewStd("unknown data series alias")

// Series is one bound data series as the operators see it.
type Series struct {
	Name         string
	DataSeriesID int64
	Role         catalog.Role
	Kind         catalog.SeriesKind
	Geometries   *accessor.GeometrySet
	Observations *accessor.ObservationSet
	// Candidates are the distinct located identifiers of Observations.
	Candidates []geometry.Candidate
}

// Bound is the resolved context of one execution.
type Bound interface {
	Lookup(name string) (*Series, error)
	Reference() time.Time
}

// Family is a group of operators offered to one analysis type.
type Family string

const (
	FamilyDCPZonal        Family = "dcp.zonal"
	FamilyOccurrenceZonal Family = "occurrence.zonal"
	FamilyDCPHistory      Family = "dcp.history"
)

// FamiliesFor returns the operator families available to t.
func FamiliesFor(t catalog.AnalysisType) []Family {
	switch t {
	case catalog.AnalysisMonitoredObject:
		return []Family{FamilyDCPZonal, FamilyOccurrenceZonal}
	case catalog.AnalysisDCP:
		return []Family{FamilyDCPHistory}
	default:
		return nil
	}
}

// Options are the analysis-level parameters of a Library.
type Options struct {
	Type      catalog.AnalysisType
	Influence geometry.InfluenceRule
	// InfluenceDeclared is false when the analysis has no INFLUENCE_* metadata.
	InfluenceDeclared bool
	Deviation         DeviationMode
}

// OptionsFromAnalysis parses the operator options of a.
func OptionsFromAnalysis(a *catalog.Analysis) (Options, error) {
	opts := Options{Type: a.Type}
	rule, declared, err := ParseInfluence(a.Metadata)
	if err != nil {
		return opts, err
	}
	opts.Influence, opts.InfluenceDeclared = rule, declared
	if opts.Deviation, err = ParseDeviationMode(a.Metadata); err != nil {
		return opts, err
	}
	return opts, nil
}

// Library holds what every row of one execution shares. It is read-only
// after construction.
type Library struct {
	bound    Bound
	engine   *geometry.Engine
	opts     Options
	families map[Family]bool
}

// NewLibrary returns the operator library of one execution.
func NewLibrary(bound Bound, engine *geometry.Engine, opts Options) *Library {
	families := make(map[Family]bool)
	for _, f := range FamiliesFor(opts.Type) {
		families[f] = true
	}
	if engine == nil {
		engine = geometry.NewEngine()
	}
	return &Library{bound: bound, engine: engine, opts: opts, families: families}
}

// Provides reports whether the library offers family f.
func (l *Library) Provides(f Family) bool {
	return l.families[f]
}

// Row is the unit of evaluation: a monitored object or a station.
type Row struct {
	ID       string
	Geometry orb.Geometry
}

// Scope is the per-row view of a Library. It must not be shared between rows.
type Scope struct {
	lib     *Library
	row     Row
	emitted map[string]any
}

// NewScope returns a fresh scope for row.
func (l *Library) NewScope(row Row) *Scope {
	return &Scope{lib: l, row: row, emitted: make(map[string]any)}
}

// Row returns the row under evaluation.
func (s *Scope) Row() Row {
	return s.row
}

// Emit sets attribute name of the current row's output, overwriting any
// earlier value. Values must be scalars.
func (s *Scope) Emit(name string, value any) error {
	if name == "" {
		return fmt.Errorf("add_value: attribute name is empty")
	}
	switch value.(type) {
	case nil, bool, int, int64, float64, string:
	default:
		return fmt.Errorf("add_value(%q): unsupported value type %T", name, value)
	}
	s.emitted[name] = value
	return nil
}

// Emitted returns a copy of the attributes emitted so far.
func (s *Scope) Emitted() map[string]any {
	return maps.Clone(s.emitted)
}

func (s *Scope) require(f Family) error {
	if !s.lib.families[f] {
		return fmt.Errorf("%s operators are not available in %s analyses", f, s.lib.opts.Type)
	}
	return nil
}

func (s *Scope) series(name string, want ...catalog.SeriesKind) (*Series, error) {
	ser, err := s.lib.bound.Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(want) > 0 {
		for _, k := range want {
			if ser.Kind == k {
				return ser, nil
			}
		}
		return nil, fmt.Errorf("series %q is %s, expected %v", name, ser.Kind, want)
	}
	return ser, nil
}

// Zone builds the zone of spec around the current row's geometry.
func (s *Scope) Zone(spec BufferSpec) (*geometry.Zone, error) {
	if s.row.Geometry == nil {
		return nil, fmt.Errorf("row %q has no geometry", s.row.ID)
	}
	unit := spec.Unit
	if unit == "" {
		unit = string(geometry.Meter)
	}
	return s.lib.engine.Buffer(s.row.Geometry, spec.Distance, unit, spec.Type)
}

// InfluenceByRule selects the stations of DCP series name associated with
// the row under the analysis influence rule, or by containment in the
// zone when the analysis declares none.
func (s *Scope) InfluenceByRule(name string, spec BufferSpec) ([]string, error) {
	rule := geometry.InfluenceRule{Type: geometry.InfluenceNone}
	if s.lib.opts.InfluenceDeclared {
		rule = s.lib.opts.Influence
	}
	return s.influence(name, spec, rule)
}

// InfluenceByBuffer selects the stations of DCP series name located inside
// the zone.
func (s *Scope) InfluenceByBuffer(name string, spec BufferSpec) ([]string, error) {
	return s.influence(name, spec, geometry.InfluenceRule{Type: geometry.InfluenceNone})
}

func (s *Scope) influence(name string, spec BufferSpec, rule geometry.InfluenceRule) ([]string, error) {
	if err := s.require(FamilyDCPZonal); err != nil {
		return nil, err
	}
	ser, err := s.series(name, catalog.SeriesDCP)
	if err != nil {
		return nil, err
	}
	zone, err := s.Zone(spec)
	if err != nil {
		return nil, err
	}
	return s.lib.engine.SelectByInfluence(zone, ser.Candidates, rule)
}

// DCPZonal aggregates attribute of DCP series name over the observations
// of the contributing station ids. count returns the number of ids.
func (s *Scope) DCPZonal(stat Statistic, name, attribute string, ids []string) (float64, error) {
	if err := s.require(FamilyDCPZonal); err != nil {
		return 0, err
	}
	ser, err := s.series(name, catalog.SeriesDCP)
	if err != nil {
		return 0, err
	}
	if stat == Count {
		return float64(len(ids)), nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var values []float64
	for _, row := range observationRows(ser) {
		if !wanted[row.ID] {
			continue
		}
		if v, ok := accessor.Numeric(row.Attributes[attribute]); ok {
			values = append(values, v)
		}
	}
	return s.aggregate(stat, values)
}

// OccurrenceZonal aggregates the occurrences of series name that fall in
// the zone within window before the reference time. count counts
// occurrences; the other statistics read attribute.
func (s *Scope) OccurrenceZonal(stat Statistic, name, attribute, window string, spec BufferSpec) (float64, error) {
	if err := s.require(FamilyOccurrenceZonal); err != nil {
		return 0, err
	}
	ser, err := s.series(name, catalog.SeriesOccurrence)
	if err != nil {
		return 0, err
	}
	w, err := s.window(window)
	if err != nil {
		return 0, err
	}
	zone, err := s.Zone(spec)
	if err != nil {
		return 0, err
	}

	var (
		count  int
		values []float64
	)
	for _, row := range observationRows(ser) {
		if row.Geometry == nil || !w.Contains(row.Timestamp) {
			continue
		}
		if !zone.Contains(geometry.RepresentativePoint(row.Geometry)) {
			continue
		}
		count++
		if stat != Count {
			if v, ok := accessor.Numeric(row.Attributes[attribute]); ok {
				values = append(values, v)
			}
		}
	}
	if stat == Count {
		return float64(count), nil
	}
	return s.aggregate(stat, values)
}

// History aggregates attribute of the current station in DCP series name
// within window before the reference time. count counts observations.
func (s *Scope) History(stat Statistic, name, attribute, window string) (float64, error) {
	if err := s.require(FamilyDCPHistory); err != nil {
		return 0, err
	}
	ser, err := s.series(name, catalog.SeriesDCP)
	if err != nil {
		return 0, err
	}
	w, err := s.window(window)
	if err != nil {
		return 0, err
	}

	var (
		count  int
		values []float64
	)
	for _, row := range observationRows(ser) {
		if row.ID != s.row.ID || !w.Contains(row.Timestamp) {
			continue
		}
		count++
		if v, ok := accessor.Numeric(row.Attributes[attribute]); ok {
			values = append(values, v)
		}
	}
	if stat == Count {
		return float64(count), nil
	}
	return s.aggregate(stat, values)
}

func (s *Scope) aggregate(stat Statistic, values []float64) (float64, error) {
	v, err := Aggregate(stat, values, s.lib.opts.Deviation)
	if err != nil {
		return 0, fmt.Errorf("%s on row %q: %w", stat, s.row.ID, err)
	}
	return v, nil
}

func (s *Scope) window(raw string) (accessor.TimeWindow, error) {
	ref := s.lib.bound.Reference()
	if raw == "" {
		return accessor.TimeWindow{End: ref}, nil
	}
	d, err := ParseWindow(raw)
	if err != nil {
		return accessor.TimeWindow{}, err
	}
	return accessor.TimeWindow{Start: ref.Add(-d), End: ref}, nil
}

func observationRows(ser *Series) []accessor.Observation {
	if ser.Observations == nil {
		return nil
	}
	return ser.Observations.Rows
}
