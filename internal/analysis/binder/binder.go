// Package binder resolves the data series of an analysis into the
// read-only context one execution evaluates its rows against.
package binder

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guianderson/terrama2/internal/accessor"
	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/geometry"
	"github.com/guianderson/terrama2/internal/logger"
)

// MonitoredObjectName is the extra name the monitored-object series is
// always bound under.
const MonitoredObjectName = catalog.MonitoredObjectName

// Accessor materializes data series.
type Accessor interface {
	FetchGeometries(ctx context.Context, seriesID int64, identifier string) (*accessor.GeometrySet, error)
	FetchObservations(ctx context.Context, seriesID int64, w accessor.TimeWindow) (*accessor.ObservationSet, error)
}

// CatalogReader is the part of the catalog the binder reads.
type CatalogReader interface {
	DataSeries(id int64) (*catalog.DataSeries, error)
}

// Binder builds execution contexts.
type Binder struct {
	catalog  CatalogReader
	accessor Accessor
	log      logger.Logger
}

// New returns a Binder.
func New(cat CatalogReader, acc Accessor, log logger.Logger) *Binder {
	return &Binder{catalog: cat, accessor: acc, log: log.Module("binder")}
}

// Context is the resolved input of one execution. It is owned by that
// execution and never modified after Bind returns.
type Context struct {
	Analysis *catalog.Analysis
	// Rows are the units of evaluation: monitored objects or stations.
	Rows []operators.Row

	reference time.Time
	series    map[string]*operators.Series
	names     []string
}

// Lookup implements operators.Bound.
func (c *Context) Lookup(name string) (*operators.Series, error) {
	if s, ok := c.series[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%q is not bound in analysis %d: %w", name, c.Analysis.ID, operators.ErrUnknownAlias)
}

// Reference implements operators.Bound.
func (c *Context) Reference() time.Time {
	return c.reference
}

// Names returns the bound names in declaration order.
func (c *Context) Names() []string {
	return slices.Clone(c.names)
}

// DataTimestamp returns the newest observation timestamp across the bound
// dynamic series, or zero when there is none.
func (c *Context) DataTimestamp() time.Time {
	var last time.Time
	for _, s := range c.series {
		if s.Observations == nil {
			continue
		}
		if ts := s.Observations.LastTimestamp(); ts.After(last) {
			last = ts
		}
	}
	return last
}

type binding struct {
	entry  catalog.AnalysisDataSeries
	series *catalog.DataSeries
	bound  *operators.Series
}

// Bind resolves every data series of a concurrently. lastRun is the
// reference time of the previous successful run, used by incremental
// analyses. Any failure aborts the whole binding.
func (b *Binder) Bind(ctx context.Context, a *catalog.Analysis, ref time.Time, lastRun *time.Time) (*Context, error) {
	bindings := make([]*binding, len(a.DataSeries))
	for i, entry := range a.DataSeries {
		ds, err := b.catalog.DataSeries(entry.DataSeriesID)
		if err != nil {
			return nil, unavailable(err, a, entry.DataSeriesID)
		}
		bindings[i] = &binding{entry: entry, series: ds}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, bd := range bindings {
		g.Go(func() error {
			bound, err := b.resolve(gctx, a, bd, ref, lastRun)
			if err != nil {
				return unavailable(err, a, bd.series.ID)
			}
			bd.bound = bound
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(ctx.Err()).
				Category(errors.CategoryCancellation).
				Component("binder").
				Context("analysis_id", a.ID).
				Build()
		}
		return nil, err
	}

	bc := &Context{Analysis: a, reference: ref, series: make(map[string]*operators.Series)}
	for _, bd := range bindings {
		for _, name := range bd.entry.BindingNames(bd.series.Name) {
			if err := bc.bind(name, bd.bound); err != nil {
				return nil, err
			}
		}
		b.log.Debug("data series bound",
			logger.Int64("analysis_id", a.ID),
			logger.String("name", bd.bound.Name),
			logger.Int64("data_series_id", bd.series.ID),
			logger.Int("rows", boundSize(bd.bound)))
	}

	rows, err := rowsFor(a, bindings)
	if err != nil {
		return nil, err
	}
	bc.Rows = rows
	return bc, nil
}

func (c *Context) bind(name string, s *operators.Series) error {
	if _, dup := c.series[name]; dup {
		return errors.Newf("name %q is bound to more than one data series", name).
			Category(errors.CategoryConfiguration).
			Component("binder").
			Context("analysis_id", c.Analysis.ID).
			Build()
	}
	c.series[name] = s
	c.names = append(c.names, name)
	return nil
}

func (b *Binder) resolve(ctx context.Context, a *catalog.Analysis, bd *binding, ref time.Time, lastRun *time.Time) (*operators.Series, error) {
	s := &operators.Series{
		Name:         bd.entry.BindingNames(bd.series.Name)[0],
		DataSeriesID: bd.series.ID,
		Role:         bd.entry.Type,
		Kind:         bd.series.Semantics.Kind,
	}

	if bd.entry.Type == catalog.RoleGrid {
		return nil, fmt.Errorf("grid data series %d cannot be bound", bd.series.ID)
	}
	if bd.entry.Type == catalog.RoleMonitoredObject || bd.series.Semantics.Temporality == catalog.Static {
		set, err := b.accessor.FetchGeometries(ctx, bd.series.ID, bd.entry.Metadata[catalog.MetaIdentifier])
		if err != nil {
			return nil, err
		}
		s.Geometries = set
		return s, nil
	}

	w, err := Window(a, bd.series.Semantics.Kind, ref, lastRun)
	if err != nil {
		return nil, err
	}
	set, err := b.accessor.FetchObservations(ctx, bd.series.ID, w)
	if err != nil {
		return nil, err
	}
	s.Observations = set
	s.Candidates = candidates(set)
	return s, nil
}

// Window derives the observation window of a dynamic series:
// LOOKBACK gives [ref-lookback, ref]; INCREMENTAL with a previous run gives
// (lastRun, ref]; otherwise occurrences and the series of DCP analyses
// read everything up to ref, and station series of monitored-object
// analyses read the latest observation per station.
func Window(a *catalog.Analysis, kind catalog.SeriesKind, ref time.Time, lastRun *time.Time) (accessor.TimeWindow, error) {
	if raw, ok := a.Metadata[catalog.MetaLookback]; ok && raw != "" {
		d, err := operators.ParseWindow(raw)
		if err != nil {
			return accessor.TimeWindow{}, errors.ConfigurationError(err).
				Component("binder").
				Context("analysis_id", a.ID).
				Build()
		}
		return accessor.TimeWindow{Start: ref.Add(-d), End: ref}, nil
	}
	if incremental, _ := strconv.ParseBool(a.Metadata[catalog.MetaIncremental]); incremental && lastRun != nil {
		return accessor.TimeWindow{Start: *lastRun, StartExclusive: true, End: ref}, nil
	}
	if kind == catalog.SeriesOccurrence || a.Type == catalog.AnalysisDCP {
		return accessor.TimeWindow{End: ref}, nil
	}
	return accessor.TimeWindow{End: ref, LatestOnly: true}, nil
}

// candidates lists each located identifier once, in first-seen order.
func candidates(set *accessor.ObservationSet) []geometry.Candidate {
	seen := make(map[string]bool)
	var out []geometry.Candidate
	for _, row := range set.Rows {
		if row.Geometry == nil || seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		out = append(out, geometry.Candidate{ID: row.ID, Geometry: row.Geometry})
	}
	return out
}

func rowsFor(a *catalog.Analysis, bindings []*binding) ([]operators.Row, error) {
	var role catalog.Role
	switch a.Type {
	case catalog.AnalysisMonitoredObject:
		role = catalog.RoleMonitoredObject
	case catalog.AnalysisDCP:
		role = catalog.RoleDCP
	default:
		return nil, errors.Newf("analysis type %s is not executable", a.Type).
			Category(errors.CategoryConfiguration).
			Component("binder").
			Build()
	}

	var rows []operators.Row
	for _, bd := range bindings {
		if bd.entry.Type != role {
			continue
		}
		if bd.bound.Geometries != nil {
			for _, f := range bd.bound.Geometries.Features {
				rows = append(rows, operators.Row{ID: f.ID, Geometry: f.Geometry})
			}
		} else {
			for _, c := range bd.bound.Candidates {
				rows = append(rows, operators.Row{ID: c.ID, Geometry: c.Geometry})
			}
		}
		break
	}
	if len(rows) == 0 {
		return nil, errors.DataUnavailableError(fmt.Errorf("analysis %d has nothing to evaluate: %s series is empty", a.ID, role)).
			Component("binder").
			Context("analysis_id", a.ID).
			Build()
	}
	return rows, nil
}

func unavailable(err error, a *catalog.Analysis, seriesID int64) error {
	if errors.IsCategory(err, errors.CategoryConfiguration) {
		return err
	}
	return errors.DataUnavailableError(err).
		Component("binder").
		Context("analysis_id", a.ID).
		Context("data_series_id", seriesID).
		Build()
}

func boundSize(s *operators.Series) int {
	switch {
	case s.Geometries != nil:
		return len(s.Geometries.Features)
	case s.Observations != nil:
		return len(s.Observations.Rows)
	default:
		return 0
	}
}
