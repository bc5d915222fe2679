// Package accessor materializes catalog data series into in-memory
// geometry and observation sets.
package accessor

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

// CatalogReader is the part of the catalog the accessor reads.
type CatalogReader interface {
	DataSeries(id int64) (*catalog.DataSeries, error)
	DataProvider(id int64) (*catalog.DataProvider, error)
}

// ObservationStore serves series whose provider is a database.
type ObservationStore interface {
	QueryObservations(ctx context.Context, dataSetID int64, w TimeWindow) ([]Observation, error)
}

// Config configures an Accessor.
type Config struct {
	Catalog  CatalogReader
	Fetchers map[catalog.ProviderKind]Fetcher
	Store    ObservationStore
	// GeometryTTL bounds how long static geometry sets are reused; zero disables caching.
	GeometryTTL time.Duration
	Logger      logger.Logger
}

// Accessor reads series through provider transports and format parsers.
type Accessor struct {
	catalog  CatalogReader
	fetchers map[catalog.ProviderKind]Fetcher
	store    ObservationStore
	cache    *cache.Cache
	log      logger.Logger
}

// New returns an Accessor. Missing fetchers default to DefaultFetchers.
func New(cfg Config) *Accessor {
	fetchers := cfg.Fetchers
	if fetchers == nil {
		fetchers = DefaultFetchers()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}
	a := &Accessor{
		catalog:  cfg.Catalog,
		fetchers: fetchers,
		store:    cfg.Store,
		log:      log.Module("accessor"),
	}
	if cfg.GeometryTTL > 0 {
		a.cache = cache.New(cfg.GeometryTTL, 2*cfg.GeometryTTL)
	}
	return a
}

// FetchGeometries returns the features of a static series. identifier names
// the property used as feature id; empty falls back to the dataset format
// key and then to the GeoJSON feature id.
func (a *Accessor) FetchGeometries(ctx context.Context, seriesID int64, identifier string) (*GeometrySet, error) {
	cacheKey := "geom:" + strconv.FormatInt(seriesID, 10) + ":" + identifier
	if a.cache != nil {
		if cached, found := a.cache.Get(cacheKey); found {
			if set, ok := cached.(*GeometrySet); ok {
				a.log.Debug("geometry cache hit", logger.Int64("series_id", seriesID))
				return set, nil
			}
		}
	}

	series, provider, err := a.resolve(seriesID)
	if err != nil {
		return nil, err
	}
	if series.Semantics.Format != catalog.FormatGeoJSON {
		return nil, dataUnavailable(fmt.Errorf("geometry series %d: unsupported format %q", seriesID, series.Semantics.Format), seriesID)
	}

	set := &GeometrySet{DataSeriesID: seriesID}
	for i := range series.DataSets {
		ds := &series.DataSets[i]
		if ds.Disabled {
			continue
		}
		var features []Feature
		err := a.withFile(ctx, provider, ds, func(r io.Reader) error {
			var perr error
			features, perr = readGeoJSONFeatures(r, ds, identifier)
			return perr
		})
		if err != nil {
			return nil, dataUnavailable(err, seriesID)
		}
		set.Features = append(set.Features, features...)
	}

	a.log.Debug("geometry series loaded",
		logger.Int64("series_id", seriesID),
		logger.Int("features", len(set.Features)))

	if a.cache != nil {
		a.cache.Set(cacheKey, set, cache.DefaultExpiration)
	}
	return set, nil
}

// FetchObservations returns the rows of a dynamic series inside w, ordered
// by timestamp and then identifier.
func (a *Accessor) FetchObservations(ctx context.Context, seriesID int64, w TimeWindow) (*ObservationSet, error) {
	series, provider, err := a.resolve(seriesID)
	if err != nil {
		return nil, err
	}
	if series.Semantics.Temporality == catalog.Static {
		return nil, dataUnavailable(fmt.Errorf("series %d is static", seriesID), seriesID)
	}

	var rows []Observation
	for i := range series.DataSets {
		ds := &series.DataSets[i]
		if ds.Disabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := a.readObservations(ctx, series, provider, ds, w)
		if err != nil {
			return nil, dataUnavailable(err, seriesID)
		}
		for _, row := range batch {
			if w.Contains(row.Timestamp) {
				rows = append(rows, row)
			}
		}
	}

	if w.LatestOnly {
		rows = keepLatest(rows)
	}
	slices.SortStableFunc(rows, func(x, y Observation) int {
		return cmp.Or(x.Timestamp.Compare(y.Timestamp), cmp.Compare(x.ID, y.ID))
	})

	a.log.Debug("observations loaded",
		logger.Int64("series_id", seriesID),
		logger.Int("rows", len(rows)),
		logger.Time("window_end", w.End))
	return &ObservationSet{DataSeriesID: seriesID, Window: w, Rows: rows}, nil
}

func (a *Accessor) readObservations(ctx context.Context, series *catalog.DataSeries, provider *catalog.DataProvider, ds *catalog.DataSet, w TimeWindow) ([]Observation, error) {
	switch series.Semantics.Format {
	case catalog.FormatDatabase:
		if a.store == nil {
			return nil, fmt.Errorf("series %d: no observation store configured", series.ID)
		}
		rows, err := a.store.QueryObservations(ctx, ds.ID, w)
		if err != nil {
			return nil, err
		}
		if pos, err := stationPosition(ds); err == nil && pos != nil {
			for i := range rows {
				if rows[i].Geometry == nil {
					rows[i].Geometry = pos
				}
			}
		}
		return rows, nil
	case catalog.FormatCSV:
		var rows []Observation
		err := a.withFile(ctx, provider, ds, func(r io.Reader) error {
			var perr error
			rows, perr = readCSV(r, ds)
			return perr
		})
		return rows, err
	case catalog.FormatGeoJSON:
		var rows []Observation
		err := a.withFile(ctx, provider, ds, func(r io.Reader) error {
			var perr error
			rows, perr = readGeoJSONObservations(r, ds)
			return perr
		})
		return rows, err
	default:
		return nil, fmt.Errorf("series %d: unsupported format %q", series.ID, series.Semantics.Format)
	}
}

func (a *Accessor) resolve(seriesID int64) (*catalog.DataSeries, *catalog.DataProvider, error) {
	series, err := a.catalog.DataSeries(seriesID)
	if err != nil {
		return nil, nil, dataUnavailable(err, seriesID)
	}
	provider, err := a.catalog.DataProvider(series.ProviderID)
	if err != nil {
		return nil, nil, dataUnavailable(err, seriesID)
	}
	return series, provider, nil
}

func (a *Accessor) withFile(ctx context.Context, provider *catalog.DataProvider, ds *catalog.DataSet, fn func(io.Reader) error) error {
	name := ds.Format[FormatMask]
	if name == "" {
		return fmt.Errorf("dataset %d has no %s", ds.ID, FormatMask)
	}
	fetcher, ok := a.fetchers[provider.Kind]
	if !ok {
		return fmt.Errorf("provider %d: no transport for %s", provider.ID, provider.Kind)
	}

	start := time.Now()
	rc, err := fetcher.Open(ctx, provider, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			a.log.Warn("closing dataset source failed", logger.Int64("dataset_id", ds.ID), logger.Error(cerr))
		}
	}()

	if err := fn(rc); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileParsing).
			Component("accessor").
			Context("dataset_id", ds.ID).
			Context("file", name).
			Build()
	}
	a.log.Trace("dataset read",
		logger.Int64("dataset_id", ds.ID),
		logger.String("file", name),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func dataUnavailable(err error, seriesID int64) error {
	return errors.DataUnavailableError(err).
		Component("accessor").
		Context("data_series_id", seriesID).
		Build()
}
