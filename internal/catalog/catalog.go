// Package catalog is the in-memory registry of configuration entities the
// analysis engine reads: projects, data providers, data series with their
// datasets, and analyses.
//
// Entities are copied on Add and on every getter, so an execution holding an
// Analysis or DataSeries never observes a later administrative edit.
package catalog

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/guianderson/terrama2/internal/errors"
)

// Catalog is safe for concurrent use. Reads take a shared lock; Add takes
// the exclusive lock.
type Catalog struct {
	mu        sync.RWMutex
	projects  map[int64]*Project
	providers map[int64]*DataProvider
	series    map[int64]*DataSeries
	datasets  map[int64]int64 // dataset id -> owning series id
	analyses  map[int64]*Analysis
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		projects:  make(map[int64]*Project),
		providers: make(map[int64]*DataProvider),
		series:    make(map[int64]*DataSeries),
		datasets:  make(map[int64]int64),
		analyses:  make(map[int64]*Analysis),
	}
}

// Add registers or replaces an entity. Accepted types are *Project,
// *DataProvider, *DataSeries and *Analysis (or their values).
func (c *Catalog) Add(entity any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := entity.(type) {
	case Project:
		return c.addProjectLocked(&e)
	case *Project:
		return c.addProjectLocked(e)
	case DataProvider:
		return c.addProviderLocked(&e)
	case *DataProvider:
		return c.addProviderLocked(e)
	case DataSeries:
		return c.addSeriesLocked(&e)
	case *DataSeries:
		return c.addSeriesLocked(e)
	case Analysis:
		return c.addAnalysisLocked(&e)
	case *Analysis:
		return c.addAnalysisLocked(e)
	default:
		return errors.Newf("catalog: unsupported entity type %T", entity).
			Category(errors.CategoryValidation).
			Component("catalog").
			Build()
	}
}

func (c *Catalog) addProjectLocked(p *Project) error {
	if p == nil || p.ID == 0 {
		return invalidEntity(KindProject, "id is required")
	}
	cp := *p
	c.projects[p.ID] = &cp
	return nil
}

func (c *Catalog) addProviderLocked(p *DataProvider) error {
	if p == nil || p.ID == 0 {
		return invalidEntity(KindDataProvider, "id is required")
	}
	cp := *p
	cp.Options = maps.Clone(p.Options)
	c.providers[p.ID] = &cp
	return nil
}

func (c *Catalog) addSeriesLocked(ds *DataSeries) error {
	if ds == nil || ds.ID == 0 {
		return invalidEntity(KindDataSeries, "id is required")
	}
	cp := ds.Clone()
	for i := range cp.DataSets {
		set := &cp.DataSets[i]
		if set.ID == 0 {
			return invalidEntity(KindDataSet, fmt.Sprintf("dataset %d of series %d has no id", i, ds.ID))
		}
		if set.DataSeriesID == 0 {
			set.DataSeriesID = cp.ID
		}
		if owner, ok := c.datasets[set.ID]; ok && owner != cp.ID {
			return invalidEntity(KindDataSet, fmt.Sprintf("dataset %d already belongs to series %d", set.ID, owner))
		}
	}

	// Drop the index entries of the version being replaced
	if old, ok := c.series[cp.ID]; ok {
		for _, set := range old.DataSets {
			delete(c.datasets, set.ID)
		}
	}
	for _, set := range cp.DataSets {
		c.datasets[set.ID] = set.DataSeriesID
	}
	c.series[cp.ID] = cp
	return nil
}

func (c *Catalog) addAnalysisLocked(a *Analysis) error {
	if a == nil || a.ID == 0 {
		return invalidEntity(KindAnalysis, "id is required")
	}
	c.analyses[a.ID] = a.Clone()
	return nil
}

// Get returns a copy of the entity of the given kind, or a not-found error.
func (c *Catalog) Get(kind Kind, id int64) (any, error) {
	switch kind {
	case KindProject:
		return c.Project(id)
	case KindDataProvider:
		return c.DataProvider(id)
	case KindDataSeries:
		return c.DataSeries(id)
	case KindDataSet:
		return c.DataSet(id)
	case KindAnalysis:
		return c.Analysis(id)
	default:
		return nil, errors.Newf("catalog: unknown entity kind %q", kind).
			Category(errors.CategoryValidation).
			Component("catalog").
			Build()
	}
}

// Project returns the project with the given id.
func (c *Catalog) Project(id int64) (*Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[id]
	if !ok {
		return nil, notFound(KindProject, id)
	}
	cp := *p
	return &cp, nil
}

// DataProvider returns the provider with the given id.
func (c *Catalog) DataProvider(id int64) (*DataProvider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[id]
	if !ok {
		return nil, notFound(KindDataProvider, id)
	}
	cp := *p
	cp.Options = maps.Clone(p.Options)
	return &cp, nil
}

// DataSeries returns the series with the given id.
func (c *Catalog) DataSeries(id int64) (*DataSeries, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.series[id]
	if !ok {
		return nil, notFound(KindDataSeries, id)
	}
	return ds.Clone(), nil
}

// DataSet returns the dataset with the given id.
func (c *Catalog) DataSet(id int64) (*DataSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seriesID, ok := c.datasets[id]
	if !ok {
		return nil, notFound(KindDataSet, id)
	}
	set, _ := c.series[seriesID].DataSet(id)
	set.Format = maps.Clone(set.Format)
	return &set, nil
}

// Analysis returns the analysis with the given id.
func (c *Catalog) Analysis(id int64) (*Analysis, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.analyses[id]
	if !ok {
		return nil, notFound(KindAnalysis, id)
	}
	return a.Clone(), nil
}

// Analyses returns every analysis ordered by id.
func (c *Catalog) Analyses() []*Analysis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(c.analyses))
	out := make([]*Analysis, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.analyses[id].Clone())
	}
	return out
}

// AnalysisOutputSeries returns the dynamic series written by some analysis,
// ordered by id. A series qualifies when one of its datasets is an
// analysis' output dataset.
func (c *Catalog) AnalysisOutputSeries() []*DataSeries {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outputs := make(map[int64]bool)
	for _, a := range c.analyses {
		if seriesID, ok := c.datasets[a.OutputDataSetID]; ok {
			outputs[seriesID] = true
		}
	}

	var out []*DataSeries
	for _, id := range slices.Sorted(maps.Keys(outputs)) {
		if ds := c.series[id]; ds.Semantics.Temporality != Static {
			out = append(out, ds.Clone())
		}
	}
	return out
}

func notFound(kind Kind, id int64) error {
	return errors.Newf("%s %d not found", kind, id).
		Category(errors.CategoryNotFound).
		Component("catalog").
		Context("kind", string(kind)).
		Context("id", id).
		Build()
}

func invalidEntity(kind Kind, reason string) error {
	return errors.Newf("invalid %s: %s", kind, reason).
		Category(errors.CategoryValidation).
		Component("catalog").
		Build()
}
