// Package validator checks an analysis against the catalog before it is
// queued or executed. Validation is pure: it reads the catalog and never
// touches the script runtime, the geometry engine or any data provider.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
)

// CatalogReader is the part of the catalog validation reads.
type CatalogReader interface {
	DataSeries(id int64) (*catalog.DataSeries, error)
	DataSet(id int64) (*catalog.DataSet, error)
}

// Result is the outcome of one validation. Messages follow rule order.
type Result struct {
	Valid    bool     `json:"valid"`
	Messages []string `json:"messages"`
}

// Err returns nil for a valid result and a configuration error listing
// every message otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return errors.Newf("invalid analysis: %s", strings.Join(r.Messages, "; ")).
		Category(errors.CategoryConfiguration).
		Component("validator").
		Context("messages", len(r.Messages)).
		Build()
}

type checker struct {
	cat      CatalogReader
	a        *catalog.Analysis
	messages []string
}

func (c *checker) failf(format string, args ...any) {
	c.messages = append(c.messages, fmt.Sprintf(format, args...))
}

// Validate runs every rule against a and returns all failures.
func Validate(cat CatalogReader, a *catalog.Analysis) Result {
	if a == nil {
		return Result{Messages: []string{"analysis is nil"}}
	}
	c := &checker{cat: cat, a: a}

	c.checkScript()
	c.checkType()
	series := c.checkDataSeries()
	c.checkRoles(series)
	c.checkOutput()
	c.checkNames(series)
	c.checkMetadata()

	return Result{Valid: len(c.messages) == 0, Messages: c.messages}
}

func (c *checker) checkScript() {
	if strings.TrimSpace(c.a.Script) == "" {
		c.failf("analysis %d has an empty script", c.a.ID)
	}
	if c.a.ScriptLanguage != catalog.ScriptStarlark {
		c.failf("unrecognized script language %q", c.a.ScriptLanguage)
	}
}

func (c *checker) checkType() {
	switch c.a.Type {
	case catalog.AnalysisMonitoredObject, catalog.AnalysisDCP:
	case catalog.AnalysisGrid, catalog.AnalysisVectorProcessing:
		c.failf("analysis type %s is not executable by this engine", c.a.Type)
	default:
		c.failf("unknown analysis type %q", c.a.Type)
	}
}

// checkDataSeries resolves every role binding. The returned map only holds
// resolved series.
func (c *checker) checkDataSeries() map[int64]*catalog.DataSeries {
	resolved := make(map[int64]*catalog.DataSeries, len(c.a.DataSeries))
	for _, ads := range c.a.DataSeries {
		if ads.Type == catalog.RoleGrid {
			c.failf("data series %d: %s roles are not supported", ads.DataSeriesID, catalog.RoleGrid)
		}
		ds, err := c.cat.DataSeries(ads.DataSeriesID)
		if err != nil {
			c.failf("data series %d (analysis data series %d) not found in catalog", ads.DataSeriesID, ads.ID)
			continue
		}
		resolved[ads.DataSeriesID] = ds
	}
	return resolved
}

func (c *checker) checkRoles(series map[int64]*catalog.DataSeries) {
	switch c.a.Type {
	case catalog.AnalysisMonitoredObject:
		entries := c.a.RoleEntries(catalog.RoleMonitoredObject)
		if len(entries) != 1 {
			c.failf("monitored object analysis needs exactly one %s data series, found %d", catalog.RoleMonitoredObject, len(entries))
			return
		}
		mo := entries[0]
		identifier := mo.Metadata[catalog.MetaIdentifier]
		if identifier == "" {
			c.failf("monitored object data series %d has no %q metadata", mo.DataSeriesID, catalog.MetaIdentifier)
			return
		}
		if ds, ok := series[mo.DataSeriesID]; ok && !ds.HasAttribute(identifier) {
			c.failf("identifier attribute %q not found in schema of data series %d", identifier, mo.DataSeriesID)
		}
	case catalog.AnalysisDCP:
		if len(c.a.RoleEntries(catalog.RoleDCP)) == 0 {
			c.failf("DCP analysis needs a %s data series", catalog.RoleDCP)
		}
	}
}

func (c *checker) checkOutput() {
	_, seriesErr := c.cat.DataSeries(c.a.OutputDataSeriesID)
	if seriesErr != nil {
		c.failf("output data series %d not found in catalog", c.a.OutputDataSeriesID)
	}
	set, err := c.cat.DataSet(c.a.OutputDataSetID)
	if err != nil {
		c.failf("output dataset %d not found in catalog", c.a.OutputDataSetID)
		return
	}
	if seriesErr == nil && set.DataSeriesID != c.a.OutputDataSeriesID {
		c.failf("output dataset %d belongs to data series %d, not to output data series %d",
			c.a.OutputDataSetID, set.DataSeriesID, c.a.OutputDataSeriesID)
	}
}

// checkNames rejects analyses where two entries would be bound under the
// same script name. Unresolved entries only contribute their alias.
func (c *checker) checkNames(series map[int64]*catalog.DataSeries) {
	seen := make(map[string]bool)
	reported := make(map[string]bool)
	for _, ads := range c.a.DataSeries {
		var seriesName string
		if ds, ok := series[ads.DataSeriesID]; ok {
			seriesName = ds.Name
		} else if ads.Alias == "" {
			continue
		}
		for _, name := range ads.BindingNames(seriesName) {
			if seen[name] && !reported[name] {
				c.failf("name %q is bound to more than one data series", name)
				reported[name] = true
			}
			seen[name] = true
		}
	}
}

func (c *checker) checkMetadata() {
	meta := c.a.Metadata

	// Undeclared influence is valid; by_rule then falls back to containment.
	if _, _, err := operators.ParseInfluence(meta); err != nil {
		c.failf("invalid influence metadata: %v", err)
	}

	if v, ok := meta[catalog.MetaLookback]; ok {
		if _, err := operators.ParseWindow(v); err != nil {
			c.failf("invalid %s: %v", catalog.MetaLookback, err)
		}
	}
	if v, ok := meta[catalog.MetaIncremental]; ok {
		if _, err := strconv.ParseBool(v); err != nil {
			c.failf("%s must be true or false, got %q", catalog.MetaIncremental, v)
		}
	}
	if _, err := operators.ParseDeviationMode(meta); err != nil {
		c.failf("invalid metadata: %v", err)
	}
}
