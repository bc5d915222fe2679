package catalog

import (
	"maps"
	"slices"
)

// Kind names an entity family for Get.
type Kind string

const (
	KindProject      Kind = "project"
	KindDataProvider Kind = "data_provider"
	KindDataSeries   Kind = "data_series"
	KindDataSet      Kind = "data_set"
	KindAnalysis     Kind = "analysis"
)

// ProviderKind is the transport used to reach a provider's data.
type ProviderKind string

const (
	ProviderFile     ProviderKind = "FILE"
	ProviderHTTP     ProviderKind = "HTTP"
	ProviderFTP      ProviderKind = "FTP"
	ProviderSFTP     ProviderKind = "SFTP"
	ProviderDatabase ProviderKind = "DATABASE"
)

// Temporality tells whether a series changes over time.
type Temporality string

const (
	Static  Temporality = "STATIC"
	Dynamic Temporality = "DYNAMIC"
)

// DataFormat is the storage format of a series' datasets.
type DataFormat string

const (
	FormatCSV      DataFormat = "CSV"
	FormatGeoJSON  DataFormat = "GEOJSON"
	FormatDatabase DataFormat = "DATABASE"
)

// SeriesKind is what a series' rows represent.
type SeriesKind string

const (
	SeriesDCP            SeriesKind = "DCP"
	SeriesOccurrence     SeriesKind = "OCCURRENCE"
	SeriesGeometryObject SeriesKind = "GEOMETRIC_OBJECT"
	SeriesAnalysisResult SeriesKind = "ANALYSIS_MONITORED_OBJECT"
	SeriesGrid           SeriesKind = "GRID"
)

// AnalysisType selects the operator vocabulary and the unit of evaluation.
type AnalysisType string

const (
	AnalysisMonitoredObject  AnalysisType = "MONITORED_OBJECT"
	AnalysisDCP              AnalysisType = "DCP"
	AnalysisGrid             AnalysisType = "GRID"
	AnalysisVectorProcessing AnalysisType = "VECTOR_PROCESSING"
)

// Role is the part an AnalysisDataSeries plays in an analysis.
type Role string

const (
	RoleMonitoredObject Role = "DATASERIES_MONITORED_OBJECT_TYPE"
	RoleAdditionalData  Role = "ADDITIONAL_DATA_TYPE"
	RoleDCP             Role = "DCP_TYPE"
	RoleGrid            Role = "GRID_TYPE"
)

// ScriptLanguage identifies the script dialect. Only one is recognized.
type ScriptLanguage string

const ScriptStarlark ScriptLanguage = "STARLARK"

// Analysis metadata keys.
const (
	MetaInfluenceType       = "INFLUENCE_TYPE"
	MetaInfluenceRadius     = "INFLUENCE_RADIUS"
	MetaInfluenceRadiusUnit = "INFLUENCE_RADIUS_UNIT"
	MetaLookback            = "LOOKBACK"
	MetaIncremental         = "INCREMENTAL"
	MetaStandardDeviation   = "STANDARD_DEVIATION"
)

// MetaIdentifier is the AnalysisDataSeries metadata key naming the
// attribute that identifies each geometry.
const MetaIdentifier = "identifier"

// Project groups providers and analyses.
type Project struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      bool   `yaml:"active"`
}

// DataProvider describes where raw data is stored.
type DataProvider struct {
	ID        int64             `yaml:"id"`
	ProjectID int64             `yaml:"project_id"`
	Name      string            `yaml:"name"`
	Kind      ProviderKind      `yaml:"kind"`
	URI       string            `yaml:"uri"`
	Active    bool              `yaml:"active"`
	Options   map[string]string `yaml:"options"`
}

// Semantics describes how to interpret a series.
type Semantics struct {
	Code        string      `yaml:"code"`
	Kind        SeriesKind  `yaml:"kind"`
	Temporality Temporality `yaml:"temporality"`
	Format      DataFormat  `yaml:"format"`
}

// Attribute is one column of a series schema.
type Attribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// DataSet is one physical slice of a series, for example one station's file.
// Disabled datasets are skipped by the data accessor.
type DataSet struct {
	ID           int64             `yaml:"id"`
	DataSeriesID int64             `yaml:"data_series_id"`
	Disabled     bool              `yaml:"disabled"`
	Format       map[string]string `yaml:"format"`
}

// DataSeries is a named collection of datasets sharing semantics and schema.
type DataSeries struct {
	ID          int64       `yaml:"id"`
	ProviderID  int64       `yaml:"provider_id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Active      bool        `yaml:"active"`
	Semantics   Semantics   `yaml:"semantics"`
	Schema      []Attribute `yaml:"schema"`
	DataSets    []DataSet   `yaml:"datasets"`
}

// HasAttribute reports whether the schema declares name.
func (ds *DataSeries) HasAttribute(name string) bool {
	return slices.ContainsFunc(ds.Schema, func(a Attribute) bool { return a.Name == name })
}

// DataSet returns the dataset with the given id.
func (ds *DataSeries) DataSet(id int64) (DataSet, bool) {
	for _, set := range ds.DataSets {
		if set.ID == id {
			return set, true
		}
	}
	return DataSet{}, false
}

// Clone returns a deep copy.
func (ds *DataSeries) Clone() *DataSeries {
	c := *ds
	c.Schema = slices.Clone(ds.Schema)
	c.DataSets = make([]DataSet, len(ds.DataSets))
	for i, set := range ds.DataSets {
		set.Format = maps.Clone(set.Format)
		c.DataSets[i] = set
	}
	return &c
}

// AnalysisDataSeries binds a data series to a role inside one analysis.
type AnalysisDataSeries struct {
	ID           int64             `yaml:"id"`
	DataSeriesID int64             `yaml:"data_series_id"`
	Type         Role              `yaml:"type"`
	Alias        string            `yaml:"alias"`
	Metadata     map[string]string `yaml:"metadata"`
}

// MonitoredObjectName is the extra name the monitored-object series is
// always bound under.
const MonitoredObjectName = "monitored_object"

// BindingNames returns the names a script sees this entry under, given the
// name of the data series it refers to. The alias wins over the series name.
func (e AnalysisDataSeries) BindingNames(seriesName string) []string {
	name := e.Alias
	if name == "" {
		name = seriesName
	}
	if e.Type == RoleMonitoredObject && name != MonitoredObjectName {
		return []string{name, MonitoredObjectName}
	}
	return []string{name}
}

// Analysis is a job definition executed by the engine.
type Analysis struct {
	ID                 int64                `yaml:"id"`
	ProjectID          int64                `yaml:"project_id"`
	Name               string               `yaml:"name"`
	Description        string               `yaml:"description"`
	Script             string               `yaml:"script"`
	ScriptLanguage     ScriptLanguage       `yaml:"script_language"`
	Type               AnalysisType         `yaml:"type"`
	Active             bool                 `yaml:"active"`
	Metadata           map[string]string    `yaml:"metadata"`
	DataSeries         []AnalysisDataSeries `yaml:"data_series"`
	OutputDataSeriesID int64                `yaml:"output_data_series_id"`
	OutputDataSetID    int64                `yaml:"output_dataset_id"`
	ServiceInstanceID  int64                `yaml:"service_instance_id"`
}

// Clone returns a deep copy.
func (a *Analysis) Clone() *Analysis {
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	c.DataSeries = make([]AnalysisDataSeries, len(a.DataSeries))
	for i, ads := range a.DataSeries {
		ads.Metadata = maps.Clone(ads.Metadata)
		c.DataSeries[i] = ads
	}
	return &c
}

// RoleEntries returns the data series entries bound with role r, in declaration order.
func (a *Analysis) RoleEntries(r Role) []AnalysisDataSeries {
	var out []AnalysisDataSeries
	for _, ads := range a.DataSeries {
		if ads.Type == r {
			out = append(out, ads)
		}
	}
	return out
}
