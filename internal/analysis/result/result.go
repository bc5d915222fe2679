// Package result turns per-row script emissions into output dataset records.
package result

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/guianderson/terrama2/internal/errors"
)

// Record is one row of an analysis output dataset.
type Record struct {
	DataSetID     int64
	AnalysisID    int64
	ObjectID      string
	Geometry      orb.Geometry
	ExecutionDate time.Time
	Attributes    map[string]any
}

// Writer persists records. Writes are upserts keyed by dataset, object
// and execution date so a re-run of the same reference time replaces rows.
type Writer interface {
	WriteResult(ctx context.Context, rec Record) error
}

// Assembler writes one record per evaluated row of a single execution.
// Rows are written as they complete and are never rolled back.
type Assembler struct {
	writer        Writer
	analysisID    int64
	dataSetID     int64
	executionDate time.Time
	written       int
}

// NewAssembler returns an Assembler for one execution of analysisID.
func NewAssembler(w Writer, analysisID, dataSetID int64, executionDate time.Time) *Assembler {
	return &Assembler{
		writer:        w,
		analysisID:    analysisID,
		dataSetID:     dataSetID,
		executionDate: executionDate,
	}
}

// Add merges the row identity with its emitted attributes and writes it.
func (a *Assembler) Add(ctx context.Context, objectID string, geom orb.Geometry, emitted map[string]any) error {
	rec := Record{
		DataSetID:     a.dataSetID,
		AnalysisID:    a.analysisID,
		ObjectID:      objectID,
		Geometry:      geom,
		ExecutionDate: a.executionDate,
		Attributes:    maps.Clone(emitted),
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]any{}
	}
	if err := a.writer.WriteResult(ctx, rec); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Component("result").
			Context("analysis_id", a.analysisID).
			Context("object_id", objectID).
			Build()
	}
	a.written++
	return nil
}

// Written returns the number of records written so far.
func (a *Assembler) Written() int {
	return a.written
}

// MemoryWriter keeps records in memory, replacing rows with the same key.
// The run command uses it for dry runs.
type MemoryWriter struct {
	mu      sync.Mutex
	records map[memoryKey]Record
	order   []memoryKey
}

type memoryKey struct {
	dataSetID int64
	objectID  string
	date      int64
}

// NewMemoryWriter returns an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{records: make(map[memoryKey]Record)}
}

// WriteResult implements Writer.
func (m *MemoryWriter) WriteResult(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{rec.DataSetID, rec.ObjectID, rec.ExecutionDate.UnixNano()}
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	m.records[key] = rec
	return nil
}

// Records returns the stored records in first-write order.
func (m *MemoryWriter) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.records[key])
	}
	return out
}

// AttributeNames returns the sorted attribute names of rec.
func (rec Record) AttributeNames() []string {
	return slices.Sorted(maps.Keys(rec.Attributes))
}
