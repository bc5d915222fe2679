package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk layout of a project catalog file.
type Document struct {
	Projects   []Project      `yaml:"projects"`
	Providers  []DataProvider `yaml:"providers"`
	DataSeries []DataSeries   `yaml:"data_series"`
	Analyses   []Analysis     `yaml:"analyses"`
}

// LoadFile reads a YAML catalog document from path into a new Catalog.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	c := New()
	if err := c.Load(f); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return c, nil
}

// Load decodes a YAML catalog document and adds every entity in it.
// Unknown keys are rejected so typos in metadata-bearing sections surface early.
func (c *Catalog) Load(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return fmt.Errorf("decode catalog: %w", err)
	}

	for i := range doc.Projects {
		if err := c.Add(&doc.Projects[i]); err != nil {
			return err
		}
	}
	for i := range doc.Providers {
		if err := c.Add(&doc.Providers[i]); err != nil {
			return err
		}
	}
	for i := range doc.DataSeries {
		if err := c.Add(&doc.DataSeries[i]); err != nil {
			return err
		}
	}
	for i := range doc.Analyses {
		if err := c.Add(&doc.Analyses[i]); err != nil {
			return err
		}
	}
	return nil
}
