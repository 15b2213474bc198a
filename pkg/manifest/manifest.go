// Package manifest records the outcome of a batch as a YAML document: the
// playback order with the metadata that produced it, plus the rejected
// count.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"slicestack/pkg/ingest"
	"slicestack/pkg/stats"
)

// Entry describes one ordered slice. Absent metadata is omitted.
type Entry struct {
	Index          int      `yaml:"index"`
	Source         string   `yaml:"source"`
	PositionZ      *float64 `yaml:"position_z,omitempty"`
	SliceLocation  *float64 `yaml:"slice_location,omitempty"`
	InstanceNumber *int64   `yaml:"instance_number,omitempty"`
	Rows           int      `yaml:"rows"`
	Columns        int      `yaml:"columns"`
}

// Manifest is the serialized form of a batch.
type Manifest struct {
	BatchID   string         `yaml:"batch_id"`
	CreatedAt time.Time      `yaml:"created_at"`
	Duration  time.Duration  `yaml:"duration"`
	Total     int            `yaml:"total"`
	Loaded    int            `yaml:"loaded"`
	Rejected  int            `yaml:"rejected"`
	OrderedBy string         `yaml:"ordered_by,omitempty"`
	Spacing   *stats.Spacing `yaml:"spacing,omitempty"`
	Slices    []Entry        `yaml:"slices"`
}

// FromBatch builds the manifest of batch.
func FromBatch(batch *ingest.Batch) Manifest {
	m := Manifest{
		BatchID:   batch.ID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Duration:  batch.Duration,
		Total:     batch.Stack.Total(),
		Loaded:    len(batch.Stack.Slices),
		Rejected:  batch.Stack.Rejected,
		OrderedBy: batch.Summary.OrderedBy,
		Spacing:   batch.Summary.Spacing,
		Slices:    make([]Entry, len(batch.Stack.Slices)),
	}
	for i, s := range batch.Stack.Slices {
		m.Slices[i] = Entry{
			Index:          i,
			Source:         s.SourceName,
			PositionZ:      s.ImagePositionZ.Ptr(),
			SliceLocation:  s.SliceLocation.Ptr(),
			InstanceNumber: s.InstanceNumber.Ptr(),
			Rows:           s.Rows,
			Columns:        s.Columns,
		}
	}
	return m
}

// Write saves m to path, creating parent directories as needed.
func Write(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("error reading manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("error parsing manifest: %w", err)
	}
	return m, nil
}

// Sources returns the source names in playback order.
func (m Manifest) Sources() []string {
	out := make([]string, len(m.Slices))
	for i, e := range m.Slices {
		out[i] = e.Source
	}
	return out
}
