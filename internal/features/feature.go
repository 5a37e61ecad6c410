// Package features models technical indicators as nodes in an explicit
// dependency graph. A feature declares the columns it reads (raw columns or
// other features); execution order is resolved by topological sort once per
// pipeline run, and unmet dependencies are rejected before any computation
// starts.
package features

import (
	"fmt"
	"sort"
)

// Raw column names available to feature computations.
const (
	RawOpen     = "open"
	RawHigh     = "high"
	RawLow      = "low"
	RawClose    = "close"
	RawPreClose = "pre_close"
	RawVolume   = "volume"
	RawAmount   = "amount"
)

// Series is the per-instrument computation context: columns aligned over
// the instrument's trade dates, sorted ascending. Values are pointers so a
// feature can be NULL while its warm-up window is unmet.
type Series struct {
	TSCode string
	Dates  []string
	cols   map[string][]*float64
}

// NewSeries creates a series for one instrument over the given dates.
func NewSeries(tsCode string, dates []string) *Series {
	return &Series{
		TSCode: tsCode,
		Dates:  dates,
		cols:   make(map[string][]*float64),
	}
}

// Len returns the number of rows in the series.
func (s *Series) Len() int { return len(s.Dates) }

// SetColumn stores a column. The column length must match the series.
func (s *Series) SetColumn(name string, values []*float64) error {
	if len(values) != s.Len() {
		return fmt.Errorf("column %s: length %d does not match series length %d", name, len(values), s.Len())
	}
	s.cols[name] = values
	return nil
}

// Column returns a stored column, nil if absent.
func (s *Series) Column(name string) []*float64 {
	return s.cols[name]
}

// Feature is a named computable column with declared upstream dependencies.
// Compute is called with a series whose dependency columns are already
// populated and must return one value per series row.
type Feature struct {
	Name    string
	Deps    []string
	Compute func(s *Series) ([]*float64, error)
}

// Registry holds the known features and the raw columns that serve as the
// dependency graph's leaves.
type Registry struct {
	features map[string]Feature
	rawCols  map[string]struct{}
}

// NewRegistry creates a registry whose leaf columns are the given raw
// column names.
func NewRegistry(rawColumns ...string) *Registry {
	raw := make(map[string]struct{}, len(rawColumns))
	for _, c := range rawColumns {
		raw[c] = struct{}{}
	}
	return &Registry{
		features: make(map[string]Feature),
		rawCols:  raw,
	}
}

// Register adds a feature. A name may be registered once and must not
// collide with a raw column.
func (r *Registry) Register(f Feature) error {
	if f.Name == "" || f.Compute == nil {
		return fmt.Errorf("feature must have a name and a compute function")
	}
	if _, ok := r.rawCols[f.Name]; ok {
		return fmt.Errorf("feature %s collides with a raw column", f.Name)
	}
	if _, ok := r.features[f.Name]; ok {
		return fmt.Errorf("feature %s already registered", f.Name)
	}
	r.features[f.Name] = f
	return nil
}

// Names returns all registered feature names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.features))
	for n := range r.features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a registered feature.
func (r *Registry) Has(name string) bool {
	_, ok := r.features[name]
	return ok
}

// isRaw reports whether name is a raw leaf column.
func (r *Registry) isRaw(name string) bool {
	_, ok := r.rawCols[name]
	return ok
}
