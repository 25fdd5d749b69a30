package model

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

var (
	// ErrNegativeValue is returned when a record carries a negative or NaN quantity.
	ErrNegativeValue = errors.New("pollutant quantity must be a non-negative number")
	// ErrMissingPollutant is returned when records disagree on the pollutant schema.
	ErrMissingPollutant = errors.New("record is missing a pollutant of the dataset schema")
)

// Dataset is an immutable population of emission records.
// Columns are materialized once so the simulator can read them without
// touching the per-record maps.
type Dataset struct {
	records    []EmissionRecord
	pollutants []string
	columns    map[string][]float64
}

// NewDataset validates records and builds a Dataset. The pollutant schema is
// taken from the first record; every other record must carry the same keys.
// The records and their Values maps are copied.
func NewDataset(records []EmissionRecord) (*Dataset, error) {
	ds := &Dataset{
		records: slices.Clone(records),
		columns: make(map[string][]float64),
	}
	if len(records) == 0 {
		return ds, nil
	}

	for key := range records[0].Values {
		ds.pollutants = append(ds.pollutants, key)
	}
	slices.Sort(ds.pollutants)

	for _, key := range ds.pollutants {
		ds.columns[key] = make([]float64, len(records))
	}

	for i, r := range records {
		if len(r.Values) != len(ds.pollutants) {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.ID, ErrMissingPollutant)
		}
		for _, key := range ds.pollutants {
			v, ok := r.Values[key]
			if !ok {
				return nil, fmt.Errorf("record %d (%s): %q: %w", i, r.ID, key, ErrMissingPollutant)
			}
			if math.IsNaN(v) || v < 0 {
				return nil, fmt.Errorf("record %d (%s): %s=%v: %w", i, r.ID, key, v, ErrNegativeValue)
			}
			ds.columns[key][i] = v
		}
		ds.records[i].Values = maps.Clone(r.Values)
	}

	return ds, nil
}

// Len returns the population size.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Pollutants returns the sorted pollutant keys of the schema.
func (d *Dataset) Pollutants() []string {
	return slices.Clone(d.pollutants)
}

// HasPollutant reports whether key belongs to the schema.
func (d *Dataset) HasPollutant(key string) bool {
	_, ok := d.columns[key]
	return ok
}

// Column returns the values of one pollutant in dataset order.
// The returned slice is shared and must not be modified.
func (d *Dataset) Column(key string) ([]float64, bool) {
	c, ok := d.columns[key]
	return c, ok
}

// Records returns a deep copy of the records in dataset order. Changing a
// returned record or its Values map does not affect the dataset.
func (d *Dataset) Records() []EmissionRecord {
	out := make([]EmissionRecord, len(d.records))
	for i, r := range d.records {
		out[i] = r
		out[i].Values = maps.Clone(r.Values)
	}
	return out
}

// Filter returns a new Dataset holding the records for which keep is true.
// keep receives a copy of each record.
func (d *Dataset) Filter(keep func(EmissionRecord) bool) *Dataset {
	out := &Dataset{
		pollutants: slices.Clone(d.pollutants),
		columns:    make(map[string][]float64, len(d.columns)),
	}
	for _, key := range d.pollutants {
		out.columns[key] = make([]float64, 0, len(d.records))
	}
	for i, r := range d.records {
		cp := r
		cp.Values = maps.Clone(r.Values)
		if !keep(cp) {
			continue
		}
		out.records = append(out.records, r)
		for _, key := range d.pollutants {
			out.columns[key] = append(out.columns[key], d.columns[key][i])
		}
	}
	return out
}
