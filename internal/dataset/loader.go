/*
PURPOSE:
  Loads the emission-record population from a CSV export of the fleet
  tables (one row per bus or trip).

REQUIREMENTS:
  User-specified:
  - Map named CSV columns onto pollutant keys.
  - Normalize every pollutant to tonnes before simulation.

  Implementation-discovered:
  - Electric flags arrive as true/false, 1/0 or Portuguese sim/não.
  - Start times use more than one layout across exports.
  - The simulator must never convert units itself, so conversion lives here.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli, internal/server (at startup)
  - Produces: *model.Dataset

ERROR HANDLING:
  - Returns an error naming the CSV line for any unparsable cell.
  - Missing mapped columns are reported before reading rows.

IMPLEMENTATION RULES:
  - Read-only: the source file is never modified.

USAGE:
  ds, err := dataset.Load(opts)

SELF-HEALING INSTRUCTIONS:
  - If a new export renames columns, update the config mapping, not this file.

RELATED FILES:
  - internal/dataset/units.go
  - internal/config/config.go

MAINTENANCE:
  - Update when the exports add new metadata columns.
*/

package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/daryltucker/fleet-sim/internal/model"
)

var (
	// ErrMissingColumn is returned when a mapped column is absent from the header.
	ErrMissingColumn = errors.New("column not found in CSV header")
	// ErrNoPollutants is returned when the options map no pollutant column.
	ErrNoPollutants = errors.New("no pollutant columns configured")
)

// Filter values selecting part of the fleet.
const (
	FilterAll        = "all"
	FilterElectric   = "electric"
	FilterCombustion = "combustion"
)

// PollutantColumn maps a CSV column to a pollutant key.
type PollutantColumn struct {
	Key    string `yaml:"key" json:"key"`
	Column string `yaml:"column" json:"column"`
	Unit   string `yaml:"unit" json:"unit"` // t, kg or g
}

// Options describes where the dataset lives and how its columns map.
type Options struct {
	Path           string            `yaml:"path"`
	IDColumn       string            `yaml:"id_column"`
	ElectricColumn string            `yaml:"electric_column"`
	ModelColumn    string            `yaml:"model_column"`
	TimeColumn     string            `yaml:"time_column"`
	TimeLayout     string            `yaml:"time_layout"`
	Filter         string            `yaml:"filter"`
	Pollutants     []PollutantColumn `yaml:"pollutants"`
}

// timeLayouts are tried in order when no TimeLayout is configured.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"15:04:05",
	"15:04",
}

// Load opens opts.Path and reads the dataset.
func Load(opts Options) (*model.Dataset, error) {
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", opts.Path, err)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", opts.Path, err)
	}
	return ds, nil
}

// Read parses a CSV stream into a dataset.
func Read(r io.Reader, opts Options) (*model.Dataset, error) {
	if len(opts.Pollutants) == 0 {
		return nil, ErrNoPollutants
	}
	keep, err := filterFunc(opts.Filter)
	if err != nil {
		return nil, err
	}

	rr := newRowReader(r)
	header, err := rr.Header()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewDataset(nil)
		}
		return nil, err
	}
	if err := checkColumns(header, opts); err != nil {
		return nil, err
	}

	var records []model.EmissionRecord
	for n := 1; rr.Next(); n++ {
		rec, err := parseRow(rr.Row(), opts, n)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rr.Line(), err)
		}
		if keep(rec) {
			records = append(records, rec)
		}
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}

	return model.NewDataset(records)
}

func checkColumns(header []string, opts Options) error {
	required := []string{opts.IDColumn, opts.ElectricColumn, opts.ModelColumn, opts.TimeColumn}
	for _, p := range opts.Pollutants {
		if p.Key == "" || p.Column == "" {
			return fmt.Errorf("pollutant mapping %+v needs both key and column", p)
		}
		required = append(required, p.Column)
	}
	for _, col := range required {
		if col != "" && !slices.Contains(header, col) {
			return fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}
	return nil
}

func parseRow(row map[string]string, opts Options, n int) (model.EmissionRecord, error) {
	rec := model.EmissionRecord{
		ID:     fmt.Sprintf("row-%d", n),
		Values: make(map[string]float64, len(opts.Pollutants)),
	}
	if opts.IDColumn != "" {
		rec.ID = strings.TrimSpace(row[opts.IDColumn])
	}
	if opts.ModelColumn != "" {
		rec.Model = strings.TrimSpace(row[opts.ModelColumn])
	}
	if opts.ElectricColumn != "" {
		electric, err := ParseBool(row[opts.ElectricColumn])
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", opts.ElectricColumn, err)
		}
		rec.Electric = electric
	}
	if opts.TimeColumn != "" {
		start, err := ParseTime(row[opts.TimeColumn], opts.TimeLayout)
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", opts.TimeColumn, err)
		}
		rec.Start = start
	}

	for _, p := range opts.Pollutants {
		raw := row[p.Column]
		if strings.TrimSpace(raw) == "" {
			return rec, fmt.Errorf("column %s: empty quantity", p.Column)
		}
		v, err := ToTonnes(raw, p.Unit)
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", p.Column, err)
		}
		rec.Values[p.Key] = v
	}
	return rec, nil
}

// ParseBool accepts the electric-flag spellings found in the fleet exports.
// An empty cell is false.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no", "n", "nao", "não", "f":
		return false, nil
	case "true", "1", "yes", "y", "sim", "s", "t":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseTime parses s with layout, or with the known export layouts when
// layout is empty. An empty cell is the zero time.
func ParseTime(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if layout != "" {
		return time.Parse(layout, s)
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func filterFunc(filter string) (func(model.EmissionRecord) bool, error) {
	switch strings.ToLower(filter) {
	case "", FilterAll:
		return func(model.EmissionRecord) bool { return true }, nil
	case FilterElectric:
		return func(r model.EmissionRecord) bool { return r.Electric }, nil
	case FilterCombustion:
		return func(r model.EmissionRecord) bool { return !r.Electric }, nil
	}
	return nil, fmt.Errorf("unknown filter %q (want %s, %s or %s)", filter, FilterAll, FilterElectric, FilterCombustion)
}
