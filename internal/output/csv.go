/*
PURPOSE:
  Writes simulation statistics, raw Monte Carlo samples and fleet-size
  search tables to CSV.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV for the dashboard's density plots and tables.

  Implementation-discovered:
  - Numbers are written at full precision; rounding is a display concern.
  - The same writer serves files and stdout.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Consumes: internal/model.SimulationResult, model.FleetSizeSearchResult

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).
  - Mutex-guarded so results can be streamed from several goroutines.

USAGE:
  w, err := output.NewCSVWriter("search.csv", output.SearchHeader(keys))
  w.Write(output.SearchRecord(row, keys))
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion together.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update the record mappings when result structs change.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/daryltucker/fleet-sim/internal/model"
)

// CSVWriter handles writing rows to a CSV stream.
type CSVWriter struct {
	closer io.Closer
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter on path and writes header.
// It overwrites the file if it exists.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cw, err := NewCSVStream(f, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// NewCSVStream wraps w. Close does not close w.
func NewCSVStream(w io.Writer, header []string) (*CSVWriter, error) {
	cw := &CSVWriter{writer: csv.NewWriter(w)}
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	return cw, nil
}

// Write writes a single record. It is thread-safe.
func (cw *CSVWriter) Write(record []string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close flushes and closes the underlying file, if any.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if cw.closer != nil {
		return cw.closer.Close()
	}
	return cw.writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func percentileColumn(p float64) string {
	return "p" + formatFloat(p)
}

// StatsHeader returns the header of the per-pollutant statistics table.
func StatsHeader(res *model.SimulationResult) []string {
	header := []string{"pollutant", "sample_size", "trials", "days", "mean", "std_dev", "sample_min", "sample_max", "max", "cumulative_mean"}
	if len(res.Stats) > 0 {
		for _, pv := range res.Stats[0].Percentiles {
			header = append(header, percentileColumn(pv.Percentile))
		}
	}
	return header
}

// StatsRecord converts one pollutant's statistics to a CSV record.
func StatsRecord(res *model.SimulationResult, st model.PollutantStats) []string {
	record := []string{
		st.Pollutant,
		strconv.Itoa(res.SampleSize),
		strconv.Itoa(res.Trials),
		strconv.Itoa(res.Days),
		formatFloat(st.Mean),
		formatFloat(st.StdDev),
		formatFloat(st.SampleMin),
		formatFloat(st.SampleMax),
		formatFloat(st.Max),
		formatFloat(st.CumulativeMean),
	}
	for _, pv := range st.Percentiles {
		record = append(record, formatFloat(pv.Value))
	}
	return record
}

// WriteStats writes the statistics table of res to w.
func WriteStats(w io.Writer, res *model.SimulationResult) error {
	cw, err := NewCSVStream(w, StatsHeader(res))
	if err != nil {
		return err
	}
	for _, st := range res.Stats {
		if err := cw.Write(StatsRecord(res, st)); err != nil {
			return err
		}
	}
	return cw.Close()
}

// WriteSamples writes one row per trial with one column per pollutant.
func WriteSamples(path string, res *model.SimulationResult) error {
	header := []string{"trial"}
	for _, st := range res.Stats {
		header = append(header, st.Pollutant)
	}
	cw, err := NewCSVWriter(path, header)
	if err != nil {
		return fmt.Errorf("failed to create samples file %s: %w", path, err)
	}
	defer cw.Close()

	for t := 0; t < res.Trials; t++ {
		record := []string{strconv.Itoa(t + 1)}
		for _, st := range res.Stats {
			if t >= len(st.Samples) {
				return fmt.Errorf("pollutant %s has %d samples, expected %d", st.Pollutant, len(st.Samples), res.Trials)
			}
			record = append(record, formatFloat(st.Samples[t]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// SearchHeader returns the header of the fleet-size search table.
func SearchHeader(pollutants []string) []string {
	return append([]string{"size"}, pollutants...)
}

// SearchRecord converts one search row to a CSV record.
func SearchRecord(row model.SearchRow, pollutants []string) []string {
	record := []string{strconv.Itoa(row.Size)}
	for _, key := range pollutants {
		record = append(record, formatFloat(row.Values[key]))
	}
	return record
}

// WriteSearch writes every row of res to w.
func WriteSearch(w io.Writer, res *model.FleetSizeSearchResult, pollutants []string) error {
	cw, err := NewCSVStream(w, SearchHeader(pollutants))
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		if err := cw.Write(SearchRecord(row, pollutants)); err != nil {
			return err
		}
	}
	return cw.Close()
}
