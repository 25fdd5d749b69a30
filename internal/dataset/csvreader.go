package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"slices"
	"strings"
)

// rowReader reads a CSV file with a header row, returning each record as a
// column-name keyed map. The map is reused between calls.
type rowReader struct {
	r      *csv.Reader
	header []string
	row    map[string]string
	err    error
}

func newRowReader(r io.Reader) *rowReader {
	o := &rowReader{r: csv.NewReader(r)}
	o.r.ReuseRecord = true
	o.r.TrimLeadingSpace = true
	return o
}

// Header reads the header row if needed and returns it.
func (r *rowReader) Header() ([]string, error) {
	if r.header == nil && r.err == nil {
		var row []string
		row, r.err = r.r.Read()
		if r.err == nil {
			r.header = slices.Clone(row)
			if len(r.header) > 0 {
				r.header[0] = trimBOM(r.header[0])
			}
		}
	}
	return r.header, r.err
}

// Next advances to the next row. It returns false at EOF or on error;
// check Err afterwards.
func (r *rowReader) Next() bool {
	if _, err := r.Header(); err != nil {
		return false
	}
	if r.row == nil {
		r.row = make(map[string]string, len(r.header))
	}

	var row []string
	row, r.err = r.r.Read()
	if r.err != nil {
		return false
	}
	for i, key := range r.header {
		r.row[key] = row[i]
	}
	return true
}

// Row returns the current row.
func (r *rowReader) Row() map[string]string {
	return r.row
}

func (r *rowReader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

// Line returns the input line of the current row.
func (r *rowReader) Line() int {
	line, _ := r.r.FieldPos(0)
	return line
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
