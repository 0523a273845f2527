// Package datafile reads ring-down acquisitions stored as ';'-separated text
// with '%' comment lines and the columns time, amplitude and optional voltage.
package datafile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Errors returned by Parse.
var (
	ErrNoData      = errors.New("datafile: no data records")
	ErrColumnCount = errors.New("datafile: expected 2 or 3 columns")
)

// Columns holds the parsed columns. Voltage is nil for two-column files.
type Columns struct {
	Time      []float64
	Amplitude []float64
	Voltage   []float64
}

// Len returns the number of records.
func (c Columns) Len() int {
	return len(c.Time)
}

// ReadFile parses the file at path.
func ReadFile(path string) (Columns, error) {
	f, err := os.Open(path)
	if err != nil {
		return Columns{}, fmt.Errorf("datafile: open %s: %w", path, err)
	}
	defer f.Close()

	cols, err := Parse(f)
	if err != nil {
		return Columns{}, fmt.Errorf("%s: %w", path, err)
	}
	return cols, nil
}

// Parse reads records from r. Every record must have the column count of the
// first one; a trailing separator is ignored.
func Parse(r io.Reader) (Columns, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.Comment = '%'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var (
		cols   Columns
		fields int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Columns{}, fmt.Errorf("datafile: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if n := len(record); n > 0 && strings.TrimSpace(record[n-1]) == "" {
			record = record[:n-1]
		}
		if fields == 0 {
			fields = len(record)
			if fields != 2 && fields != 3 {
				return Columns{}, fmt.Errorf("%w: line %d has %d", ErrColumnCount, line, fields)
			}
		} else if len(record) != fields {
			return Columns{}, fmt.Errorf("%w: line %d has %d, earlier lines %d", ErrColumnCount, line, len(record), fields)
		}

		values := make([]float64, fields)
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return Columns{}, fmt.Errorf("datafile: line %d column %d: %w", line, i+1, err)
			}
			values[i] = v
		}
		cols.Time = append(cols.Time, values[0])
		cols.Amplitude = append(cols.Amplitude, values[1])
		if fields == 3 {
			cols.Voltage = append(cols.Voltage, values[2])
		}
	}

	if cols.Len() == 0 {
		return Columns{}, ErrNoData
	}
	return cols, nil
}

// Write stores cols in the format Parse reads, preceded by a comment header.
func Write(w io.Writer, cols Columns) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	header := "% time; amplitude"
	if cols.Voltage != nil {
		header += "; voltage"
	}
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return fmt.Errorf("datafile: %w", err)
	}

	for i := range cols.Time {
		record := []string{
			strconv.FormatFloat(cols.Time[i], 'g', -1, 64),
			strconv.FormatFloat(cols.Amplitude[i], 'g', -1, 64),
		}
		if cols.Voltage != nil {
			record = append(record, strconv.FormatFloat(cols.Voltage[i], 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("datafile: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("datafile: %w", err)
	}
	return nil
}
