package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chrissnell/laistats/internal/zonal"
)

// Header is the column layout of the record table exports.
var Header = []string{
	"Date", "Landuse", "Elevation_class",
	"Mean_LAI", "Min", "Q1", "Median", "Q3", "Max",
	"Lower Whisker", "Upper Whisker",
}

// FormatFloat renders a statistic; NaN is written as an empty field.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat is the inverse of FormatFloat.
func ParseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes the table with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range t {
		row := []string{
			r.Date.Format(DateLayout),
			strconv.Itoa(r.Landuse),
			r.ElevationClass,
		}
		for _, v := range r.Stats.Values() {
			row = append(row, FormatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path, creating parent directories.
func WriteCSVFile(path string, t Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV parses a table written by WriteCSV.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	for i, h := range Header {
		if rows[0][i] != h {
			return nil, fmt.Errorf("column %d is %q, expected %q", i+1, rows[0][i], h)
		}
	}

	t := make(Table, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		t = append(t, rec)
	}
	return t, nil
}

// ReadCSVFile reads a table from path.
func ReadCSVFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

func parseRow(row []string) (Record, error) {
	date, err := time.Parse(DateLayout, row[0])
	if err != nil {
		return Record{}, err
	}
	lu, err := strconv.Atoi(row[1])
	if err != nil {
		return Record{}, fmt.Errorf("landuse: %w", err)
	}

	var vals [8]float64
	for i := range vals {
		if vals[i], err = ParseFloat(row[3+i]); err != nil {
			return Record{}, fmt.Errorf("%s: %w", Header[3+i], err)
		}
	}

	return Record{
		Date:           date,
		Landuse:        lu,
		ElevationClass: row[2],
		Stats:          zonal.FromValues(vals),
	}, nil
}
