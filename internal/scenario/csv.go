package scenario

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chrissnell/laistats/internal/records"
)

// Header is the column layout of the adjustment table export.
var Header = []string{
	"Date", "Elevation_class", "Landuse_target", "Landuse_current",
	"Median_target", "Median_current", "Q1_target", "Q3_target", "Diff",
	"Sum_of_pixels", "Count_unchanged_pixels",
}

// WriteCSV writes rows with a header. Undefined audit counts are empty.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(records.DateLayout),
			r.ElevationClass,
			strconv.Itoa(r.LanduseTarget),
			strconv.Itoa(r.LanduseCurrent),
			records.FormatFloat(r.MedianTarget),
			records.FormatFloat(r.MedianCurrent),
			records.FormatFloat(r.Q1Target),
			records.FormatFloat(r.Q3Target),
			strconv.FormatFloat(r.Diff, 'g', -1, 64),
			optInt(r.SumOfPixels),
			optInt(r.CountUnchangedPixels),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
