package views

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/zonal"
	"gonum.org/v1/gonum/stat"
)

// DayRecord is the multi-year mean of one (month-day, landuse, elevation
// class) group.
type DayRecord struct {
	MonthDay       string `json:"month_day" msgpack:"month_day"`
	Landuse        int    `json:"landuse" msgpack:"landuse"`
	ElevationClass string `json:"elevation_class" msgpack:"elevation_class"`
	Years          int    `json:"years" msgpack:"years"`
	zonal.Stats
}

type dayKey struct {
	md   string
	lu   int
	elev string
}

// CharacteristicYear averages every statistic across years for each
// (MM-DD, landuse, elevation class). Output is sorted by that key.
// Quantile columns are averages of per-year quantiles. NaN years are
// skipped per column; a column is NaN only when every year is.
func CharacteristicYear(tbl records.Table) []DayRecord {
	groups := make(map[dayKey][][8]float64)
	for _, r := range tbl {
		k := dayKey{r.Date.Format("01-02"), r.Landuse, r.ElevationClass}
		groups[k] = append(groups[k], r.Stats.Values())
	}

	keys := make([]dayKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.md != b.md {
			return a.md < b.md
		}
		if a.lu != b.lu {
			return a.lu < b.lu
		}
		return a.elev < b.elev
	})

	out := make([]DayRecord, 0, len(keys))
	for _, k := range keys {
		vals := groups[k]
		var mean [8]float64
		col := make([]float64, 0, len(vals))
		for c := range mean {
			col = col[:0]
			for _, v := range vals {
				if !math.IsNaN(v[c]) {
					col = append(col, v[c])
				}
			}
			if len(col) == 0 {
				mean[c] = math.NaN()
				continue
			}
			mean[c] = stat.Mean(col, nil)
		}
		out = append(out, DayRecord{
			MonthDay:       k.md,
			Landuse:        k.lu,
			ElevationClass: k.elev,
			Years:          len(vals),
			Stats:          zonal.FromValues(mean),
		})
	}
	return out
}

// CharacteristicHeader is the record table header with the first column
// renamed to Day_of_Year, which holds the MM-DD key.
var CharacteristicHeader = append([]string{"Day_of_Year"}, records.Header[1:]...)

// WriteCharacteristicCSV writes the characteristic year with the record
// table columns.
func WriteCharacteristicCSV(w io.Writer, days []DayRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CharacteristicHeader); err != nil {
		return err
	}
	for _, d := range days {
		row := []string{d.MonthDay, strconv.Itoa(d.Landuse), d.ElevationClass}
		for _, v := range d.Stats.Values() {
			row = append(row, records.FormatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCharacteristicCSVFile writes days to path.
func WriteCharacteristicCSVFile(path string, days []DayRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCharacteristicCSV(f, days); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
