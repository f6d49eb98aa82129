// Package views derives secondary tables from the flat record table:
// per-(year, landuse, elevation) clusters and the characteristic year.
package views

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/zonal"
)

// ClusterKey identifies one cluster.
type ClusterKey struct {
	Year           int
	Landuse        int
	ElevationClass string
}

// ClusterRow is a record without its grouping columns.
type ClusterRow struct {
	Date time.Time
	zonal.Stats
}

// Cluster is the records of one (year, landuse, elevation class) group.
type Cluster struct {
	ClusterKey
	Rows []ClusterRow
}

// SplitClusters partitions tbl by (year, landuse, elevation class). Clusters
// are ordered by key; rows keep table order.
func SplitClusters(tbl records.Table) []Cluster {
	idx := make(map[ClusterKey]int)
	var out []Cluster
	for _, r := range tbl {
		k := ClusterKey{Year: r.Date.Year(), Landuse: r.Landuse, ElevationClass: r.ElevationClass}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Cluster{ClusterKey: k})
		}
		out[i].Rows = append(out[i].Rows, ClusterRow{Date: r.Date, Stats: r.Stats})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].less(out[j].ClusterKey) })
	return out
}

func (k ClusterKey) less(o ClusterKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Landuse != o.Landuse {
		return k.Landuse < o.Landuse
	}
	return k.ElevationClass < o.ElevationClass
}

// MergeClusters rebuilds a record table from clusters.
func MergeClusters(clusters []Cluster) records.Table {
	var out records.Table
	for _, c := range clusters {
		for _, r := range c.Rows {
			out = append(out, records.Record{
				Date:           r.Date,
				Landuse:        c.Landuse,
				ElevationClass: c.ElevationClass,
				Stats:          r.Stats,
			})
		}
	}
	return out
}

// ClusterFilename is lai_data_{year}_{landuse}_{elevation}.csv.
func ClusterFilename(k ClusterKey) string {
	return fmt.Sprintf("lai_data_%d_%d_%s.csv", k.Year, k.Landuse, k.ElevationClass)
}

var clusterName = regexp.MustCompile(`^lai_data_(\d+)_(\d+)_(\d+-\d+|less_than_\d+|greater_than_\d+)\.csv$`)

// ParseClusterFilename extracts the key of a cluster file name.
func ParseClusterFilename(name string) (ClusterKey, error) {
	m := clusterName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return ClusterKey{}, fmt.Errorf("%q is not a cluster file name", name)
	}
	year, _ := strconv.Atoi(m[1])
	lu, err := strconv.Atoi(m[2])
	if err != nil {
		return ClusterKey{}, fmt.Errorf("%q: landuse: %w", name, err)
	}
	return ClusterKey{Year: year, Landuse: lu, ElevationClass: m[3]}, nil
}

var clusterHeader = append([]string{"Date"}, records.Header[3:]...)

// WriteClusters writes one CSV per cluster into dir and returns the paths.
func WriteClusters(dir string, clusters []Cluster) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(clusters))
	for _, c := range clusters {
		p := filepath.Join(dir, ClusterFilename(c.ClusterKey))
		if err := writeCluster(p, c); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeCluster(path string, c Cluster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	cw.Write(clusterHeader)
	for _, r := range c.Rows {
		row := []string{r.Date.Format(records.DateLayout)}
		for _, v := range r.Stats.Values() {
			row = append(row, records.FormatFloat(v))
		}
		cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadClusterDir loads every cluster file in dir, keyed by its file name.
// Other files are ignored.
func ReadClusterDir(dir string) ([]Cluster, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []Cluster
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, err := ParseClusterFilename(e.Name())
		if err != nil {
			continue
		}
		rows, err := readCluster(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, Cluster{ClusterKey: k, Rows: rows})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].less(out[j].ClusterKey) })
	return out, nil
}

func readCluster(path string) ([]ClusterRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(clusterHeader)
	lines, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("missing header")
	}

	rows := make([]ClusterRow, 0, len(lines)-1)
	for n, l := range lines[1:] {
		d, err := time.Parse(records.DateLayout, l[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		var vals [8]float64
		for i := range vals {
			if vals[i], err = records.ParseFloat(l[1+i]); err != nil {
				return nil, fmt.Errorf("line %d: %w", n+2, err)
			}
		}
		rows = append(rows, ClusterRow{Date: d, Stats: zonal.FromValues(vals)})
	}
	return rows, nil
}
