package rasterio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chrissnell/laistats/internal/raster"
)

// enviHeader holds the subset of ENVI header fields needed to decode a
// band-sequential, band-interleaved-by-line or -by-pixel raster.
type enviHeader struct {
	samples    int
	lines      int
	bands      int
	offset     int64
	dataType   int
	interleave string
	byteOrder  binary.ByteOrder
	transform  raster.GeoTransform
	crs        string
	noData     *float64
}

// enviTypeSize maps ENVI "data type" codes to their size in bytes.
var enviTypeSize = map[int]int{
	1:  1, // uint8
	2:  2, // int16
	3:  4, // int32
	4:  4, // float32
	5:  8, // float64
	12: 2, // uint16
	13: 4, // uint32
	14: 8, // int64
	15: 8, // uint64
}

// ImportENVI reads an ENVI raster. path may name either the data file or
// its .hdr header.
func (s *Store) ImportENVI(path string) (*raster.Raster, error) {
	dataPath, hdrPath := enviPaths(path)

	hf, err := os.Open(hdrPath)
	if err != nil {
		return nil, err
	}
	hdr, err := parseENVIHeader(hf)
	hf.Close()
	if err != nil {
		return nil, fmt.Errorf("ENVI header %s: %w", hdrPath, err)
	}

	df, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	defer df.Close()

	bands, err := decodeENVIData(bufio.NewReader(df), hdr)
	if err != nil {
		return nil, fmt.Errorf("ENVI data %s: %w", dataPath, err)
	}

	return &raster.Raster{
		Meta: raster.Meta{
			Rows:      hdr.lines,
			Cols:      hdr.samples,
			Transform: hdr.transform,
			CRS:       hdr.crs,
			NoData:    hdr.noData,
		},
		Bands: bands,
	}, nil
}

func enviPaths(path string) (data, hdr string) {
	if strings.EqualFold(filepath.Ext(path), ".hdr") {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		// Both "name.hdr" and "name.img.hdr" conventions are in use.
		for _, ext := range []string{"", ".img", ".dat", ".bsq", ".raw"} {
			if _, err := os.Stat(base + ext); err == nil {
				return base + ext, path
			}
		}
		return base, path
	}
	return path, path + ".hdr"
}

func parseENVIHeader(r io.Reader) (*enviHeader, error) {
	fields, err := readENVIFields(r)
	if err != nil {
		return nil, err
	}

	h := &enviHeader{
		bands:      1,
		dataType:   4,
		interleave: "bsq",
		byteOrder:  binary.LittleEndian,
		transform:  raster.GeoTransform{0, 1, 0, 0, 0, 1},
	}

	intField := func(key string, dst *int, required bool) error {
		v, ok := fields[key]
		if !ok {
			if required {
				return fmt.Errorf("missing %q", key)
			}
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %q: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := intField("samples", &h.samples, true); err != nil {
		return nil, err
	}
	if err := intField("lines", &h.lines, true); err != nil {
		return nil, err
	}
	if err := intField("bands", &h.bands, false); err != nil {
		return nil, err
	}
	if err := intField("data type", &h.dataType, false); err != nil {
		return nil, err
	}
	var offset int
	if err := intField("header offset", &offset, false); err != nil {
		return nil, err
	}
	h.offset = int64(offset)

	if _, ok := enviTypeSize[h.dataType]; !ok {
		return nil, fmt.Errorf("unsupported data type %d", h.dataType)
	}
	if v, ok := fields["interleave"]; ok {
		h.interleave = strings.ToLower(v)
	}
	switch h.interleave {
	case "bsq", "bil", "bip":
	default:
		return nil, fmt.Errorf("unsupported interleave %q", h.interleave)
	}
	if fields["byte order"] == "1" {
		h.byteOrder = binary.BigEndian
	}

	if v, ok := fields["data ignore value"]; ok {
		nd, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid data ignore value: %w", err)
		}
		h.noData = &nd
	}

	var mapName string
	var utmZone int
	var south bool
	if v, ok := fields["map info"]; ok {
		mapName, utmZone, south, err = parseMapInfo(v, &h.transform)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case fields["coordinate system string"] != "":
		h.crs = fields["coordinate system string"]
	case strings.EqualFold(mapName, "UTM") && utmZone > 0:
		h.crs = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", utmZone)
		if south {
			h.crs = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", utmZone)
		}
	case strings.EqualFold(mapName, "Geographic Lat/Lon"):
		h.crs = "+proj=longlat +datum=WGS84 +no_defs"
	}

	return h, nil
}

// readENVIFields parses "key = value" lines, joining {...} values that span
// several lines.
func readENVIFields(r io.Reader) (map[string]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ENVI" {
		return nil, fmt.Errorf("not an ENVI header")
	}

	fields := make(map[string]string)
	var key string
	var pending strings.Builder
	open := false

	for sc.Scan() {
		line := sc.Text()
		if open {
			pending.WriteString(" ")
			pending.WriteString(strings.TrimSpace(line))
			if strings.Contains(line, "}") {
				fields[key] = trimBraces(pending.String())
				open = false
			}
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "{") && !strings.Contains(v, "}") {
			pending.Reset()
			pending.WriteString(v)
			open = true
			continue
		}
		fields[key] = trimBraces(v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("unterminated value for %q", key)
	}
	return fields, nil
}

func trimBraces(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "{")
	v = strings.TrimSuffix(v, "}")
	return strings.TrimSpace(v)
}

// parseMapInfo decodes an ENVI "map info" value:
// {projection, refX, refY, easting, northing, xSize, ySize[, zone, North|South], ...}
// Reference pixel coordinates are 1-based.
func parseMapInfo(v string, tr *raster.GeoTransform) (name string, zone int, south bool, err error) {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 7 {
		return "", 0, false, fmt.Errorf("map info has %d fields, need at least 7", len(parts))
	}

	nums := make([]float64, 6)
	for i := 0; i < 6; i++ {
		nums[i], err = strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid map info field %d: %w", i+2, err)
		}
	}
	refX, refY, easting, northing, xSize, ySize := nums[0], nums[1], nums[2], nums[3], nums[4], nums[5]

	*tr = raster.GeoTransform{
		easting - (refX-1)*xSize, xSize, 0,
		northing + (refY-1)*ySize, 0, -ySize,
	}

	name = parts[0]
	if strings.EqualFold(name, "UTM") && len(parts) >= 9 {
		zone, _ = strconv.Atoi(parts[7])
		south = strings.EqualFold(parts[8], "South")
	}
	return name, zone, south, nil
}

func decodeENVIData(r io.Reader, h *enviHeader) ([][]float64, error) {
	if h.offset > 0 {
		if _, err := io.CopyN(io.Discard, r, h.offset); err != nil {
			return nil, fmt.Errorf("skipping header offset: %w", err)
		}
	}

	size := enviTypeSize[h.dataType]
	n := h.samples * h.lines
	buf := make([]byte, n*h.bands*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading %d cells: %w", n*h.bands, err)
	}

	bands := make([][]float64, h.bands)
	for b := range bands {
		bands[b] = make([]float64, n)
	}

	for b := 0; b < h.bands; b++ {
		for row := 0; row < h.lines; row++ {
			for col := 0; col < h.samples; col++ {
				var idx int
				switch h.interleave {
				case "bsq":
					idx = (b*h.lines+row)*h.samples + col
				case "bil":
					idx = (row*h.bands+b)*h.samples + col
				case "bip":
					idx = (row*h.samples+col)*h.bands + b
				}
				bands[b][row*h.samples+col] = decodeValue(buf[idx*size:(idx+1)*size], h.dataType, h.byteOrder)
			}
		}
	}
	return bands, nil
}

func decodeValue(b []byte, dataType int, order binary.ByteOrder) float64 {
	switch dataType {
	case 1:
		return float64(b[0])
	case 2:
		return float64(int16(order.Uint16(b)))
	case 3:
		return float64(int32(order.Uint32(b)))
	case 4:
		return float64(math.Float32frombits(order.Uint32(b)))
	case 5:
		return math.Float64frombits(order.Uint64(b))
	case 12:
		return float64(order.Uint16(b))
	case 13:
		return float64(order.Uint32(b))
	case 14:
		return float64(int64(order.Uint64(b)))
	case 15:
		return float64(order.Uint64(b))
	}
	return math.NaN()
}
