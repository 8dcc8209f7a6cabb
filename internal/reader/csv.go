package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/timmy/geoimport/internal/crs"
)

const (
	// FormatCSV is the format identifier of comma separated text files.
	FormatCSV = "csv"

	// LocationColumn is the geometry column a lat/lon pair is exposed under.
	LocationColumn = "location"
)

var (
	latitudeNames  = []string{"lat", "latitude", "y"}
	longitudeNames = []string{"lon", "lng", "long", "longitude", "x"}
	wktNames       = []string{"wkt", "geom", "geometry", "the_geom"}
)

// csvLayout records which columns carry geometry.
type csvLayout struct {
	header []string
	latIdx int
	lonIdx int
	wktIdx int
}

func (l csvLayout) isGeometryColumn(i int) bool {
	return i == l.latIdx || i == l.lonIdx || i == l.wktIdx
}

// CSVReader reads delimited text files. A latitude/longitude column pair
// becomes a point geometry in WGS 84, a WKT column becomes a geometry of
// unknown SRS, and anything else is imported as an attribute-only table.
type CSVReader struct{}

// NewCSVReader creates a CSV reader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// Format returns FormatCSV.
func (r *CSVReader) Format() string {
	return FormatCSV
}

// Match reports whether path is a .csv file.
func (r *CSVReader) Match(path string) bool {
	return hasExt(path, ".csv")
}

// Describe reads the header and infers attribute types from every row.
func (r *CSVReader) Describe(ctx context.Context, path string) (*Resource, error) {
	layout, rows, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}

	res := &Resource{
		Name:         typeName(path),
		Format:       FormatCSV,
		Path:         path,
		FeatureCount: len(rows),
	}

	for i, name := range layout.header {
		if layout.isGeometryColumn(i) {
			continue
		}
		col := make([]string, len(rows))
		for j, row := range rows {
			col[j] = row[i]
		}
		res.Attributes = append(res.Attributes, Attribute{Name: name, Type: inferColumnType(col)})
	}

	switch {
	case layout.latIdx >= 0 && layout.lonIdx >= 0:
		res.Geometry = &Geometry{Column: LocationColumn, Type: "Point"}
		res.SRS = crs.WGS84.String()
	case layout.wktIdx >= 0:
		res.Geometry = &Geometry{Column: layout.header[layout.wktIdx], Type: "Geometry"}
	}
	return res, nil
}

// Features converts every row into a feature with typed attribute values.
func (r *CSVReader) Features(ctx context.Context, path string) ([]Feature, error) {
	layout, rows, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}

	features := make([]Feature, 0, len(rows))
	for n, row := range rows {
		f := Feature{Attributes: make(map[string]interface{}, len(row))}
		for i, v := range row {
			if layout.isGeometryColumn(i) {
				continue
			}
			f.Attributes[layout.header[i]] = parseScalar(v)
		}
		switch {
		case layout.latIdx >= 0 && layout.lonIdx >= 0:
			lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[layout.latIdx]), 64)
			lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[layout.lonIdx]), 64)
			if errLat == nil && errLon == nil {
				f.Geometry = orb.Point{lon, lat}
			}
		case layout.wktIdx >= 0:
			if text := strings.TrimSpace(row[layout.wktIdx]); text != "" {
				g, err := wkt.Unmarshal(text)
				if err != nil {
					return nil, fmt.Errorf("csv %s: row %d: %w", filepath.Base(path), n+2, err)
				}
				f.Geometry = g
			}
		}
		features = append(features, f)
	}
	return features, nil
}

func (r *CSVReader) load(ctx context.Context, path string) (csvLayout, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return csvLayout{}, nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return csvLayout{}, nil, fmt.Errorf("csv %s: empty file", filepath.Base(path))
		}
		return csvLayout{}, nil, fmt.Errorf("csv %s: read header: %w", filepath.Base(path), err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if header[i] == "" {
			return csvLayout{}, nil, fmt.Errorf("csv %s: column %d has no name", filepath.Base(path), i+1)
		}
	}

	layout := csvLayout{
		header: header,
		latIdx: columnIndex(header, latitudeNames),
		lonIdx: columnIndex(header, longitudeNames),
		wktIdx: columnIndex(header, wktNames),
	}
	if layout.latIdx < 0 || layout.lonIdx < 0 {
		layout.latIdx, layout.lonIdx = -1, -1
	}

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return csvLayout{}, nil, ctx.Err()
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return csvLayout{}, nil, fmt.Errorf("csv %s: %w", filepath.Base(path), err)
		}
		rows = append(rows, rec)
	}
	return layout, rows, nil
}

func columnIndex(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}
