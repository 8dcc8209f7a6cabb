package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/timmy/geoimport/internal/crs"
)

const (
	// FormatShapefile is the format identifier of ESRI shapefiles.
	FormatShapefile = "shapefile"
	// GeometryColumn is the column name shapefile geometry is exposed under.
	GeometryColumn = "the_geom"

	shapeCheckInterval = 1024
)

var shapefileSidecars = []string{".dbf", ".shx", ".prj", ".cpg", ".sbn", ".sbx", ".qix", ".fix"}

var shapeTypes = map[shp.ShapeType]string{
	shp.NULL:        "Null",
	shp.POINT:       "Point",
	shp.POLYLINE:    "MultiLineString",
	shp.POLYGON:     "MultiPolygon",
	shp.MULTIPOINT:  "MultiPoint",
	shp.POINTZ:      "Point",
	shp.POLYLINEZ:   "MultiLineString",
	shp.POLYGONZ:    "MultiPolygon",
	shp.MULTIPOINTZ: "MultiPoint",
	shp.POINTM:      "Point",
	shp.POLYLINEM:   "MultiLineString",
	shp.POLYGONM:    "MultiPolygon",
	shp.MULTIPOINTM: "MultiPoint",
	shp.MULTIPATCH:  "GeometryCollection",
}

// ShapefileReader reads ESRI shapefiles. The .shp gives geometry, the .dbf
// gives schema and records and the optional .prj gives the SRS.
type ShapefileReader struct{}

// NewShapefileReader creates a shapefile reader.
func NewShapefileReader() *ShapefileReader {
	return &ShapefileReader{}
}

// Format returns FormatShapefile.
func (r *ShapefileReader) Format() string {
	return FormatShapefile
}

// Match reports whether path is a .shp file.
func (r *ShapefileReader) Match(path string) bool {
	return hasExt(path, ".shp")
}

// Describe reads the shapefile header, the attribute table and the
// projection sidecar. Records are counted by walking the file.
func (r *ShapefileReader) Describe(ctx context.Context, path string) (*Resource, error) {
	geomType, err := readShapeType(path)
	if err != nil {
		return nil, err
	}

	seq, err := openShapefile(path)
	if err != nil {
		return nil, err
	}
	defer seq.Close()

	res := &Resource{
		Name:     typeName(path),
		Format:   FormatShapefile,
		Path:     path,
		Geometry: &Geometry{Column: GeometryColumn, Type: geomType},
	}
	for _, f := range seq.Fields() {
		res.Attributes = append(res.Attributes, Attribute{Name: f.String(), Type: fieldType(f)})
	}
	for seq.Next() {
		if res.FeatureCount%shapeCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.FeatureCount++
	}
	if err := seq.Err(); err != nil {
		return nil, fmt.Errorf("shapefile %s: %w", filepath.Base(path), err)
	}

	if prjPath, ok := sidecar(path, ".prj"); ok {
		wkt, err := os.ReadFile(prjPath)
		if err != nil {
			return nil, fmt.Errorf("shapefile %s: read projection: %w", filepath.Base(path), err)
		}
		if code, ok := crs.FromWKT(string(wkt)); ok {
			res.SRS = code.String()
		}
	}
	return res, nil
}

// Features returns every record with its attributes and geometry.
func (r *ShapefileReader) Features(ctx context.Context, path string) ([]Feature, error) {
	seq, err := openShapefile(path)
	if err != nil {
		return nil, err
	}
	defer seq.Close()

	fields := seq.Fields()
	var features []Feature
	for seq.Next() {
		if len(features)%shapeCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		_, shape := seq.Shape()
		f := Feature{
			Attributes: make(map[string]interface{}, len(fields)),
			Geometry:   shapeGeometry(shape),
		}
		for i, field := range fields {
			f.Attributes[field.String()] = fieldValue(field, seq.Attribute(i))
		}
		features = append(features, f)
	}
	if err := seq.Err(); err != nil {
		return nil, fmt.Errorf("shapefile %s: %w", filepath.Base(path), err)
	}
	return features, nil
}

// readShapeType reads the geometry type from the .shp header.
func readShapeType(path string) (string, error) {
	rd, err := shp.Open(path)
	if err != nil {
		return "", fmt.Errorf("shapefile %s: %w", filepath.Base(path), err)
	}
	defer rd.Close()

	name, ok := shapeTypes[rd.GeometryType]
	if !ok {
		return "", fmt.Errorf("shapefile %s: unknown shape type %d", filepath.Base(path), rd.GeometryType)
	}
	return name, nil
}

// openShapefile opens the .shp and its .dbf sidecar for a sequential pass.
func openShapefile(path string) (shp.SequentialReader, error) {
	dbfPath, ok := sidecar(path, ".dbf")
	if !ok {
		return nil, fmt.Errorf("shapefile %s: missing .dbf sidecar", filepath.Base(path))
	}
	shpFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dbfFile, err := os.Open(dbfPath)
	if err != nil {
		shpFile.Close()
		return nil, err
	}
	return shp.SequentialReaderFromExt(shpFile, dbfFile), nil
}

// shapeGeometry converts a shapefile record to an orb geometry. Polygon
// rings are grouped by orientation: clockwise rings start a new polygon and
// counter-clockwise rings are holes of the polygon before them.
func shapeGeometry(s shp.Shape) orb.Geometry {
	switch g := s.(type) {
	case *shp.Point:
		return orb.Point{g.X, g.Y}
	case *shp.PointZ:
		return orb.Point{g.X, g.Y}
	case *shp.PointM:
		return orb.Point{g.X, g.Y}
	case *shp.MultiPoint:
		return multiPoint(g.Points)
	case *shp.MultiPointZ:
		return multiPoint(g.Points)
	case *shp.MultiPointM:
		return multiPoint(g.Points)
	case *shp.PolyLine:
		return multiLine(g.Parts, g.Points)
	case *shp.PolyLineZ:
		return multiLine(g.Parts, g.Points)
	case *shp.PolyLineM:
		return multiLine(g.Parts, g.Points)
	case *shp.Polygon:
		return multiPolygon(g.Parts, g.Points)
	case *shp.PolygonZ:
		return multiPolygon(g.Parts, g.Points)
	case *shp.PolygonM:
		return multiPolygon(g.Parts, g.Points)
	}
	return nil
}

func multiPoint(points []shp.Point) orb.MultiPoint {
	out := make(orb.MultiPoint, len(points))
	for i, p := range points {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// splitParts cuts points into the parts starting at the given offsets.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func multiLine(parts []int32, points []shp.Point) orb.MultiLineString {
	var out orb.MultiLineString
	for _, part := range splitParts(parts, points) {
		out = append(out, orb.LineString(part))
	}
	return out
}

func multiPolygon(parts []int32, points []shp.Point) orb.MultiPolygon {
	var out orb.MultiPolygon
	for _, part := range splitParts(parts, points) {
		ring := orb.Ring(part)
		if len(out) == 0 || ring.Orientation() == orb.CW {
			out = append(out, orb.Polygon{ring})
			continue
		}
		last := len(out) - 1
		out[last] = append(out[last], ring)
	}
	return out
}

// sidecar finds the companion file of a shapefile with the given extension,
// accepting either letter case.
func sidecar(shpPath, ext string) (string, bool) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}
