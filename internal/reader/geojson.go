package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/timmy/geoimport/internal/crs"
)

// FormatGeoJSON is the format identifier of GeoJSON feature collections.
const FormatGeoJSON = "geojson"

const featureCollection = "FeatureCollection"

// GeoJSONReader reads GeoJSON FeatureCollections. Without a "crs" member the
// collection is in CRS84, which the catalog records as EPSG:4326.
type GeoJSONReader struct{}

// NewGeoJSONReader creates a GeoJSON reader.
func NewGeoJSONReader() *GeoJSONReader {
	return &GeoJSONReader{}
}

// Format returns FormatGeoJSON.
func (r *GeoJSONReader) Format() string {
	return FormatGeoJSON
}

// Match claims every .geojson file, and .json files whose top-level type
// is FeatureCollection.
func (r *GeoJSONReader) Match(path string) bool {
	if hasExt(path, ".geojson") {
		return true
	}
	return hasExt(path, ".json") && topLevelType(path) == featureCollection
}

// Describe derives the schema from the union of feature properties.
func (r *GeoJSONReader) Describe(ctx context.Context, path string) (*Resource, error) {
	fc, err := r.load(path)
	if err != nil {
		return nil, err
	}

	res := &Resource{
		Name:         typeName(path),
		Format:       FormatGeoJSON,
		Path:         path,
		FeatureCount: len(fc.Features),
	}

	types := make(map[string]AttributeType)
	var order []string
	geomType := ""
	for _, f := range fc.Features {
		// Columns appear in order of first sighting, sorted within a feature.
		for _, k := range sortedKeys(f.Properties) {
			t, ok := jsonValueType(f.Properties[k])
			if _, known := types[k]; !known {
				order = append(order, k)
				types[k] = ""
			}
			if ok {
				types[k] = widen(types[k], t)
			}
		}
		if f.Geometry == nil {
			continue
		}
		switch gt := f.Geometry.GeoJSONType(); geomType {
		case "":
			geomType = gt
		case gt:
		default:
			geomType = "Geometry"
		}
	}
	for _, k := range order {
		t := types[k]
		if t == "" {
			t = AttributeString
		}
		res.Attributes = append(res.Attributes, Attribute{Name: k, Type: t})
	}

	if geomType != "" {
		res.Geometry = &Geometry{Column: "geometry", Type: geomType}
		if name := crsName(fc.ExtraMembers); name == "" {
			res.SRS = crs.WGS84.String()
		} else if code, err := crs.Parse(name); err == nil {
			res.SRS = code.String()
		}
	}
	return res, nil
}

// Features returns the collection's features.
func (r *GeoJSONReader) Features(ctx context.Context, path string) ([]Feature, error) {
	fc, err := r.load(path)
	if err != nil {
		return nil, err
	}
	features := make([]Feature, len(fc.Features))
	for i, f := range fc.Features {
		props := map[string]interface{}(f.Properties)
		if props == nil {
			props = map[string]interface{}{}
		}
		features[i] = Feature{Attributes: props, Geometry: f.Geometry}
	}
	return features, nil
}

func (r *GeoJSONReader) load(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("geojson %s: %w", filepath.Base(path), err)
	}
	if fc.Type != featureCollection {
		return nil, fmt.Errorf("geojson %s: expected FeatureCollection, got %q", filepath.Base(path), fc.Type)
	}
	return fc, nil
}

// crsName returns the name of a legacy "crs" member, if any.
func crsName(extra geojson.Properties) string {
	member, _ := extra["crs"].(map[string]interface{})
	props, _ := member["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	return name
}

// topLevelType streams the top-level object of a JSON file and returns its
// "type" member without decoding the other members.
func topLevelType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return ""
		}
		if key == "type" {
			var t string
			if err := dec.Decode(&t); err != nil {
				return ""
			}
			return t
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return ""
		}
	}
	return ""
}
