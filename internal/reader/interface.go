package reader

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// AttributeType is the logical type of a resource attribute.
type AttributeType string

const (
	AttributeString  AttributeType = "string"
	AttributeInteger AttributeType = "integer"
	AttributeDouble  AttributeType = "double"
	AttributeBoolean AttributeType = "boolean"
	AttributeDate    AttributeType = "date"
)

// Attribute describes one column of a resource schema.
type Attribute struct {
	Name string        `json:"name"`
	Type AttributeType `json:"binding"`
}

// Geometry describes the geometry column of a spatial resource.
type Geometry struct {
	Column string `json:"name"`
	Type   string `json:"type"`
}

// Resource is what a reader reports about one importable file.
type Resource struct {
	Name         string      // Type name, derived from the file name
	Format       string      // Reader format identifier
	Path         string      // Main file of the resource
	Attributes   []Attribute // Non-geometry attributes in file order
	Geometry     *Geometry   // Nil for attribute-only resources
	SRS          string      // Normalized "EPSG:n", empty when unknown
	FeatureCount int
}

// Spatial reports whether the resource carries geometry.
func (r *Resource) Spatial() bool {
	return r != nil && r.Geometry != nil
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = append([]Attribute(nil), r.Attributes...)
	if r.Geometry != nil {
		g := *r.Geometry
		out.Geometry = &g
	}
	return &out
}

// Feature is a single record of a resource. Geometry is nil for
// attribute-only resources and for records without a shape.
type Feature struct {
	Attributes map[string]interface{}
	Geometry   orb.Geometry
}

// GeoJSON returns the feature as a GeoJSON feature.
func (f Feature) GeoJSON() *geojson.Feature {
	out := geojson.NewFeature(f.Geometry)
	for k, v := range f.Attributes {
		out.Properties[k] = v
	}
	return out
}

// Reader discovers and reads one file format.
type Reader interface {
	// Format returns the stable format identifier, e.g. "shapefile".
	Format() string

	// Match reports whether the file at path is the main file of this format.
	Match(path string) bool

	// Describe reads the schema and metadata of the resource at path.
	Describe(ctx context.Context, path string) (*Resource, error)

	// Features reads every record of the resource at path.
	Features(ctx context.Context, path string) ([]Feature, error)
}

// typeName derives a resource name from a file path: the base name without
// its extension.
func typeName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
