package transform

import (
	"context"
	"fmt"

	"github.com/timmy/geoimport/internal/crs"
	"github.com/timmy/geoimport/internal/importer"
)

// AssignSRS declares the SRS of the committed layer. Coordinates are not
// reprojected. With Force unset an SRS the reader already found is kept.
type AssignSRS struct {
	importer.BaseTransform
	Code  crs.Code
	Force bool
}

// NewAssignSRS parses srs and returns a transform assigning it.
func NewAssignSRS(srs string, force bool) (*AssignSRS, error) {
	code, err := crs.Parse(srs)
	if err != nil {
		return nil, err
	}
	return &AssignSRS{Code: code, Force: force}, nil
}

func (t *AssignSRS) Name() string {
	return "srs(" + t.Code.String() + ")"
}

func (t *AssignSRS) Apply(ctx context.Context, d *importer.ItemData) error {
	if !d.Resource.Spatial() {
		return fmt.Errorf("resource %q has no geometry", d.Resource.Name)
	}
	if d.Resource.SRS == "" || t.Force {
		d.Resource.SRS = t.Code.String()
	}
	return nil
}

// Attribute-only resources are committed as they are.
func (t *AssignSRS) StopOnError(error) bool { return false }
