package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"github.com/timmy/geoimport/internal/domain"
)

// CatalogReader is the read side of the catalog.
type CatalogReader interface {
	ListWorkspaces(ctx context.Context) ([]domain.Workspace, error)
	ListLayers(ctx context.Context, workspace string) ([]domain.Layer, error)
	GetLayer(ctx context.Context, workspace, name string) (*domain.Layer, error)
	ListFeatures(ctx context.Context, layerID uint, limit, offset int) ([]domain.LayerFeature, error)
}

// CatalogHandler exposes committed layers.
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListWorkspaces handles GET /rest/workspaces.
func (h *CatalogHandler) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.catalog.ListWorkspaces(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

// ListLayers handles GET /rest/workspaces/:ws/layers.
func (h *CatalogHandler) ListLayers(c *gin.Context) {
	layers, err := h.catalog.ListLayers(c.Request.Context(), c.Param("ws"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layers": layers})
}

// GetLayer handles GET /rest/workspaces/:ws/layers/:layer.
func (h *CatalogHandler) GetLayer(c *gin.Context) {
	layer, err := h.catalog.GetLayer(c.Request.Context(), c.Param("ws"), c.Param("layer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layer": layer})
}

// ListFeatures handles GET /rest/workspaces/:ws/layers/:layer/features as
// a GeoJSON FeatureCollection.
func (h *CatalogHandler) ListFeatures(c *gin.Context) {
	ctx := c.Request.Context()
	layer, err := h.catalog.GetLayer(ctx, c.Param("ws"), c.Param("layer"))
	if err != nil {
		respondError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 10000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := h.catalog.ListFeatures(ctx, layer.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(nil)
		if len(row.Geometry) > 0 {
			g, err := geojson.UnmarshalGeometry(row.Geometry)
			if err != nil {
				respondError(c, fmt.Errorf("feature %d of layer %s: %w", row.Seq, layer.Name, err))
				return
			}
			f.Geometry = g.Geometry()
		}
		f.ID = row.Seq
		for k, v := range row.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	c.JSON(http.StatusOK, fc)
}
