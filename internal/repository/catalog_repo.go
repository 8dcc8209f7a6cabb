package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/timmy/geoimport/internal/domain"
	"github.com/timmy/geoimport/internal/importer"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// featureBatchSize bounds a single INSERT of layer features.
const featureBatchSize = 500

// GenericStyles are the global styles seeded by EnsureDefaults.
var GenericStyles = []string{"point", "line", "polygon", "raster"}

// CatalogRepository is the gorm-backed catalog committed layers are
// registered in.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *CatalogRepository: repository instance bound to db.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// EnsureDefaults creates the default workspace, any extra workspaces and the
// global generic styles. It is idempotent.
func (r *CatalogRepository) EnsureDefaults(ctx context.Context, defaultWorkspace string, workspaces ...string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Workspace{}).
			Where("is_default = ? AND name <> ?", true, defaultWorkspace).
			Update("is_default", false).Error; err != nil {
			return err
		}

		def := domain.Workspace{Name: defaultWorkspace, IsDefault: true}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"is_default": true}),
		}).Create(&def).Error; err != nil {
			return fmt.Errorf("failed to create default workspace: %w", err)
		}

		for _, name := range workspaces {
			if name == "" || name == defaultWorkspace {
				continue
			}
			ws := domain.Workspace{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ws).Error; err != nil {
				return fmt.Errorf("failed to create workspace %s: %w", name, err)
			}
		}

		for _, name := range GenericStyles {
			style := domain.Style{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&style).Error; err != nil {
				return fmt.Errorf("failed to create style %s: %w", name, err)
			}
		}
		return nil
	})
}

// CreateStore registers an explicit store in an existing workspace.
func (r *CatalogRepository) CreateStore(ctx context.Context, workspace, name, storeType string) error {
	ok, err := r.HasWorkspace(ctx, workspace)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("workspace %s does not exist", workspace)
	}
	return r.db.WithContext(ctx).Create(&domain.Store{Workspace: workspace, Name: name, Type: storeType}).Error
}

// DefaultWorkspace returns the workspace targets without one resolve to.
func (r *CatalogRepository) DefaultWorkspace(ctx context.Context) (string, error) {
	var ws domain.Workspace
	err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("no default workspace configured")
	}
	if err != nil {
		return "", err
	}
	return ws.Name, nil
}

func (r *CatalogRepository) HasWorkspace(ctx context.Context, workspace string) (bool, error) {
	return r.exists(ctx, &domain.Workspace{}, "name = ?", workspace)
}

func (r *CatalogRepository) HasStore(ctx context.Context, workspace, store string) (bool, error) {
	return r.exists(ctx, &domain.Store{}, "workspace = ? AND name = ?", workspace, store)
}

// HasLayer reports whether name is taken in workspace. Layer names are
// unique per workspace, so store does not narrow the check.
func (r *CatalogRepository) HasLayer(ctx context.Context, workspace, store, name string) (bool, error) {
	return r.exists(ctx, &domain.Layer{}, "workspace = ? AND name = ?", workspace, name)
}

// HasStyle reports whether a style is visible from workspace, either its own
// or a global one.
func (r *CatalogRepository) HasStyle(ctx context.Context, workspace, name string) (bool, error) {
	return r.exists(ctx, &domain.Style{}, "name = ? AND (workspace = ? OR workspace = '')", name, workspace)
}

func (r *CatalogRepository) exists(ctx context.Context, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddLayer registers a layer with its features and style in one transaction.
// A taken layer name fails with importer.ErrCatalogConflict and leaves the
// catalog unchanged.
func (r *CatalogRepository) AddLayer(ctx context.Context, rec *importer.LayerRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Workspace{}).Where("name = ?", rec.Workspace).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("workspace %s does not exist", rec.Workspace)
		}

		if err := ensureStore(tx, rec); err != nil {
			return err
		}

		if err := tx.Model(&domain.Layer{}).
			Where("workspace = ? AND name = ?", rec.Workspace, rec.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("layer %s:%s: %w", rec.Workspace, rec.Name, importer.ErrCatalogConflict)
		}

		layer := newLayer(rec)
		if err := tx.Omit("Features").Create(layer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("layer %s:%s: %w", rec.Workspace, rec.Name, importer.ErrCatalogConflict)
			}
			return fmt.Errorf("failed to create layer: %w", err)
		}

		features, err := newFeatures(layer.ID, rec)
		if err != nil {
			return err
		}
		if len(features) > 0 {
			if err := tx.CreateInBatches(features, featureBatchSize).Error; err != nil {
				return fmt.Errorf("failed to store features: %w", err)
			}
		}

		return ensureStyle(tx, rec.Workspace, rec.Style)
	})
}

func ensureStore(tx *gorm.DB, rec *importer.LayerRecord) error {
	var store domain.Store
	err := tx.Where("workspace = ? AND name = ?", rec.Workspace, rec.Store).First(&store).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if !rec.CreateStore {
		return fmt.Errorf("store %s:%s does not exist", rec.Workspace, rec.Store)
	}
	store = domain.Store{Workspace: rec.Workspace, Name: rec.Store, Type: rec.Format}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&store).Error
}

// ensureStyle registers style in workspace unless it is already visible there.
func ensureStyle(tx *gorm.DB, workspace, style string) error {
	if style == "" {
		return nil
	}
	var count int64
	if err := tx.Model(&domain.Style{}).
		Where("name = ? AND (workspace = ? OR workspace = '')", style, workspace).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&domain.Style{Workspace: workspace, Name: style}).Error
}

func newLayer(rec *importer.LayerRecord) *domain.Layer {
	layer := &domain.Layer{
		Workspace:    rec.Workspace,
		Store:        rec.Store,
		Name:         rec.Name,
		Style:        rec.Style,
		Format:       rec.Format,
		SRS:          rec.SRS,
		Attributes:   domain.AttributeList(rec.Attributes),
		FeatureCount: len(rec.Features),
		SourcePath:   rec.SourcePath,
		ContextID:    rec.ContextID,
		CreatedAt:    rec.CommittedAt,
	}
	if rec.Geometry != nil {
		layer.GeometryColumn = rec.Geometry.Column
		layer.GeometryType = rec.Geometry.Type
	}
	return layer
}

func newFeatures(layerID uint, rec *importer.LayerRecord) ([]domain.LayerFeature, error) {
	out := make([]domain.LayerFeature, len(rec.Features))
	for i, f := range rec.Features {
		out[i] = domain.LayerFeature{
			LayerID:    layerID,
			Seq:        i,
			Properties: domain.JSONMap(f.Attributes),
		}
		if f.Geometry != nil {
			g, err := json.Marshal(geojson.NewGeometry(f.Geometry))
			if err != nil {
				return nil, fmt.Errorf("feature %d: failed to encode geometry: %w", i, err)
			}
			out[i].Geometry = g
		}
	}
	return out, nil
}

// GetLayer retrieves a committed layer by workspace and name.
func (r *CatalogRepository) GetLayer(ctx context.Context, workspace, name string) (*domain.Layer, error) {
	var layer domain.Layer
	if err := r.db.WithContext(ctx).First(&layer, "workspace = ? AND name = ?", workspace, name).Error; err != nil {
		return nil, err
	}
	return &layer, nil
}

// ListLayers retrieves the layers of a workspace ordered by name. An empty
// workspace lists every layer.
func (r *CatalogRepository) ListLayers(ctx context.Context, workspace string) ([]domain.Layer, error) {
	var layers []domain.Layer
	query := r.db.WithContext(ctx)
	if workspace != "" {
		query = query.Where("workspace = ?", workspace)
	}
	if err := query.Order("workspace, name").Find(&layers).Error; err != nil {
		return nil, err
	}
	return layers, nil
}

// ListFeatures retrieves the features of a layer in commit order.
func (r *CatalogRepository) ListFeatures(ctx context.Context, layerID uint, limit, offset int) ([]domain.LayerFeature, error) {
	var features []domain.LayerFeature
	if err := r.db.WithContext(ctx).
		Where("layer_id = ?", layerID).
		Order("seq").
		Limit(limit).
		Offset(offset).
		Find(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

// ListWorkspaces retrieves every workspace ordered by name.
func (r *CatalogRepository) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	var workspaces []domain.Workspace
	if err := r.db.WithContext(ctx).Order("name").Find(&workspaces).Error; err != nil {
		return nil, err
	}
	return workspaces, nil
}
