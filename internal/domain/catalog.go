package domain

import "time"

// Workspace groups stores, layers and styles. Layer names are unique within
// a workspace.
type Workspace struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:idx_workspaces_name" json:"name"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Workspace.
func (Workspace) TableName() string {
	return "workspaces"
}

// Store is a data store inside a workspace. Stores named after a reader
// format are created on first commit.
type Store struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Workspace string    `gorm:"type:text;not null;uniqueIndex:idx_stores_ws_name" json:"workspace"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:idx_stores_ws_name" json:"name"`
	Type      string    `gorm:"type:text" json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Store.
func (Store) TableName() string {
	return "stores"
}

// Layer is a committed resource.
type Layer struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Workspace      string         `gorm:"type:text;not null;uniqueIndex:idx_layers_ws_name" json:"workspace"`
	Store          string         `gorm:"type:text;not null;index:idx_layers_store" json:"store"`
	Name           string         `gorm:"type:text;not null;uniqueIndex:idx_layers_ws_name" json:"name"`
	Style          string         `gorm:"type:text" json:"style"`
	Format         string         `gorm:"type:text" json:"format"`
	SRS            string         `gorm:"column:srs;type:text" json:"srs,omitempty"`
	GeometryColumn string         `gorm:"type:text" json:"geometry_column,omitempty"`
	GeometryType   string         `gorm:"type:text" json:"geometry_type,omitempty"`
	Attributes     AttributeList  `gorm:"type:text" json:"attributes"`
	FeatureCount   int            `gorm:"default:0" json:"feature_count"`
	SourcePath     string         `gorm:"type:text" json:"source_path,omitempty"`
	ContextID      int64          `gorm:"index:idx_layers_context" json:"context_id"`
	Features       []LayerFeature `gorm:"foreignKey:LayerID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TableName returns the database table name for Layer.
func (Layer) TableName() string {
	return "layers"
}

// LayerFeature is one record of a committed layer.
type LayerFeature struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	LayerID    uint    `gorm:"not null;index:idx_layer_features_layer" json:"-"`
	Seq        int     `gorm:"not null" json:"seq"`
	Properties JSONMap `gorm:"type:text" json:"properties"`
	Geometry   RawJSON `gorm:"type:text" json:"geometry,omitempty"`
}

// TableName returns the database table name for LayerFeature.
func (LayerFeature) TableName() string {
	return "layer_features"
}

// Style is a named style. An empty Workspace marks a global style visible
// from every workspace.
type Style struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Workspace string    `gorm:"type:text;not null;default:'';uniqueIndex:idx_styles_ws_name" json:"workspace"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:idx_styles_ws_name" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Style.
func (Style) TableName() string {
	return "styles"
}
