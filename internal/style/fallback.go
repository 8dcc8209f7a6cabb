package style

import (
	"context"
	"errors"
	"strings"

	"github.com/timmy/geoimport/internal/importer/transform"
	"github.com/timmy/geoimport/internal/logger"
)

// Styles is the part of the catalog holding registered style names.
type Styles interface {
	HasStyle(ctx context.Context, workspace, name string) (bool, error)
}

// CatalogResolver picks a style already registered in the catalog: the
// layer's own "<workspace>_<layer>" style, else a generic one named after
// the geometry kind ("point", "line", "polygon").
type CatalogResolver struct {
	styles Styles
}

// NewCatalogResolver creates a resolver over the catalog's styles.
func NewCatalogResolver(styles Styles) *CatalogResolver {
	return &CatalogResolver{styles: styles}
}

func (r *CatalogResolver) Ping(context.Context) error { return nil }

func (r *CatalogResolver) Resolve(ctx context.Context, workspace, layer, geometryType string) (string, error) {
	candidates := []string{workspace + "_" + layer}
	if g := genericStyle(geometryType); g != "" {
		candidates = append(candidates, g)
	}
	for _, name := range candidates {
		ok, err := r.styles.HasStyle(ctx, workspace, name)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return "", transform.ErrNoStyle
}

func genericStyle(geometryType string) string {
	g := strings.ToLower(geometryType)
	switch {
	case strings.HasSuffix(g, "point"):
		return "point"
	case strings.HasSuffix(g, "linestring"):
		return "line"
	case strings.HasSuffix(g, "polygon"):
		return "polygon"
	default:
		return ""
	}
}

// Fallback asks Primary first and turns to Secondary when Primary fails or
// has no style. Primary may be nil when no remote service is configured.
type Fallback struct {
	Primary   transform.StyleResolver
	Secondary transform.StyleResolver
}

// Ping succeeds as long as the secondary resolver is reachable.
func (f *Fallback) Ping(ctx context.Context) error {
	if f.Primary != nil {
		if err := f.Primary.Ping(ctx); err != nil {
			logger.CtxWarn(ctx, "Style service unavailable, using catalog styles: %v", err)
		}
	}
	return f.Secondary.Ping(ctx)
}

func (f *Fallback) Resolve(ctx context.Context, workspace, layer, geometryType string) (string, error) {
	if f.Primary != nil {
		style, err := f.Primary.Resolve(ctx, workspace, layer, geometryType)
		if err == nil {
			return style, nil
		}
		if !errors.Is(err, transform.ErrNoStyle) {
			logger.CtxWarn(ctx, "Style service failed for %s: %v", layer, err)
		}
	}
	return f.Secondary.Resolve(ctx, workspace, layer, geometryType)
}

// NewResolver returns the resolver the style lookup transform should use:
// the remote service backed by catalog styles when baseURL is set, catalog
// styles alone otherwise.
func NewResolver(cfg *ClientConfig, styles Styles) transform.StyleResolver {
	catalog := NewCatalogResolver(styles)
	if cfg == nil || cfg.BaseURL == "" {
		return catalog
	}
	return &Fallback{Primary: NewClient(cfg), Secondary: catalog}
}
