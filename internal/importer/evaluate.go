package importer

import (
	"context"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/crs"
	"github.com/timmy/geoimport/internal/reader"
)

var layerNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,127}$`)

// ValidLayerName reports whether name can be registered in the catalog.
func ValidLayerName(name string) bool {
	return layerNamePattern.MatchString(name)
}

// storeOf is the store an item commits to: its own, or the default store
// of its format.
func storeOf(res *reader.Resource, t Target) string {
	if t.Store != "" {
		return t.Store
	}
	return defaultStore(res.Format)
}

// resolvedTarget fills the defaults a client sees: the per-format store
// and the "<workspace>_<layer>" style.
func resolvedTarget(res *reader.Resource, t Target) Target {
	t.Store = storeOf(res, t)
	if t.Style == "" && t.Layer != "" {
		t.Style = t.Workspace + "_" + t.Layer
	}
	return t
}

// layerKey identifies a layer name claim. Names are unique per workspace
// whatever the store.
func layerKey(t Target) string {
	return t.Workspace + "/" + t.Layer
}

// claimedNames collects the target layer names of a context's items that
// may still be committed, except the item at skip. mu must be held.
func (m *Manager) claimedNames(contextID int64, skip *itemKey) map[string]bool {
	claimed := make(map[string]bool)
	for k, it := range m.items {
		if k.context != contextID || (skip != nil && k == *skip) || it.state.Terminal() {
			continue
		}
		claimed[layerKey(it.target)] = true
	}
	return claimed
}

// evaluate decides where a non-terminal item stands: spatial data without
// an SRS is NO_CRS; a missing, invalid or taken layer name is INCOMPLETE;
// everything else is READY.
func (m *Manager) evaluate(ctx context.Context, res *reader.Resource, t Target, claimed map[string]bool) (ItemState, error) {
	if res.Spatial() && res.SRS == "" {
		return ItemNoCRS, nil
	}
	if !ValidLayerName(t.Layer) || claimed[layerKey(t)] {
		return ItemIncomplete, nil
	}
	taken, err := m.catalog.HasLayer(ctx, t.Workspace, storeOf(res, t), t.Layer)
	if err != nil {
		return "", errors.Wrap(err, "look up layer")
	}
	if taken {
		return ItemIncomplete, nil
	}
	return ItemReady, nil
}

// applyPatch validates every field of p and writes them into res and t.
// On error res and t may be partially modified and must be discarded.
func (m *Manager) applyPatch(ctx context.Context, p ItemPatch, res *reader.Resource, t *Target) error {
	if p.SRS != nil {
		if !res.Spatial() {
			return invalidPatch("remove srs from the patch", "resource %q has no geometry", res.Name)
		}
		code, err := crs.Parse(*p.SRS)
		if err != nil {
			return invalidPatch("use an EPSG code such as EPSG:4326", "srs %q: %v", *p.SRS, err)
		}
		res.SRS = code.String()
	}

	if p.Layer != nil {
		if !ValidLayerName(*p.Layer) {
			return invalidPatch("layer names start with a letter or underscore and contain only letters, digits, '_', '-' and '.'",
				"layer name %q is not valid", *p.Layer)
		}
		t.Layer = *p.Layer
	}

	if p.Style != nil {
		t.Style = *p.Style
	}

	if p.Workspace != nil {
		ws, err := m.workspaceOf(ctx, *p.Workspace)
		if err != nil {
			return err
		}
		ok, err := m.catalog.HasWorkspace(ctx, ws)
		if err != nil {
			return errors.Wrap(err, "look up workspace")
		}
		if !ok {
			return invalidPatch("create the workspace first", "workspace %q does not exist", ws)
		}
		t.Workspace = ws
	}

	if p.Store != nil {
		t.Store = *p.Store
	}
	if (p.Store != nil || p.Workspace != nil) && t.Store != "" {
		ok, err := m.catalog.HasStore(ctx, t.Workspace, t.Store)
		if err != nil {
			return errors.Wrap(err, "look up store")
		}
		if !ok {
			return invalidPatch("use an existing store or an empty store for the default one",
				"store %q does not exist in workspace %q", t.Store, t.Workspace)
		}
	}
	return nil
}
