package handler

import (
	"encoding/json"
	"fmt"

	"github.com/timmy/geoimport/internal/importer"
)

type nameRef struct {
	Name string `json:"name"`
}

type workspaceRef struct {
	Workspace *nameRef `json:"workspace"`
}

type dataStoreRef struct {
	Name      string   `json:"name"`
	Workspace *nameRef `json:"workspace,omitempty"`
}

type storeRef struct {
	DataStore *dataStoreRef `json:"dataStore"`
}

// ImportRequest is the optional body of POST /rest/imports.
type ImportRequest struct {
	Import *struct {
		TargetWorkspace *workspaceRef `json:"targetWorkspace"`
		TargetStore     *storeRef     `json:"targetStore"`
	} `json:"import"`
}

// TargetSpec flattens the request. A store's own workspace must agree with
// targetWorkspace when both are given.
func (r *ImportRequest) TargetSpec() (importer.TargetSpec, error) {
	var spec importer.TargetSpec
	if r.Import == nil {
		return spec, nil
	}
	if tw := r.Import.TargetWorkspace; tw != nil && tw.Workspace != nil {
		spec.Workspace = tw.Workspace.Name
	}
	if ts := r.Import.TargetStore; ts != nil && ts.DataStore != nil {
		spec.Store = ts.DataStore.Name
		if ws := ts.DataStore.Workspace; ws != nil && ws.Name != "" {
			if spec.Workspace != "" && spec.Workspace != ws.Name {
				return spec, fmt.Errorf("store workspace %q does not match target workspace %q", ws.Name, spec.Workspace)
			}
			spec.Workspace = ws.Name
		}
	}
	return spec, nil
}

type featureTypeBody struct {
	SRS  *string `json:"srs"`
	Name *string `json:"name"`
}

type layerBody struct {
	Name         *string  `json:"name"`
	DefaultStyle *nameRef `json:"defaultStyle"`
}

// ItemBody is the body of PUT .../items/:item, with or without the outer
// "item" wrapper.
type ItemBody struct {
	Resource *struct {
		FeatureType *featureTypeBody `json:"featureType"`
	} `json:"resource"`
	Layer *struct {
		Layer *layerBody `json:"layer"`
	} `json:"layer"`
	Store *storeRef `json:"store"`
}

// parseItemBody decodes raw, unwrapping {"item": {...}} when present.
func parseItemBody(raw []byte) (*ItemBody, error) {
	var envelope struct {
		Item *ItemBody `json:"item"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Item != nil {
		return envelope.Item, nil
	}
	var body ItemBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Patch converts the body into an item patch. featureType.name and
// layer.name both rename the layer and must agree when both are set.
func (b *ItemBody) Patch() (importer.ItemPatch, error) {
	var p importer.ItemPatch
	if b.Resource != nil && b.Resource.FeatureType != nil {
		p.SRS = b.Resource.FeatureType.SRS
		p.Layer = b.Resource.FeatureType.Name
	}
	if b.Layer != nil && b.Layer.Layer != nil {
		l := b.Layer.Layer
		if l.Name != nil {
			if p.Layer != nil && *p.Layer != *l.Name {
				return p, fmt.Errorf("featureType name %q and layer name %q differ", *p.Layer, *l.Name)
			}
			p.Layer = l.Name
		}
		if l.DefaultStyle != nil {
			style := l.DefaultStyle.Name
			p.Style = &style
		}
	}
	if b.Store != nil && b.Store.DataStore != nil {
		store := b.Store.DataStore.Name
		p.Store = &store
		if ws := b.Store.DataStore.Workspace; ws != nil && ws.Name != "" {
			name := ws.Name
			p.Workspace = &name
		}
	}
	if p.Empty() {
		return p, fmt.Errorf("request changes nothing")
	}
	return p, nil
}
