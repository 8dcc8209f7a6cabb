package reader

// Registry resolves files to readers. Readers are consulted in registration
// order, so the first match wins.
type Registry struct {
	readers []Reader
}

// NewRegistry creates a registry over the given readers.
func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// DefaultRegistry returns the registry of every built-in reader.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewShapefileReader(),
		NewCSVReader(),
		NewGeoJSONReader(),
	)
}

// Lookup returns the reader whose format the file at path belongs to.
func (r *Registry) Lookup(path string) (Reader, bool) {
	for _, rd := range r.readers {
		if rd.Match(path) {
			return rd, true
		}
	}
	return nil, false
}

// ByFormat returns the reader registered for format.
func (r *Registry) ByFormat(format string) (Reader, bool) {
	for _, rd := range r.readers {
		if rd.Format() == format {
			return rd, true
		}
	}
	return nil, false
}

// Formats lists the registered format identifiers in registration order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.readers))
	for _, rd := range r.readers {
		out = append(out, rd.Format())
	}
	return out
}

// IsSidecar reports whether path is a companion file of a multi-file format
// and therefore never an importable resource of its own.
func IsSidecar(path string) bool {
	return hasExt(path, shapefileSidecars...)
}
