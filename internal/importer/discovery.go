package importer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/archive"
	"github.com/timmy/geoimport/internal/reader"
)

// candidate is one resource found while expanding a source. An empty state
// means the resource still has to be evaluated against its target.
type candidate struct {
	resource *reader.Resource
	state    ItemState
	errs     []RecordedError
}

// expansion is the result of discovery for one source.
type expansion struct {
	kind       SourceKind
	scratch    string // unpack directory, owned by the task
	candidates []candidate
}

// discover expands src into candidates in enumeration order. A source
// without any recognized file yields a single NO_FORMAT candidate.
func (m *Manager) discover(ctx context.Context, src Source) (*expansion, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(ErrInvalidSource, "%s: %v", filepath.Base(src.Path), err),
			"upload a file, a directory or an archive")
	}

	exp := &expansion{kind: SourceFile}
	root := src.Path
	switch {
	case info.IsDir():
		exp.kind = SourceDirectory
	case archive.IsArchive(src.Path):
		exp.kind = SourceArchive
		if exp.scratch, err = m.unpack(src.Path); err != nil {
			return nil, err
		}
		root = exp.scratch
	}

	var paths []string
	if exp.kind == SourceFile {
		if m.recognized(src.Path) {
			paths = append(paths, src.Path)
		}
	} else if paths, err = m.walk(ctx, root); err != nil {
		exp.cleanup()
		return nil, err
	}

	if len(paths) == 0 {
		exp.candidates = []candidate{{
			resource: &reader.Resource{Name: sourceName(src), Path: src.Path},
			state:    ItemNoFormat,
		}}
		return exp, nil
	}

	for _, p := range paths {
		exp.candidates = append(exp.candidates, m.describe(ctx, root, p))
	}
	return exp, nil
}

func (e *expansion) cleanup() {
	if e.scratch != "" {
		os.RemoveAll(e.scratch)
	}
}

// unpack extracts an archive into a fresh scratch directory.
func (m *Manager) unpack(path string) (string, error) {
	if m.scratchDir != "" {
		if err := os.MkdirAll(m.scratchDir, 0o755); err != nil {
			return "", errors.Wrap(err, "create scratch root")
		}
	}
	dir, err := os.MkdirTemp(m.scratchDir, "task-*")
	if err != nil {
		return "", errors.Wrap(err, "create scratch directory")
	}
	if err := archive.Unpack(path, dir); err != nil {
		os.RemoveAll(dir)
		return "", errors.WithHint(errors.Mark(err, ErrInvalidSource), "check that the archive is not corrupt")
	}
	return dir, nil
}

// walk lists recognized files under root in lexical order.
func (m *Manager) walk(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "__MACOSX") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && m.recognized(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", filepath.Base(root))
	}
	return paths, nil
}

func (m *Manager) recognized(path string) bool {
	if reader.IsSidecar(path) {
		return false
	}
	_, ok := m.readers.Lookup(path)
	return ok
}

// describe asks the matching reader for the resource at path. A read
// failure becomes an ERROR candidate instead of failing the task.
func (m *Manager) describe(ctx context.Context, root, path string) candidate {
	rd, _ := m.readers.Lookup(path)
	res, err := rd.Describe(ctx, path)
	if err == nil {
		return candidate{resource: res}
	}

	rel, relErr := filepath.Rel(root, path)
	if relErr != nil || rel == "." {
		rel = filepath.Base(path)
	}
	name := filepath.Base(path)
	return candidate{
		resource: &reader.Resource{
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Format: rd.Format(),
			Path:   path,
		},
		state: ItemError,
		errs: []RecordedError{newItemError(KindReader,
			errors.Mark(errors.Wrapf(err, "read %s", filepath.ToSlash(rel)), ErrReader))},
	}
}

func sourceName(src Source) string {
	if src.Name != "" {
		return src.Name
	}
	return filepath.Base(src.Path)
}
