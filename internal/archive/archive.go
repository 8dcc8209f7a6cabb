// Package archive unpacks uploaded source archives into scratch directories.
package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	getter "github.com/hashicorp/go-getter"
)

// multiFile lists the decompressor keys whose output is a directory tree.
// The remaining keys (gz, bz2, xz, zst) wrap a single file.
var multiFile = map[string]bool{
	"zip":     true,
	"tar":     true,
	"tar.gz":  true,
	"tgz":     true,
	"tar.bz2": true,
	"tbz2":    true,
	"tar.xz":  true,
	"txz":     true,
	"tar.zst": true,
	"tzst":    true,
}

// keys are the decompressor extensions, longest first so that "tar.gz"
// wins over "gz".
var keys = func() []string {
	out := make([]string, 0, len(getter.Decompressors))
	for k := range getter.Decompressors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// Detect returns the decompressor key matching the file name of path.
func Detect(path string) (string, bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, k := range keys {
		if strings.HasSuffix(name, "."+k) {
			return k, true
		}
	}
	return "", false
}

// IsArchive reports whether path has a known archive or compression suffix.
func IsArchive(path string) bool {
	_, ok := Detect(path)
	return ok
}

// Unpack extracts src into the existing directory dst. Multi-file archives
// are expanded in place; single compressed files are written to dst under
// their name minus the compression suffix.
func Unpack(src, dst string) error {
	key, ok := Detect(src)
	if !ok {
		return fmt.Errorf("unpack %s: not an archive", filepath.Base(src))
	}
	d := getter.Decompressors[key]

	if multiFile[key] {
		if err := d.Decompress(dst, src, true, 0); err != nil {
			return fmt.Errorf("unpack %s: %w", filepath.Base(src), err)
		}
		return nil
	}

	base := filepath.Base(src)
	out := filepath.Join(dst, base[:len(base)-len(key)-1])
	if err := d.Decompress(out, src, false, 0); err != nil {
		return fmt.Errorf("unpack %s: %w", base, err)
	}
	return nil
}

