// Package source reads batch import manifests: JSON Lines files listing the
// files, directories and archives to import together, one per line, with
// optional per-source overrides.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFileName is the manifest looked up when Load is given a directory.
const ManifestFileName = "manifest.jsonl"

// Entry is one manifest line.
type Entry struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	SRS   string `json:"srs,omitempty"`
	Layer string `json:"layer,omitempty"`
	Style string `json:"style,omitempty"`

	// Line is the 1-based manifest line the entry was read from.
	Line int `json:"-"`
}

// Manifest is a parsed manifest in file order.
type Manifest struct {
	Path    string
	Entries []Entry
	// Skipped explains every line that was not turned into an entry.
	Skipped []string
}

// Load reads the manifest at path, or path/manifest.jsonl when path is a
// directory. Relative entry paths are resolved against the manifest's
// directory. Blank lines and lines starting with '#' are ignored; malformed
// lines and entries whose path does not exist are skipped and reported in
// Skipped.
// Parameters:
//   - path: manifest file or directory holding one.
//
// Returns:
//   - *Manifest: entries in file order.
//   - error: non-nil if the manifest cannot be read.
func Load(path string) (*Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ManifestFileName)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	m := &Manifest{Path: path}
	base := filepath.Dir(path)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			m.Skipped = append(m.Skipped, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		if entry.Path == "" {
			m.Skipped = append(m.Skipped, fmt.Sprintf("line %d: missing path", lineNo))
			continue
		}
		if !filepath.IsAbs(entry.Path) {
			entry.Path = filepath.Join(base, entry.Path)
		}
		if _, err := os.Stat(entry.Path); err != nil {
			m.Skipped = append(m.Skipped, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		entry.Line = lineNo
		m.Entries = append(m.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return m, nil
}

// ListManifests lists the subdirectories of basePath that hold a manifest.
func ListManifests(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), ManifestFileName)); err == nil {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}
