// Package snapshot stores tree documents on disk: the seed the editor
// resets to and exported copies of the collection.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/hiertree/internal/checksum"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/parser"
)

// Meta describes one document in the snapshot directory.
type Meta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for snapshot file operations.
type Provider interface {
	// List returns metadata for every tree document under the root.
	List() ([]Meta, error)
	// Load reads and parses the document at path (relative to root).
	Load(path string) ([]models.Node, error)
	// Save encodes nodes and atomically writes them to path.
	Save(path string, nodes []models.Node) error
	// Export writes nodes to a new, uniquely named document and returns
	// its path.
	Export(nodes []models.Node, format parser.Format) (string, error)
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to snapshot directory
}

// NewFS creates a new FS provider rooted at the given directory, creating
// it if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute snapshot directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects any
// result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("snapshot: path is required")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("snapshot: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("snapshot: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("snapshot: path escapes root: %s", rel)
	}
	return abs, nil
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// List walks the root and returns metadata for every tree document,
// sorted by path.
func (f *FS) List() ([]Meta, error) {
	var out []Meta
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isDocument(d.Name()) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, Meta{
			Path:      filepath.ToSlash(rel),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	slices.SortFunc(out, func(a, b Meta) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Load reads and parses a document.
func (f *FS) Load(path string) ([]models.Node, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	nodes, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", path, err)
	}
	return nodes, nil
}

// Save atomically writes nodes in the format implied by path's extension.
func (f *FS) Save(path string, nodes []models.Node) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	data, err := parser.Encode(nodes, parser.FormatFor(path))
	if err != nil {
		return err
	}
	return writeAtomic(abs, data)
}

// Export writes nodes to exports/<timestamp>-<id>.<ext>.
func (f *FS) Export(nodes []models.Node, format parser.Format) (string, error) {
	ext := ".json"
	if format == parser.FormatYAML {
		ext = ".yaml"
	}
	name := fmt.Sprintf("exports/%s-%s%s",
		time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8], ext)
	if err := f.Save(name, nodes); err != nil {
		return "", err
	}
	return name, nil
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hiertree-tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	success = true
	return nil
}
