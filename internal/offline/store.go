// Package offline is the versioned asset-cache layer that sits
// between page consumers and the upstream origin. One named
// generation of assets is active at a time; stale generations are
// evicted on activation.
package offline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotCached marks a cache miss.
var ErrNotCached = errors.New("asset not cached")

// CachedAsset is one stored response body plus the content type it was
// served with.
type CachedAsset struct {
	Body        []byte
	ContentType string
}

// Store keeps asset bundles on disk, one directory per generation,
// one body file (plus a content-type sidecar) per asset key.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Open ensures the bundle directory for a generation exists.
func (s *Store) Open(generation string) error {
	if err := os.MkdirAll(s.bundleDir(generation), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle %q: %w", generation, err)
	}
	return nil
}

// Put stores one asset in a generation's bundle.
func (s *Store) Put(generation, key string, asset CachedAsset) error {
	dir := s.bundleDir(generation)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bundle %q: %w", generation, err)
	}
	name := assetFileName(key)
	if err := os.WriteFile(filepath.Join(dir, name+".bin"), asset.Body, 0o644); err != nil {
		return fmt.Errorf("failed to write asset body: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".ct"), []byte(asset.ContentType), 0o644); err != nil {
		return fmt.Errorf("failed to write asset content type: %w", err)
	}
	return nil
}

// Get reads one asset from a generation's bundle. Returns ErrNotCached
// on a miss.
func (s *Store) Get(generation, key string) (*CachedAsset, error) {
	name := assetFileName(key)
	body, err := os.ReadFile(filepath.Join(s.bundleDir(generation), name+".bin"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	ct, err := os.ReadFile(filepath.Join(s.bundleDir(generation), name+".ct"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read asset content type: %w", err)
	}
	return &CachedAsset{Body: body, ContentType: string(ct)}, nil
}

// List returns the names of all generation bundles present on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Delete removes one generation's bundle entirely.
func (s *Store) Delete(generation string) error {
	if err := os.RemoveAll(s.bundleDir(generation)); err != nil {
		return fmt.Errorf("failed to delete bundle %q: %w", generation, err)
	}
	return nil
}

func (s *Store) bundleDir(generation string) string {
	// Generation names come from config; sanitize them so arbitrary
	// names cannot traverse outside the base directory.
	return filepath.Join(s.baseDir, sanitize(generation))
}

func sanitize(name string) string {
	clean := filepath.Base(filepath.Clean(name))
	if clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return "invalid"
	}
	return clean
}

func assetFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
