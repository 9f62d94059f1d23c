package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/logging"
)

const fileSuffix = ".json"

// FileCache stores JSON-encoded values as one file per key under a directory.
// Writes go through a temporary file and a rename, so readers never observe partial values.
type FileCache[V any] struct {
	dir string
}

var _ ReadWriter[[]float64] = &FileCache[[]float64]{}

// NewFileCache creates dir if needed and returns a cache rooted there.
func NewFileCache[V any](dir string) (*FileCache[V], error) {
	if dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &FileCache[V]{dir: dir}, nil
}

// Dir returns the cache root.
func (c *FileCache[V]) Dir() string { return c.dir }

func (c *FileCache[V]) path(key Key) string {
	return filepath.Join(c.dir, key.String()+fileSuffix)
}

// Get returns the cached value. Unreadable or corrupt entries are reported as misses.
func (c *FileCache[V]) Get(key Key) (V, bool) {
	var zero V
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ctrl.Log.V(logging.DEBUG).Info("Cache entry unreadable", "key", key.String(), "error", err.Error())
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		ctrl.Log.V(logging.DEBUG).Info("Cache entry corrupt", "key", key.String(), "error", err.Error())
		return zero, false
	}
	ctrl.Log.V(logging.DEBUG).Info("Found cache entry", "key", key.String(), "dir", c.dir)
	return v, true
}

func (c *FileCache[V]) Set(key Key, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(c.dir, key.String()+"-*.tmp")
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

func (c *FileCache[V]) Delete(key Key) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	return nil
}

func (c *FileCache[V]) Len() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileSuffix) {
			n++
		}
	}
	return n
}

// GetOrCompute returns the cached value for key, or computes, stores and returns it.
// A failed store is logged and does not fail the call.
func GetOrCompute[V any](c ReadWriter[V], key Key, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	if err := c.Set(key, v); err != nil {
		ctrl.Log.Info("Failed to store cache entry", "key", key.String(), "error", err.Error())
	}
	return v, nil
}
