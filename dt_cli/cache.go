package main

import (
	"errors"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// DesignCache keeps exported design documents fetched from the service.
// Documents are stored under ~/.designtree/cache/designs/<hash>.json.
type DesignCache struct {
	root string
}

// NewDesignCache constructs a cache rooted at the default cache location.
func NewDesignCache() (*DesignCache, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return newDesignCacheWithRoot(filepath.Join(home, ".designtree", "cache"))
}

func newDesignCacheWithRoot(root string) (*DesignCache, error) {
	if err := os.MkdirAll(filepath.Join(root, "designs"), 0o755); err != nil {
		return nil, err
	}
	return &DesignCache{root: root}, nil
}

func (c *DesignCache) designPath(hash string) string {
	return filepath.Join(c.root, "designs", hash+".json")
}

// Has reports whether the design with the given hash is cached.
func (c *DesignCache) Has(hash string) (bool, error) {
	if hash == "" {
		return false, errors.New("missing hash for cache lookup")
	}
	_, err := os.Stat(c.designPath(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Read loads a cached design document.
func (c *DesignCache) Read(hash string) ([]byte, error) {
	if hash == "" {
		return nil, errors.New("missing hash for cache read")
	}
	return os.ReadFile(c.designPath(hash))
}

// Store writes a design document under its hash.
func (c *DesignCache) Store(hash string, data []byte) error {
	if hash == "" {
		return errors.New("missing hash for cache write")
	}
	return os.WriteFile(c.designPath(hash), data, 0o644)
}
