package assets

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
)

// Checker reports whether an asset path can be loaded.
type Checker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// CachedChecker remembers paths that were found so they are never checked twice.
// Misses and errors are not cached; an asset may be uploaded later.
// Concurrent checks of the same path share one call.
type CachedChecker struct {
	next  Checker
	group singleflight.Group

	mu    sync.RWMutex
	found map[string]struct{}
}

// NewCachedChecker wraps next with a success cache.
func NewCachedChecker(next Checker) *CachedChecker {
	return &CachedChecker{next: next, found: make(map[string]struct{})}
}

// Exists implements Checker. A failed check counts as missing.
func (c *CachedChecker) Exists(ctx context.Context, path string) (bool, error) {
	c.mu.RLock()
	_, ok := c.found[path]
	c.mu.RUnlock()
	if ok {
		return true, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		return c.next.Exists(ctx, path)
	})
	if err != nil {
		return false, err
	}
	exists := v.(bool)
	if exists {
		c.mu.Lock()
		c.found[path] = struct{}{}
		c.mu.Unlock()
	}
	return exists, nil
}

// Invalidate forgets a cached success, so the next check of path asks next again.
func (c *CachedChecker) Invalidate(path string) {
	c.mu.Lock()
	delete(c.found, path)
	c.mu.Unlock()
	c.group.Forget(path)
}

// Filter keeps the layers whose asset exists. Check errors drop the layer.
func Filter(ctx context.Context, checker Checker, layers []Layer) []Layer {
	out := make([]Layer, 0, len(layers))
	for _, l := range layers {
		if ok, err := checker.Exists(ctx, l.Path); err == nil && ok {
			out = append(out, l)
		}
	}
	return out
}

// HTTPChecker issues HEAD requests against asset URLs.
type HTTPChecker struct {
	client *retryablehttp.Client
}

// NewHTTPChecker builds a checker with a small retry budget. A nil client gets a default one.
func NewHTTPChecker(client *retryablehttp.Client) *HTTPChecker {
	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = log.New(io.Discard, "", 0)
		client.RetryMax = 2
	}
	return &HTTPChecker{client: client}
}

// Exists implements Checker.
func (h *HTTPChecker) Exists(ctx context.Context, path string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, path, nil)
	if err != nil {
		return false, fmt.Errorf("build HEAD %s: %w", path, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	default:
		return false, fmt.Errorf("HEAD %s: unexpected status %d", path, resp.StatusCode)
	}
}

// ObjectLookup is the part of an object store a StoreChecker needs.
type ObjectLookup interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// StoreChecker looks assets up directly in an object store. Paths are
// converted to keys by stripping basePath.
type StoreChecker struct {
	store    ObjectLookup
	basePath string
}

func NewStoreChecker(store ObjectLookup, basePath string) *StoreChecker {
	return &StoreChecker{store: store, basePath: basePath}
}

// Exists implements Checker.
func (s *StoreChecker) Exists(ctx context.Context, path string) (bool, error) {
	key := path
	if s.basePath != "" {
		key = strings.TrimPrefix(strings.TrimPrefix(path, strings.TrimRight(s.basePath, "/")), "/")
	}
	return s.store.Exists(ctx, key)
}
