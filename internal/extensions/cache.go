// Package extensions resolves the manifest's `extensions` list — `chomp:`
// core-extension names or bare URLs — into JS source the scripting host can
// Eval, caching fetched sources content-addressed under the chomp cache
// home (spec.md §6.4).
package extensions

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// corePrefix marks a built-in extension resolved against the core
	// index rather than fetched as an arbitrary URL.
	corePrefix = "chomp:"
	// coreIndexEnv overrides the base URL core extensions resolve
	// against (spec.md §6.3's CHOMP_CORE).
	coreIndexEnv    = "CHOMP_CORE"
	defaultCoreBase = "https://unpkg.com/@chompbuild/core/"
)

// ErrUnresolvable is returned when an extension name cannot be turned into
// a fetchable URL or a local path.
var ErrUnresolvable = errors.New("extensions: cannot resolve")

// Cache fetches and caches extension source files under cacheHome.
type Cache struct {
	cacheHome string
	client    *http.Client
}

// New creates a Cache rooted at cacheHome (normally dirs.CacheHome()).
func New(cacheHome string) *Cache {
	return &Cache{
		cacheHome: cacheHome,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Resolve returns the JS source for name, which is either a `chomp:`-prefixed
// core extension, a bare http(s) URL, or a local file path. Remote sources
// are cached content-addressed by sha256(url) so repeat invocations don't
// refetch.
func (c *Cache) Resolve(name string) (string, error) {
	url, isRemote, err := c.resolveURL(name)
	if err != nil {
		return "", err
	}
	if !isRemote {
		data, err := os.ReadFile(url)
		if err != nil {
			return "", fmt.Errorf("extensions: failed to read local extension %q: %w", name, err)
		}
		return string(data), nil
	}
	return c.fetchCached(url)
}

func (c *Cache) resolveURL(name string) (string, bool, error) {
	switch {
	case strings.HasPrefix(name, corePrefix):
		base := os.Getenv(coreIndexEnv)
		if base == "" {
			base = defaultCoreBase
		}
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(name, corePrefix) + ".js", true, nil
	case strings.HasPrefix(name, "http://"), strings.HasPrefix(name, "https://"):
		return name, true, nil
	case name != "":
		return name, false, nil
	default:
		return "", false, fmt.Errorf("%w: empty extension name", ErrUnresolvable)
	}
}

// fetchCached returns the cached body for url, fetching and persisting it
// on first use under cacheHome/<sha256-hex(url)>.
func (c *Cache) fetchCached(url string) (string, error) {
	key := sha256.Sum256([]byte(url))
	path := filepath.Join(c.cacheHome, hex.EncodeToString(key[:]))

	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	body, err := c.fetch(url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.cacheHome, 0o755); err != nil {
		return "", fmt.Errorf("extensions: failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("extensions: failed to write cache entry: %w", err)
	}
	return body, nil
}

func (c *Cache) fetch(url string) (string, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("extensions: failed to fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extensions: fetching %q: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("extensions: failed to read response body for %q: %w", url, err)
	}
	return string(data), nil
}
