// Package dirs centralizes the well-known directory and file names chomp
// uses for config discovery and cache state.
package dirs

import (
	"os"
	"path/filepath"
)

// DefaultManifest is the chompfile name searched for in the current
// directory when --config is not given.
const DefaultManifest = "chompfile.yaml"

// CacheHome returns ~/.chomp/cache, creating it if necessary.
func CacheHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".chomp", "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
