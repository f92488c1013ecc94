package config

import (
	"fmt"
	"os"

	"chompbuild.dev/internal/dirs"
)

// LoadManifest loads and validates the chompfile at customPath, or, if
// customPath is empty, at dirs.DefaultManifest in the current directory
// (spec.md §6: a chomp invocation resolves exactly one manifest file).
func LoadManifest(customPath string) (*Manifest, error) {
	path := customPath
	if path == "" {
		path = dirs.DefaultManifest
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no chompfile found at %s", path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	manifest, err := ParseManifest(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest at %s: %w", path, err)
	}

	if err := Validate(manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest at %s: %w", path, err)
	}

	return manifest, nil
}
