package cli

import "chompbuild.dev/internal/dirs"

func cacheHomeOrDefault() (string, error) {
	return dirs.CacheHome()
}
