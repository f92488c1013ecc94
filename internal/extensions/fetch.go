package extensions

import (
	"golang.org/x/sync/errgroup"
)

// PrefetchAll resolves every name in names concurrently, returning a map of
// name -> source. Errors from any single extension abort the whole group,
// matching the manifest load path where a missing extension is fatal.
func (c *Cache) PrefetchAll(names []string) (map[string]string, error) {
	sources := make([]string, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			src, err := c.Resolve(name)
			if err != nil {
				return err
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = sources[i]
	}
	return out, nil
}
