package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"chompbuild.dev/internal/config"
)

// listEntry is one row of `chomp --list` output.
type listEntry struct {
	Name    string `json:"name"`
	Target  string `json:"target,omitempty"`
	Display string `json:"display,omitempty"`
}

func runList() error {
	lr, err := load()
	if err != nil {
		return err
	}
	defer lr.host.Close()

	entries := make([]listEntry, 0, len(lr.manifest.Tasks))
	for _, t := range lr.manifest.Tasks {
		if t.Name == "" {
			continue
		}
		target := ""
		if targets := t.AllTargets(); len(targets) > 0 {
			target = targets[0]
		}
		entries = append(entries, listEntry{Name: t.Name, Target: target, Display: t.Display})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	switch globalFormat {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(entries)
	default:
		for _, e := range entries {
			if e.Target != "" {
				fmt.Printf("%s -> %s\n", e.Name, e.Target)
			} else {
				fmt.Println(e.Name)
			}
		}
	}
	return nil
}

func printEjected(manifest *config.Manifest) error {
	return json.NewEncoder(os.Stdout).Encode(manifest)
}

func runClearCache() error {
	cacheHome, err := cacheHomeOrDefault()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(cacheHome); err != nil {
		return fmt.Errorf("chomp: failed to clear cache at %s: %w", cacheHome, err)
	}
	fmt.Printf("cleared cache at %s\n", cacheHome)
	return nil
}
