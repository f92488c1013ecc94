package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseManifest parses a YAML chompfile at path into a Manifest, rejecting
// keys the Manifest/Task types do not declare, and applies env-default
// fallbacks. Unlike the teacher's directory-of-files
// loader, a chompfile is always a single file — spec.md's manifest has no
// import/merge mechanism.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}

	var manifest Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	applyEnvDefaults(&manifest)

	return &manifest, nil
}

// applyEnvDefaults fills manifest.Env (and each task's Env) from the
// corresponding env-default map wherever the process/manifest env did not
// already set the key (spec.md §6: "env-default: used only if not set in
// process env").
func applyEnvDefaults(manifest *Manifest) {
	if manifest.Env == nil {
		manifest.Env = make(map[string]string)
	}
	for key, value := range manifest.EnvDefault {
		if _, set := manifest.Env[key]; !set {
			if _, set := os.LookupEnv(key); !set {
				manifest.Env[key] = value
			}
		}
	}

	for i, task := range manifest.Tasks {
		if len(task.EnvDefault) == 0 {
			continue
		}
		if task.Env == nil {
			task.Env = make(map[string]string)
		}
		for key, value := range task.EnvDefault {
			if _, set := task.Env[key]; !set {
				if _, set := os.LookupEnv(key); !set {
					task.Env[key] = value
				}
			}
		}
		manifest.Tasks[i] = task
	}
}
