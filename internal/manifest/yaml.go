package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlManifestFile represents the raw YAML structure of a mod manifest.
type yamlManifestFile struct {
	Mods []Entry `yaml:"mods"`
}

// ReadYAMLFromBytes parses a mod manifest from YAML bytes.
//
// The YAML format is:
//
//	mods:
//	  - name: jei
//	    source: https://example.org/jei-1.20.1-forge-15.2.0.27.jar
//	    sha256: 5f1c...
//	  - source: ./build/libs/testmod-1.0.0.jar
func ReadYAMLFromBytes(data []byte) (*Manifest, error) {
	var raw yamlManifestFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mod manifest: %w", err)
	}

	if len(raw.Mods) == 0 {
		return nil, fmt.Errorf("manifest contains no mod entries")
	}

	for i := range raw.Mods {
		if err := normalize(&raw.Mods[i]); err != nil {
			return nil, fmt.Errorf("mod at index %d: %w", i, err)
		}
	}

	return &Manifest{Entries: raw.Mods}, nil
}
