package chromemdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// chromem-go skips plain files in the db directory, so the manifest can live next to the collections
const manifestFile = "manifest.yaml"

type manifest struct {
	Dimension int `yaml:"dimension"`
}

func loadManifest(dbPath string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(dbPath, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}

func saveManifest(dbPath string, m manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dbPath, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
