package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// File names inside the persist directory.
const (
	ManifestFile = "manifest.yaml"
	StateFile    = "embedder.json"
)

// Manifest describes a persisted index. It is written last, so its presence
// marks a complete build.
type Manifest struct {
	Embedder  string    `yaml:"embedder"`
	Dimension int       `yaml:"dimension"`
	Segments  int       `yaml:"segments"`
	Window    int       `yaml:"window"`
	Overlap   int       `yaml:"overlap"`
	Document  string    `yaml:"document"`
	Summary   string    `yaml:"summary,omitempty"`
	BuiltAt   time.Time `yaml:"built_at"`
}

var errNoManifest = errors.New("no persisted index")

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, errNoManifest
		}
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// writeManifest replaces the manifest atomically.
func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFile))
}
