package segmenter

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ManifestFileName is written next to the segment files.
const ManifestFileName = "segments.yaml"

// Manifest records how a sample directory was produced.
type Manifest struct {
	Source      string          `yaml:"source"`
	WindowMS    int64           `yaml:"window_ms"`
	MinLengthMS int64           `yaml:"min_length_ms"`
	SampleRate  int             `yaml:"sample_rate"`
	Channels    int             `yaml:"channels"`
	Segments    []SegmentRecord `yaml:"segments"`
}

// SegmentRecord describes one written segment file.
type SegmentRecord struct {
	File       string  `yaml:"file"`
	StartMS    int64   `yaml:"start_ms"`
	DurationMS int64   `yaml:"duration_ms"`
	GainDB     float64 `yaml:"gain_db"`
}

// WriteManifest stores the manifest as YAML at path.
func WriteManifest(path string, manifest *Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}

	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var manifest Manifest

	err = yaml.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	return &manifest, nil
}
