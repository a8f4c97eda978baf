package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"phish_server/core/feature"
	"phish_server/core/port/out"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var ErrFeatureOrder = errors.New("manifest feature order does not match the extractor")

// Manifest describes one trained model version.
type Manifest struct {
	Version      string   `yaml:"version"`
	FeatureNames []string `yaml:"feature_names"`
	Scaler       string   `yaml:"scaler"`
	Classifier   string   `yaml:"classifier"`
}

// Artifacts is a loaded, validated model. It is read-only after Load.
type Artifacts struct {
	Version    string
	Scaler     out.Scaler
	Classifier out.Classifier
	LoadedAt   time.Time
}

// Load reads the manifest at path and the artifacts it references.
// Relative artifact paths resolve against the manifest directory.
func Load(path string) (*Artifacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)

	var sdoc scalerDoc
	if err := readJSON(resolve(dir, m.Scaler), &sdoc); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	scaler, err := buildScaler(sdoc, feature.NumFeatures)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}

	var cdoc classifierDoc
	if err := readJSON(resolve(dir, m.Classifier), &cdoc); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	classifier, err := buildClassifier(cdoc, feature.NumFeatures)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	return &Artifacts{
		Version:    m.Version,
		Scaler:     scaler,
		Classifier: classifier,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

// Validate checks required fields and the feature order.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest: version is required")
	}
	if m.Scaler == "" || m.Classifier == "" {
		return fmt.Errorf("manifest: scaler and classifier paths are required")
	}
	if len(m.FeatureNames) != feature.NumFeatures {
		return fmt.Errorf("%w: %d names, want %d", ErrFeatureOrder, len(m.FeatureNames), feature.NumFeatures)
	}
	for i, name := range m.FeatureNames {
		if name != feature.Names[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrFeatureOrder, i, name, feature.Names[i])
		}
	}
	return nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
