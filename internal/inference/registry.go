// Package inference loads the pretrained fraud and risk classifiers and serves read-only
// predictions from them.
//
// Artifacts are YAML (or JSON, which yaml.v3 also accepts) exported by the training
// pipelines. A Registry is built once at startup and shared by pointer between every
// concurrent conversation; nothing in it is mutated after Load returns.
package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/lina/internal/features"
)

// DefaultPositiveClass is the risk class that lets an applicant through the risk gate.
const DefaultPositiveClass = "good"

// ArtifactRef points at one model file. Relative paths resolve against the manifest.
type ArtifactRef struct {
	Path string `yaml:"path"`
}

// Manifest lists the artifacts that make up a deployment.
type Manifest struct {
	Fraud         ArtifactRef `yaml:"fraud"`
	Risk          ArtifactRef `yaml:"risk"`
	PositiveClass string      `yaml:"positive_class"`
}

// Registry holds the loaded classifiers.
type Registry struct {
	fraud         *Network
	risk          *Forest
	positiveClass string
	source        string
	loadedAt      time.Time
}

// DefaultManifestCandidates are searched when no manifest path is configured.
var DefaultManifestCandidates = []string{
	"models/models.yaml",
	"/app/models/models.yaml",
}

// Load reads the manifest and every artifact it references. Any failure is a
// *ModelLoadError; callers treat it as fatal.
func Load(manifestPath string) (*Registry, error) {
	if manifestPath == "" {
		for _, candidate := range DefaultManifestCandidates {
			if _, err := os.Stat(candidate); err == nil {
				manifestPath = candidate
				break
			}
		}
		if manifestPath == "" {
			return nil, &ModelLoadError{Path: "models.yaml", Err: errors.New("no manifest found")}
		}
	}

	var manifest Manifest
	if err := readYAML(manifestPath, &manifest); err != nil {
		return nil, &ModelLoadError{Path: manifestPath, Err: err}
	}
	if manifest.Fraud.Path == "" || manifest.Risk.Path == "" {
		return nil, loadError(manifestPath, "manifest must reference both fraud and risk artifacts")
	}
	if manifest.PositiveClass == "" {
		manifest.PositiveClass = DefaultPositiveClass
	}

	base := filepath.Dir(manifestPath)
	fraud, err := LoadNetwork(resolve(base, manifest.Fraud.Path))
	if err != nil {
		return nil, err
	}
	risk, err := LoadForest(resolve(base, manifest.Risk.Path))
	if err != nil {
		return nil, err
	}

	return NewRegistry(fraud, risk, manifest.PositiveClass, manifestPath)
}

// NewRegistry assembles a registry from already loaded models.
func NewRegistry(fraud *Network, risk *Forest, positiveClass, source string) (*Registry, error) {
	if fraud == nil || risk == nil {
		return nil, loadError(source, "both classifiers are required")
	}
	if positiveClass == "" {
		positiveClass = DefaultPositiveClass
	}
	if !slices.Contains(risk.Classes, positiveClass) {
		return nil, loadError(source, "positive class %q not among risk classes %v", positiveClass, risk.Classes)
	}
	return &Registry{
		fraud:         fraud,
		risk:          risk,
		positiveClass: positiveClass,
		source:        source,
		loadedAt:      time.Now(),
	}, nil
}

// LoadNetwork reads and validates a fraud network artifact.
func LoadNetwork(path string) (*Network, error) {
	var n Network
	if err := readYAML(path, &n); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if err := n.validate(); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return &n, nil
}

// LoadForest reads and validates a risk forest artifact.
func LoadForest(path string) (*Forest, error) {
	var f Forest
	if err := readYAML(path, &f); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if err := f.validate(); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return &f, nil
}

// FraudScore returns the fraud network output in [0,1]; higher means more normal.
func (r *Registry) FraudScore(v features.Vector) (float64, error) {
	return r.fraud.Score(v)
}

// RiskClass returns the predicted risk class and its probability distribution.
func (r *Registry) RiskClass(v features.Vector) (string, map[string]float64, error) {
	return r.risk.Classify(v)
}

// PositiveClass is the risk class that passes the risk gate.
func (r *Registry) PositiveClass() string { return r.positiveClass }

// Info describes the loaded models for health and startup logs.
type Info struct {
	Source        string    `json:"source"`
	FraudTopology []int     `json:"fraud_topology"`
	RiskClasses   []string  `json:"risk_classes"`
	RiskTrees     int       `json:"risk_trees"`
	PositiveClass string    `json:"positive_class"`
	LoadedAt      time.Time `json:"loaded_at"`
}

// Info returns a description of the registry.
func (r *Registry) Info() Info {
	return Info{
		Source:        r.source,
		FraudTopology: r.fraud.Topology(),
		RiskClasses:   slices.Clone(r.risk.Classes),
		RiskTrees:     len(r.risk.Trees),
		PositiveClass: r.positiveClass,
		LoadedAt:      r.loadedAt,
	}
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty file")
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
