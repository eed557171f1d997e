// Package artifact loads the versioned model bundle a churnguard process
// serves for its whole lifetime.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"churnguard/ml"
)

const (
	BundleFile   = "model.json"
	MetadataFile = "metadata.json"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactCorrupt  = errors.New("artifact corrupt")
)

// Metadata is provenance information stored next to the bundle.
type Metadata struct {
	ModelName string   `json:"model_name"`
	Version   string   `json:"version"`
	ROCAUC    float64  `json:"roc_auc"`
	TrainedOn string   `json:"trained_on"`
	Features  []string `json:"features"`
	TrainedAt string   `json:"trained_at"`
	Notes     string   `json:"notes"`
}

var requiredMetadataFields = []string{
	"model_name",
	"version",
	"roc_auc",
	"trained_on",
	"features",
	"trained_at",
	"notes",
}

// bundle is the on-disk shape of model.json.
type bundle struct {
	Model        *ml.ModelSpec      `json:"model"`
	Scaler       *ml.StandardScaler `json:"scaler"`
	FeatureNames []string           `json:"feature_names"`
}

// Artifact is an immutable, loaded model version. It is safe for concurrent
// use because nothing mutates it after construction.
type Artifact struct {
	version      string
	dir          string
	classifier   ml.Classifier
	scaler       *ml.StandardScaler
	featureNames []string
	metadata     Metadata
}

// New validates the parts of an artifact and assembles them.
func New(version string, classifier ml.Classifier, scaler *ml.StandardScaler, featureNames []string, metadata Metadata) (*Artifact, error) {
	if classifier == nil {
		return nil, corrupt("classifier is missing")
	}
	if scaler == nil {
		return nil, corrupt("scaler is missing")
	}
	if err := validateFeatureNames(featureNames); err != nil {
		return nil, err
	}
	if err := scaler.Validate(len(featureNames)); err != nil {
		return nil, corrupt("%v", err)
	}
	if classifier.NumFeatures() != len(featureNames) {
		return nil, corrupt("classifier expects %d features, bundle lists %d", classifier.NumFeatures(), len(featureNames))
	}
	return &Artifact{
		version:      version,
		classifier:   classifier,
		scaler:       scaler.Clone(),
		featureNames: append([]string(nil), featureNames...),
		metadata:     metadata,
	}, nil
}

// Load reads the artifact identified by ref: either a version name under
// root or, when ref contains a path separator, the version directory itself.
func Load(root, ref string) (*Artifact, error) {
	dir := ResolveDir(root, ref)
	bundlePath := filepath.Join(dir, BundleFile)
	metadataPath := filepath.Join(dir, MetadataFile)

	bundleData, err := readFile(bundlePath)
	if err != nil {
		return nil, err
	}
	metadataData, err := readFile(metadataPath)
	if err != nil {
		return nil, err
	}

	b, err := decodeBundle(bundleData)
	if err != nil {
		return nil, err
	}
	metadata, err := decodeMetadata(metadataData)
	if err != nil {
		return nil, err
	}
	if !equalNames(metadata.Features, b.FeatureNames) {
		return nil, corrupt("metadata features do not match bundle feature_names")
	}

	if err := validateFeatureNames(b.FeatureNames); err != nil {
		return nil, err
	}
	classifier, err := ml.NewClassifier(*b.Model, len(b.FeatureNames))
	if err != nil {
		return nil, corrupt("model: %v", err)
	}

	a, err := New(filepath.Base(dir), classifier, b.Scaler, b.FeatureNames, metadata)
	if err != nil {
		return nil, err
	}
	a.dir = dir
	return a, nil
}

// ResolveDir maps a version or path reference to a version directory.
func ResolveDir(root, ref string) string {
	if root == "" || strings.ContainsAny(ref, `/`+string(os.PathSeparator)) {
		return filepath.Clean(ref)
	}
	return filepath.Join(root, ref)
}

func (a *Artifact) Version() string {
	return a.version
}

// Dir is the directory the artifact was loaded from, empty for artifacts
// built in memory.
func (a *Artifact) Dir() string {
	return a.dir
}

func (a *Artifact) Classifier() ml.Classifier {
	return a.classifier
}

func (a *Artifact) Scaler() *ml.StandardScaler {
	return a.scaler.Clone()
}

// FeatureNames returns a copy of the trained column order.
func (a *Artifact) FeatureNames() []string {
	return append([]string(nil), a.featureNames...)
}

func (a *Artifact) NumFeatures() int {
	return len(a.featureNames)
}

func (a *Artifact) Metadata() Metadata {
	m := a.metadata
	m.Features = append([]string(nil), a.metadata.Features...)
	return m
}

// Predict scores an aligned batch with this artifact.
func (a *Artifact) Predict(batch [][]float64, threshold float64) (*ml.Result, error) {
	return ml.Predict(batch, a.classifier, a.scaler, threshold)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func decodeBundle(data []byte) (*bundle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt("bundle is not a JSON object: %v", err)
	}
	var missing []string
	for _, key := range []string{"model", "scaler", "feature_names"} {
		value, ok := raw[key]
		if !ok || isNull(value) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, corrupt("bundle is missing required fields: %v", missing)
	}
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, corrupt("bundle: %v", err)
	}
	return &b, nil
}

func decodeMetadata(data []byte) (Metadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, corrupt("metadata is not a JSON object: %v", err)
	}
	var missing []string
	for _, key := range requiredMetadataFields {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Metadata{}, corrupt("metadata is missing required fields: %v", missing)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, corrupt("metadata: %v", err)
	}
	return m, nil
}

func validateFeatureNames(names []string) error {
	if len(names) == 0 {
		return corrupt("feature_names is empty")
	}
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			return corrupt("feature_names[%d] is empty", i)
		}
		if _, ok := seen[name]; ok {
			return corrupt("feature name %q is duplicated", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArtifactCorrupt, fmt.Sprintf(format, args...))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
