package artifact

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnguard/ml"
)

func validBundle() map[string]interface{} {
	return map[string]interface{}{
		"model": map[string]interface{}{
			"type":         "logistic_regression",
			"coefficients": []float64{0.5, -0.25},
			"intercept":    0.1,
		},
		"scaler": map[string]interface{}{
			"mean":  []float64{1, 2},
			"scale": []float64{1, 4},
		},
		"feature_names": []string{"Tenure Months", "Monthly Charges"},
	}
}

func validMetadata() map[string]interface{} {
	return map[string]interface{}{
		"model_name": "churn_lr",
		"version":    "v1",
		"roc_auc":    0.84,
		"trained_on": "Telco_customer_churn.xlsx",
		"features":   []string{"Tenure Months", "Monthly Charges"},
		"trained_at": "2025-01-05T10:00:00Z",
		"notes":      "",
	}
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func writeVersion(t *testing.T, root, version string, bundle, metadata interface{}) string {
	t.Helper()
	dir := filepath.Join(root, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if bundle != nil {
		writeJSON(t, filepath.Join(dir, BundleFile), bundle)
	}
	if metadata != nil {
		writeJSON(t, filepath.Join(dir, MetadataFile), metadata)
	}
	return dir
}

func TestLoadByVersion(t *testing.T) {
	root := t.TempDir()
	writeVersion(t, root, "v1", validBundle(), validMetadata())

	a, err := Load(root, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", a.Version())
	assert.Equal(t, []string{"Tenure Months", "Monthly Charges"}, a.FeatureNames())
	assert.Equal(t, "churn_lr", a.Metadata().ModelName)
	assert.Equal(t, 2, a.NumFeatures())

	result, err := a.Predict([][]float64{{1, 2}}, 0.5)
	require.NoError(t, err)
	// scaled vector is all zeros, so the probability is sigmoid(intercept)
	assert.InDelta(t, 0.52497918747894, result.Probabilities[0], 1e-12)
	assert.Equal(t, []int{1}, result.Predictions)
}

func TestLoadByPath(t *testing.T) {
	root := t.TempDir()
	dir := writeVersion(t, root, "v2", validBundle(), validMetadata())

	a, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, "v2", a.Version())
	assert.Equal(t, dir, a.Dir())
}

func TestLoadNotFound(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root, "missing")
	assert.True(t, errors.Is(err, ErrArtifactNotFound))

	writeVersion(t, root, "no-metadata", validBundle(), nil)
	_, err = Load(root, "no-metadata")
	assert.True(t, errors.Is(err, ErrArtifactNotFound))
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]func(b, m map[string]interface{}){
		"missing model":         func(b, m map[string]interface{}) { delete(b, "model") },
		"missing scaler":        func(b, m map[string]interface{}) { delete(b, "scaler") },
		"null feature names":    func(b, m map[string]interface{}) { b["feature_names"] = nil },
		"duplicate feature":     func(b, m map[string]interface{}) { b["feature_names"] = []string{"A", "A"}; m["features"] = []string{"A", "A"} },
		"scaler dimension":      func(b, m map[string]interface{}) { b["scaler"] = map[string]interface{}{"mean": []float64{0}, "scale": []float64{1}} },
		"zero scale":            func(b, m map[string]interface{}) { b["scaler"] = map[string]interface{}{"mean": []float64{0, 0}, "scale": []float64{1, 0}} },
		"coefficient dimension": func(b, m map[string]interface{}) { b["model"] = map[string]interface{}{"type": "logistic_regression", "coefficients": []float64{1}} },
		"unknown model type":    func(b, m map[string]interface{}) { b["model"] = map[string]interface{}{"type": "svm"} },
		"metadata field":        func(b, m map[string]interface{}) { delete(m, "roc_auc") },
		"metadata features":     func(b, m map[string]interface{}) { m["features"] = []string{"Monthly Charges", "Tenure Months"} },
		"wrong field type":      func(b, m map[string]interface{}) { b["feature_names"] = "Tenure Months" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			b, m := validBundle(), validMetadata()
			mutate(b, m)
			writeVersion(t, root, "v1", b, m)
			_, err := Load(root, "v1")
			assert.True(t, errors.Is(err, ErrArtifactCorrupt), "got %v", err)
		})
	}
}

func TestLoadBundleNotObject(t *testing.T) {
	root := t.TempDir()
	writeVersion(t, root, "v1", []string{"model"}, validMetadata())
	_, err := Load(root, "v1")
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
}

func TestLoadDecisionTree(t *testing.T) {
	root := t.TempDir()
	b := validBundle()
	b["model"] = map[string]interface{}{
		"type": "decision_tree",
		"nodes": []map[string]interface{}{
			{"feature_idx": 0, "threshold": 0, "left_child": 1, "right_child": 2},
			{"is_leaf": true, "probability": 0.2},
			{"is_leaf": true, "probability": 0.8},
		},
	}
	writeVersion(t, root, "tree", b, validMetadata())
	a, err := Load(root, "tree")
	require.NoError(t, err)
	result, err := a.Predict([][]float64{{0, 2}, {5, 2}}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.8}, result.Probabilities)
	assert.Equal(t, []int{0, 1}, result.Predictions)
}

type fixedClassifier struct{ n int }

func (f fixedClassifier) PredictProba([]float64) (float64, error) { return 0.7, nil }
func (f fixedClassifier) NumFeatures() int                        { return f.n }

func TestNewValidates(t *testing.T) {
	scaler := &ml.StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}}
	_, err := New("v", nil, scaler, []string{"A", "B"}, Metadata{})
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
	_, err = New("v", fixedClassifier{n: 2}, nil, []string{"A", "B"}, Metadata{})
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
	_, err = New("v", fixedClassifier{n: 3}, scaler, []string{"A", "B"}, Metadata{})
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
	_, err = New("v", fixedClassifier{n: 2}, scaler, nil, Metadata{})
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))

	a, err := New("v", fixedClassifier{n: 2}, scaler, []string{"A", "B"}, Metadata{})
	require.NoError(t, err)
	names := a.FeatureNames()
	names[0] = "Z"
	assert.Equal(t, []string{"A", "B"}, a.FeatureNames())
	scaler.Mean[0] = 100
	assert.Equal(t, 0.0, a.Scaler().Mean[0])

	leaked := a.Scaler()
	leaked.Mean[1] = 42
	leaked.Scale[1] = 0
	assert.Equal(t, 0.0, a.Scaler().Mean[1])
	assert.NotEqual(t, 0.0, a.Scaler().Scale[1])
}

func TestResolveDir(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "v1"), ResolveDir("models", "v1"))
	assert.Equal(t, filepath.Clean("/srv/models/v1"), ResolveDir("models", "/srv/models/v1"))
	assert.Equal(t, "v1", ResolveDir("", "v1"))
}
