package api

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"churnguard/artifact"
	"churnguard/db"
	"churnguard/ml"
	"churnguard/monitoring"
	"churnguard/schema"
)

// fixedClassifier returns the same probability for every row.
type fixedClassifier struct {
	n    int
	prob float64
	err  error
}

func (c fixedClassifier) PredictProba(features []float64) (float64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.prob, nil
}

func (c fixedClassifier) NumFeatures() int { return c.n }

// sumClassifier returns the first scaled feature divided by ten, which makes
// column order observable in the output.
type sumClassifier struct{ n int }

func (c sumClassifier) PredictProba(features []float64) (float64, error) {
	return features[0] / 10, nil
}

func (c sumClassifier) NumFeatures() int { return c.n }

func identityScaler(n int) *ml.StandardScaler {
	s := &ml.StandardScaler{Mean: make([]float64, n), Scale: make([]float64, n)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

func newArtifact(t *testing.T, names []string, clf ml.Classifier) *artifact.Artifact {
	t.Helper()
	a, err := artifact.New("test_v1", clf, identityScaler(len(names)), names, artifact.Metadata{
		ModelName: "test",
		Version:   "test_v1",
		Features:  names,
	})
	require.NoError(t, err)
	return a
}

func newIdentityService(t *testing.T, names []string, clf ml.Classifier, opts ...Option) *Service {
	t.Helper()
	table, err := schema.IdentityTable(names)
	require.NoError(t, err)
	svc, err := NewService(newArtifact(t, names, clf), table, opts...)
	require.NoError(t, err)
	return svc
}

type memoryRecorder struct {
	mu   sync.Mutex
	logs []db.PredictionLog
	err  error
}

func (r *memoryRecorder) SavePredictions(ctx context.Context, log db.PredictionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

type memoryPublisher struct {
	mu     sync.Mutex
	events []monitoring.PredictionEvent
}

func (p *memoryPublisher) Publish(event monitoring.PredictionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

var errBoom = errors.New("boom")
