package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"churnguard/artifact"
	"churnguard/ml"
	"churnguard/monitoring"
	"churnguard/schema"
)

func decode(t *testing.T, body string) *PredictRequest {
	t.Helper()
	req, err := DecodePredictRequest(strings.NewReader(body))
	require.NoError(t, err)
	return req
}

func TestPredictSingleRecord(t *testing.T) {
	svc := newIdentityService(t, []string{"A", "B"}, fixedClassifier{n: 2, prob: 0.7})

	resp, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1,"B":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7}, resp.Probabilities)
	assert.Equal(t, []int{1}, resp.Predictions)
}

func TestPredictMismatchNamesMissingAndExtra(t *testing.T) {
	svc := newIdentityService(t, []string{"A", "B"}, fixedClassifier{n: 2, prob: 0.7})

	_, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1,"C":2}]}`))
	require.Error(t, err)
	var mismatch *schema.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, mismatch.Record)
	assert.Equal(t, []string{"B"}, mismatch.Missing)
	assert.Equal(t, []string{"C"}, mismatch.Extra)
}

func TestPredictMismatchReportsFailingRecord(t *testing.T) {
	svc := newIdentityService(t, []string{"A", "B"}, fixedClassifier{n: 2, prob: 0.7})

	_, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1,"B":2},{"A":1}]}`))
	var mismatch *schema.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Record)
	assert.Equal(t, []string{"B"}, mismatch.Missing)
	assert.Empty(t, mismatch.Extra)
}

func TestPredictReorderingDoesNotChangeOutput(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := newIdentityService(t, []string{"A", "B"}, sumClassifier{n: 2}, WithLogger(zap.New(core)))

	inOrder, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":3,"B":9}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, logs.Len())

	swapped, err := svc.Predict(context.Background(), decode(t, `{"records":[{"B":9,"A":3}]}`))
	require.NoError(t, err)
	assert.Equal(t, inOrder.Probabilities, swapped.Probabilities)
	assert.InDelta(t, 0.3, swapped.Probabilities[0], 1e-12)
	assert.Equal(t, 1, logs.FilterMessageSnippet("column order mismatch").Len())
}

func TestPredictBatchOrderAndLength(t *testing.T) {
	svc := newIdentityService(t, []string{"A", "B"}, sumClassifier{n: 2})

	resp, err := svc.Predict(context.Background(), decode(t,
		`{"records":[{"A":1,"B":0},{"A":9,"B":0},{"B":0,"A":5}]}`))
	require.NoError(t, err)
	require.Len(t, resp.Probabilities, 3)
	assert.InDeltaSlice(t, []float64{0.1, 0.9, 0.5}, resp.Probabilities, 1e-12)
	assert.Equal(t, []int{0, 1, 1}, resp.Predictions)
}

func TestPredictThreshold(t *testing.T) {
	svc := newIdentityService(t, []string{"A"}, fixedClassifier{n: 1, prob: 0.6}, WithThreshold(0.8))

	resp, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, resp.Predictions)

	resp, err = svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}],"threshold":0.6}`))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, resp.Predictions, "tie goes to the positive class")

	_, err = svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}],"threshold":1.01}`))
	assert.ErrorIs(t, err, ml.ErrInvalidThreshold)
	assert.Equal(t, KindInvalidThreshold, Classify(err))
}

func TestPredictRejectsBatchSize(t *testing.T) {
	svc := newIdentityService(t, []string{"A"}, fixedClassifier{n: 1, prob: 0.6}, WithMaxBatch(2))

	_, err := svc.Predict(context.Background(), decode(t, `{"records":[]}`))
	assert.Equal(t, KindInvalidRequest, Classify(err))

	_, err = svc.Predict(context.Background(), decode(t, `{"records":[{"A":1},{"A":1},{"A":1}]}`))
	assert.Equal(t, KindInvalidRequest, Classify(err))

	_, err = svc.Predict(context.Background(), nil)
	assert.Equal(t, KindInvalidRequest, Classify(err))
}

func TestPredictUnexpectedFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	svc := newIdentityService(t, []string{"A"}, fixedClassifier{n: 1, err: errBoom}, WithLogger(zap.New(core)))

	_, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}]}`))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, KindUnexpected, Classify(err))
	assert.Equal(t, 1, logs.Len())
}

func TestPredictInvalidProbabilityIsUnexpected(t *testing.T) {
	svc := newIdentityService(t, []string{"A"}, fixedClassifier{n: 1, prob: 1.5})

	_, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}]}`))
	require.ErrorIs(t, err, ml.ErrInvalidProbability)
	assert.Equal(t, KindUnexpected, Classify(err))
}

func TestPredictSideEffects(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	recorder := &memoryRecorder{}
	publisher := &memoryPublisher{}
	core, logs := observer.New(zap.InfoLevel)
	svc := newIdentityService(t, []string{"A", "B"}, fixedClassifier{n: 2, prob: 0.7},
		WithMetrics(metrics), WithRecorder(recorder), WithPublisher(publisher), WithLogger(zap.New(core)))

	ctx := WithRequestID(context.Background(), "req-1")
	_, err := svc.Predict(ctx, decode(t, `{"records":[{"A":1,"B":2},{"A":3,"B":4}]}`))
	require.NoError(t, err)

	require.Len(t, recorder.logs, 1)
	assert.Equal(t, "req-1", recorder.logs[0].RequestID)
	assert.Equal(t, "test_v1", recorder.logs[0].ModelVersion)
	assert.Equal(t, []int{1, 1}, recorder.logs[0].Predictions)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, 2, publisher.events[0].Records)
	assert.Equal(t, "req-1", publisher.events[0].RequestID)

	served := logs.FilterMessage("prediction served").All()
	require.Len(t, served, 1)
	assert.Equal(t, "req-1", served[0].ContextMap()["request_id"])
	assert.Equal(t, "test_v1", served[0].ContextMap()["model_version"])

	_, err = svc.Predict(ctx, decode(t, `{"records":[{"A":1}]}`))
	require.Error(t, err)
	assert.Len(t, recorder.logs, 1, "failed batches are not recorded")
	assert.Len(t, publisher.events, 1)

	series, err := testutil.GatherAndCount(reg, "churnguard_prediction_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per observed outcome")
}

func TestPredictRecorderFailureDoesNotFailRequest(t *testing.T) {
	recorder := &memoryRecorder{err: errBoom}
	svc := newIdentityService(t, []string{"A"}, fixedClassifier{n: 1, prob: 0.2}, WithRecorder(recorder))

	resp, err := svc.Predict(context.Background(), decode(t, `{"records":[{"A":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, resp.Predictions)
}

func TestNewServiceRejectsUncoveredTable(t *testing.T) {
	table, err := schema.IdentityTable([]string{"A", "C"})
	require.NoError(t, err)
	_, err = NewService(newArtifact(t, []string{"A", "B"}, fixedClassifier{n: 2}), table)
	var coverage *schema.CoverageError
	require.ErrorAs(t, err, &coverage)
}

func TestNewServiceRejectsThreshold(t *testing.T) {
	table, err := schema.IdentityTable([]string{"A"})
	require.NoError(t, err)
	_, err = NewService(newArtifact(t, []string{"A"}, fixedClassifier{n: 1}), table, WithThreshold(-0.1))
	assert.ErrorIs(t, err, ml.ErrInvalidThreshold)
}

func TestServiceWithTelcoTable(t *testing.T) {
	names := schema.TelcoFeatureNames()
	svc, err := NewService(newArtifact(t, names, fixedClassifier{n: len(names), prob: 0.4}), schema.TelcoTable())
	require.NoError(t, err)

	fields := svc.AcceptedFields()
	require.Len(t, fields, len(names))
	record := make(map[string]float64, len(fields))
	for _, f := range fields {
		record[f] = 1
	}
	resp, err := svc.Predict(context.Background(), &PredictRequest{Records: []schema.Record{schema.RecordFromMap(record)}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, resp.Predictions)
}

func TestShippedModelScoresExampleRequest(t *testing.T) {
	model, err := artifact.Load("../models", "churn_lr_v1")
	require.NoError(t, err)
	svc, err := NewService(model, schema.TelcoTable())
	require.NoError(t, err)

	f, err := os.Open("../examples/predict_request.json")
	require.NoError(t, err)
	defer f.Close()
	req, err := DecodePredictRequest(f)
	require.NoError(t, err)

	resp, err := svc.Predict(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Probabilities, 1)
	assert.Greater(t, resp.Probabilities[0], 0.0)
	assert.Less(t, resp.Probabilities[0], 1.0)
}

func TestPredictOverflowingRecordIsClientError(t *testing.T) {
	names := []string{"A", "B"}
	clf, err := ml.NewLogisticRegression([]float64{1, 1}, 0, 2)
	require.NoError(t, err)
	model, err := artifact.New("test_v1", clf, &ml.StandardScaler{Mean: []float64{0, 0}, Scale: []float64{0.5, 0.5}}, names,
		artifact.Metadata{Features: names})
	require.NoError(t, err)
	table, err := schema.IdentityTable(names)
	require.NoError(t, err)
	core, logs := observer.New(zap.ErrorLevel)
	svc, err := NewService(model, table, WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), decode(t, `{"records":[{"A":1,"B":2},{"A":1.7e308,"B":-1.7e308}]}`))
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, Classify(err))
	assert.Equal(t, 0, logs.Len(), "client input must not be logged as a server fault")

	status, body := StatusFor(err)
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.NotNil(t, body.Record) {
		assert.Equal(t, 1, *body.Record)
	}
}
