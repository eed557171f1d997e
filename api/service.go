package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"churnguard/artifact"
	"churnguard/db"
	"churnguard/ml"
	"churnguard/monitoring"
	"churnguard/schema"
)

// DefaultMaxBatch bounds the number of records in one request.
const DefaultMaxBatch = 1000

// Recorder persists served predictions.
type Recorder interface {
	SavePredictions(ctx context.Context, log db.PredictionLog) error
}

// Publisher receives an event for every served batch.
type Publisher interface {
	Publish(event monitoring.PredictionEvent)
}

// Service serves predictions for exactly one loaded artifact.
type Service struct {
	model     *artifact.Artifact
	table     *schema.Table
	features  []string
	threshold float64
	maxBatch  int
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	recorder  Recorder
	publisher Publisher
}

type Option func(*Service)

func WithThreshold(threshold float64) Option {
	return func(s *Service) { s.threshold = threshold }
}

func WithMaxBatch(n int) Option {
	return func(s *Service) { s.maxBatch = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// NewService checks that table covers the artifact's vocabulary exactly and
// that the default threshold is valid.
func NewService(model *artifact.Artifact, table *schema.Table, opts ...Option) (*Service, error) {
	if model == nil {
		return nil, errors.New("model artifact is required")
	}
	if table == nil {
		return nil, errors.New("rename table is required")
	}
	s := &Service{
		model:     model,
		table:     table,
		features:  model.FeatureNames(),
		threshold: ml.DefaultThreshold,
		maxBatch:  DefaultMaxBatch,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := table.Covers(s.features); err != nil {
		return nil, fmt.Errorf("model %s: %w", model.Version(), err)
	}
	if err := ml.ValidateThreshold(s.threshold); err != nil {
		return nil, err
	}
	if s.maxBatch <= 0 {
		return nil, errors.New("max batch must be positive")
	}
	return s, nil
}

func (s *Service) ModelVersion() string {
	return s.model.Version()
}

func (s *Service) Metadata() artifact.Metadata {
	return s.model.Metadata()
}

// AcceptedFields lists the request spelling of every model feature in model
// column order.
func (s *Service) AcceptedFields() []string {
	return s.table.ExternalNames(s.features)
}

func (s *Service) Threshold() float64 {
	return s.threshold
}

// Predict validates the batch as a whole, aligns every record and scores it.
// No record is scored unless every record is valid.
func (s *Service) Predict(ctx context.Context, req *PredictRequest) (resp *PredictResponse, err error) {
	start := time.Now()
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = NewRequestID()
	}
	defer func() {
		if err != nil {
			s.fail(requestID, err, time.Since(start))
		}
	}()

	if req == nil || len(req.Records) == 0 {
		return nil, requestError("records must contain at least one record")
	}
	if len(req.Records) > s.maxBatch {
		return nil, requestError("batch of %d records exceeds the limit of %d", len(req.Records), s.maxBatch)
	}
	if err := s.checkFields(req.Records); err != nil {
		return nil, err
	}
	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := ml.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	vectors, reordered, err := schema.AlignBatch(req.Records, s.table, s.features)
	if err != nil {
		return nil, err
	}
	if reordered > 0 {
		s.logger.Warn("column order mismatch detected, reordering input to match model schema",
			zap.String("request_id", requestID),
			zap.Int("records", reordered))
	}

	result, err := s.model.Predict(vectors, threshold)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	latency := time.Since(start)
	s.succeed(ctx, requestID, threshold, result, reordered, latency)
	return &PredictResponse{
		Probabilities: result.Probabilities,
		Predictions:   result.Predictions,
	}, nil
}

// checkFields rejects field names outside the declared vocabulary before any
// alignment work is done.
func (s *Service) checkFields(records []schema.Record) error {
	for i, rec := range records {
		unknown := s.table.Unknown(rec)
		if len(unknown) == 0 {
			continue
		}
		present := make(map[string]bool, len(rec))
		for _, f := range rec {
			if canonical, ok := s.table.Canonical(f.Name); ok {
				present[canonical] = true
			}
		}
		var missing []string
		for _, name := range s.features {
			if !present[name] {
				missing = append(missing, s.table.External(name))
			}
		}
		return &schema.MismatchError{Record: i, Missing: missing, Extra: unknown}
	}
	return nil
}

func (s *Service) succeed(ctx context.Context, requestID string, threshold float64, result *ml.Result, reordered int, latency time.Duration) {
	s.logger.Info("prediction served",
		zap.String("request_id", requestID),
		zap.String("model_version", s.model.Version()),
		zap.Int("records", len(result.Probabilities)),
		zap.Float64("threshold", threshold),
		zap.Duration("latency", latency),
		zap.Float64s("probabilities", result.Probabilities))

	s.metrics.ObserveRequest(monitoring.OutcomeOK, latency)
	s.metrics.ObservePredictions(result.Probabilities, result.Predictions, reordered)

	if s.recorder != nil {
		err := s.recorder.SavePredictions(ctx, db.PredictionLog{
			RequestID:     requestID,
			ModelVersion:  s.model.Version(),
			Threshold:     threshold,
			Probabilities: result.Probabilities,
			Predictions:   result.Predictions,
			CreatedAt:     time.Now(),
		})
		if err != nil {
			s.logger.Error("save prediction audit log", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(monitoring.PredictionEvent{
			RequestID:     requestID,
			ModelVersion:  s.model.Version(),
			Records:       len(result.Probabilities),
			Probabilities: result.Probabilities,
			Predictions:   result.Predictions,
			LatencyMS:     float64(latency.Microseconds()) / 1000,
			Timestamp:     time.Now(),
		})
	}
}

func (s *Service) fail(requestID string, err error, latency time.Duration) {
	kind := Classify(err)
	outcome := monitoring.OutcomeInternal
	switch kind {
	case KindInvalidRequest:
		outcome = monitoring.OutcomeInvalidRequest
	case KindSchemaMismatch:
		outcome = monitoring.OutcomeSchemaMismatch
	case KindInvalidThreshold:
		outcome = monitoring.OutcomeThreshold
	case KindUnexpected:
		outcome = monitoring.OutcomeInternal
	}
	s.metrics.ObserveRequest(outcome, latency)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("model_version", s.model.Version()),
		zap.String("kind", kind.String()),
		zap.Duration("latency", latency),
		zap.Error(err),
	}
	if kind == KindUnexpected {
		s.logger.Error("unexpected error during prediction", fields...)
		return
	}
	s.logger.Info("prediction request rejected", fields...)
}
