package ml

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold is the probability cutoff used when none is supplied.
const DefaultThreshold = 0.5

var (
	ErrInvalidThreshold   = errors.New("threshold must be between 0.0 and 1.0")
	ErrDimensionMismatch  = errors.New("feature dimension mismatch")
	ErrInvalidProbability = errors.New("classifier returned invalid probability")
	// ErrNonFiniteFeature means finite input values overflowed during scaling
	// or scoring. It is caused by the input, not by the model.
	ErrNonFiniteFeature = errors.New("feature values overflow after scaling")
)

// RowError ties a scoring failure to the batch row that caused it.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Result holds one probability and one binary prediction per input row.
type Result struct {
	Probabilities []float64
	Predictions   []int
}

func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Predict scales every aligned row, scores it and applies the threshold.
// Ties go to the positive class.
func Predict(batch [][]float64, classifier Classifier, scaler *StandardScaler, threshold float64) (*Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if classifier == nil || scaler == nil {
		return nil, errors.New("classifier and scaler are required")
	}
	if classifier.NumFeatures() != scaler.NumFeatures() {
		return nil, fmt.Errorf("%w: classifier expects %d features, scaler %d",
			ErrDimensionMismatch, classifier.NumFeatures(), scaler.NumFeatures())
	}

	result := &Result{
		Probabilities: make([]float64, len(batch)),
		Predictions:   make([]int, len(batch)),
	}
	for i, row := range batch {
		scaled, err := scaler.Transform(row)
		if err != nil {
			return nil, &RowError{Row: i, Err: err}
		}
		prob, err := classifier.PredictProba(scaled)
		if err != nil {
			return nil, &RowError{Row: i, Err: err}
		}
		if math.IsNaN(prob) || prob < 0 || prob > 1 {
			return nil, &RowError{Row: i, Err: fmt.Errorf("%w: %v", ErrInvalidProbability, prob)}
		}
		result.Probabilities[i] = prob
		result.Predictions[i] = Binarize(prob, threshold)
	}
	return result, nil
}

func Binarize(probability, threshold float64) int {
	if probability >= threshold {
		return 1
	}
	return 0
}
