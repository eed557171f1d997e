package ml

import (
	"errors"
	"fmt"
	"math"
)

// LogisticRegression is a fitted binary logistic regression.
type LogisticRegression struct {
	coefficients []float64
	intercept    float64
}

func NewLogisticRegression(coefficients []float64, intercept float64, numFeatures int) (*LogisticRegression, error) {
	if len(coefficients) == 0 {
		return nil, errors.New("coefficients are empty")
	}
	if len(coefficients) != numFeatures {
		return nil, fmt.Errorf("coefficients length %d does not match %d features", len(coefficients), numFeatures)
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, errors.New("intercept is not finite")
	}
	return &LogisticRegression{
		coefficients: append([]float64(nil), coefficients...),
		intercept:    intercept,
	}, nil
}

func (m *LogisticRegression) NumFeatures() int {
	return len(m.coefficients)
}

func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(features) != len(m.coefficients) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrDimensionMismatch, len(features), len(m.coefficients))
	}
	z := m.intercept
	for i, x := range features {
		z += m.coefficients[i] * x
	}
	// opposite infinities in the sum
	if math.IsNaN(z) {
		return 0, ErrNonFiniteFeature
	}
	return sigmoid(z), nil
}

// sigmoid avoids overflow of exp for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
