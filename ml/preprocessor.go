package ml

import (
	"errors"
	"fmt"
	"math"
)

// StandardScaler holds the per-feature centers and scales fitted at training
// time. It is never refit while serving.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Validate checks the scaler against the number of model features.
func (s *StandardScaler) Validate(numFeatures int) error {
	if s == nil {
		return errors.New("scaler is nil")
	}
	if len(s.Mean) != numFeatures {
		return fmt.Errorf("scaler mean length %d does not match %d features", len(s.Mean), numFeatures)
	}
	if len(s.Scale) != numFeatures {
		return fmt.Errorf("scaler scale length %d does not match %d features", len(s.Scale), numFeatures)
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) {
			return fmt.Errorf("scaler mean %d is not finite", i)
		}
		if s.Scale[i] == 0 || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scaler scale %d must be finite and non-zero", i)
		}
	}
	return nil
}

func (s *StandardScaler) NumFeatures() int {
	return len(s.Mean)
}

// Transform standardizes one aligned vector into a new slice.
func (s *StandardScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, scaler expects %d", ErrDimensionMismatch, len(values), len(s.Mean))
	}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = (v - s.Mean[i]) / s.Scale[i]
		if math.IsNaN(scaled[i]) || math.IsInf(scaled[i], 0) {
			return nil, fmt.Errorf("%w: feature %d", ErrNonFiniteFeature, i)
		}
	}
	return scaled, nil
}

// Clone returns a deep copy so that callers cannot mutate shared state.
func (s *StandardScaler) Clone() *StandardScaler {
	return &StandardScaler{
		Mean:  append([]float64(nil), s.Mean...),
		Scale: append([]float64(nil), s.Scale...),
	}
}
