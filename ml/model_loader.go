package ml

import (
	"fmt"
)

// NewClassifier builds the classifier described by spec for a model trained
// on numFeatures columns.
func NewClassifier(spec ModelSpec, numFeatures int) (Classifier, error) {
	switch spec.Type {
	case ModelTypeLogisticRegression:
		return NewLogisticRegression(spec.Coefficients, spec.Intercept, numFeatures)
	case ModelTypeDecisionTree:
		return NewDecisionTree(spec.Nodes, numFeatures)
	case "":
		return nil, fmt.Errorf("model type is required")
	default:
		return nil, fmt.Errorf("unsupported model type %q", spec.Type)
	}
}
