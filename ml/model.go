package ml

// Classifier scores a scaled feature vector with the probability of the
// positive (churn) class.
type Classifier interface {
	PredictProba(features []float64) (float64, error)
	NumFeatures() int
}

// ModelSpec is the serialized form of a classifier inside an artifact bundle.
type ModelSpec struct {
	Type         string     `json:"type"`
	Coefficients []float64  `json:"coefficients,omitempty"`
	Intercept    float64    `json:"intercept,omitempty"`
	Nodes        []TreeNode `json:"nodes,omitempty"`
}

const (
	ModelTypeLogisticRegression = "logistic_regression"
	ModelTypeDecisionTree       = "decision_tree"
)
