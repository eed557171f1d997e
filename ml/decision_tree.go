package ml

import (
	"errors"
	"fmt"
	"math"
)

// DecisionTree is a fitted binary tree stored as a pre-order node array.
// Each leaf carries the positive-class probability observed at training time.
type DecisionTree struct {
	nodes       []TreeNode
	numFeatures int
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	Probability float64 `json:"probability"`
	IsLeaf      bool    `json:"is_leaf"`
}

func NewDecisionTree(nodes []TreeNode, numFeatures int) (*DecisionTree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if math.IsNaN(node.Probability) || node.Probability < 0 || node.Probability > 1 {
				return nil, fmt.Errorf("leaf %d probability %v outside [0,1]", i, node.Probability)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return nil, fmt.Errorf("node %d feature index %d out of range", i, node.FeatureIdx)
		}
		if math.IsNaN(node.Threshold) {
			return nil, fmt.Errorf("node %d threshold is NaN", i)
		}
		// children must come after their parent, which also rules out cycles
		if node.LeftChild <= i || node.LeftChild >= len(nodes) {
			return nil, fmt.Errorf("node %d left child %d invalid", i, node.LeftChild)
		}
		if node.RightChild <= i || node.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d right child %d invalid", i, node.RightChild)
		}
	}
	return &DecisionTree{
		nodes:       append([]TreeNode(nil), nodes...),
		numFeatures: numFeatures,
	}, nil
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.numFeatures
}

func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	if len(features) != dt.numFeatures {
		return 0, fmt.Errorf("%w: got %d values, tree expects %d", ErrDimensionMismatch, len(features), dt.numFeatures)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Probability, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	return dt.depth(0)
}

func (dt *DecisionTree) depth(idx int) int {
	node := dt.nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := dt.depth(node.LeftChild)
	right := dt.depth(node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}
