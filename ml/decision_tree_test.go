package ml

import "testing"

func sampleTree(t *testing.T) *DecisionTree {
	t.Helper()
	nodes := []TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{IsLeaf: true, Probability: 0.1},
		{FeatureIdx: 1, Threshold: 0, LeftChild: 3, RightChild: 4},
		{IsLeaf: true, Probability: 0.4},
		{IsLeaf: true, Probability: 0.9},
	}
	tree, err := NewDecisionTree(nodes, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func TestDecisionTreePredictProba(t *testing.T) {
	tree := sampleTree(t)
	cases := []struct {
		features []float64
		want     float64
	}{
		{[]float64{0.2, 5}, 0.1},
		{[]float64{0.5, 5}, 0.1},
		{[]float64{0.9, -1}, 0.4},
		{[]float64{0.9, 1}, 0.9},
	}
	for _, tc := range cases {
		got, err := tree.PredictProba(tc.features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("features %v: expected %v, got %v", tc.features, tc.want, got)
		}
	}
	if tree.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", tree.Depth())
	}
}

func TestDecisionTreeRejectsMalformedNodes(t *testing.T) {
	cases := map[string][]TreeNode{
		"empty":             nil,
		"feature range":     {{FeatureIdx: 3, LeftChild: 1, RightChild: 2}, {IsLeaf: true}, {IsLeaf: true}},
		"backward child":    {{FeatureIdx: 0, LeftChild: 0, RightChild: 1}, {IsLeaf: true}},
		"child out of tree": {{FeatureIdx: 0, LeftChild: 1, RightChild: 9}, {IsLeaf: true}},
		"leaf probability":  {{IsLeaf: true, Probability: 1.2}},
	}
	for name, nodes := range cases {
		if _, err := NewDecisionTree(nodes, 2); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
