package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/floodsense-service/internal/domain"
)

// Classifier kinds understood by LoadClassifier.
const (
	KindLogistic = "logistic"
	KindForest   = "forest"
)

type classifierFile struct {
	Kind     string         `json:"kind"`
	Features []string       `json:"features,omitempty"`
	Logistic *LogisticModel `json:"logistic,omitempty"`
	Forest   *ForestModel   `json:"forest,omitempty"`
}

// LoadClassifier decodes the classifier stored at path.
func LoadClassifier(path string) (*domain.ModelArtifact, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc classifierFile
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, loadError(path, fmt.Errorf("decode classifier: %w", err))
	}

	var (
		clf   domain.Classifier
		width int
	)
	switch doc.Kind {
	case KindLogistic:
		if doc.Logistic == nil {
			return nil, loadError(path, errors.New("logistic parameters missing"))
		}
		if err := doc.Logistic.validate(); err != nil {
			return nil, loadError(path, err)
		}
		clf, width = doc.Logistic, len(doc.Logistic.Weights)
	case KindForest:
		if doc.Forest == nil {
			return nil, loadError(path, errors.New("forest parameters missing"))
		}
		if err := doc.Forest.validate(); err != nil {
			return nil, loadError(path, err)
		}
		clf, width = doc.Forest, doc.Forest.FeatureSize
	default:
		return nil, loadError(path, fmt.Errorf("unsupported classifier kind %q", doc.Kind))
	}

	if len(doc.Features) > 0 && len(doc.Features) != width {
		return nil, loadError(path, fmt.Errorf("%d feature names for %d model inputs", len(doc.Features), width))
	}

	return &domain.ModelArtifact{
		Path:        path,
		Kind:        doc.Kind,
		Features:    doc.Features,
		InputShape:  []int{-1, width},
		OutputShape: []int{-1, 1},
		Classifier:  clf,
	}, nil
}

// LogisticModel scores sigmoid(w·x + b).
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *LogisticModel) validate() error {
	if len(m.Weights) == 0 {
		return errors.New("logistic model has no weights")
	}
	return nil
}

// Predict implements domain.Classifier.
func (m *LogisticModel) Predict(ctx context.Context, rows [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(rows))
	for i, x := range rows {
		if len(x) != len(m.Weights) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(x), len(m.Weights))
		}
		z := m.Bias
		for j, w := range m.Weights {
			z += w * x[j]
		}
		scores[i] = sigmoid(z)
	}
	return scores, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// A Node is a split "x[FeatureIndex] < Threshold ?" in a decision tree.
// Child indexes point into the tree's Nodes, or into Outputs for leaves.
type Node struct {
	FeatureIndex int     `json:"feature_index"`
	Threshold    float64 `json:"threshold"`
	LeftChild    int     `json:"left_child"`
	LeftIsLeaf   bool    `json:"left_is_leaf"`
	RightChild   int     `json:"right_child"`
	RightIsLeaf  bool    `json:"right_is_leaf"`
}

// Tree is a flat decision tree whose leaves hold the probability of a flood.
type Tree struct {
	Nodes   []Node    `json:"nodes"`
	Outputs []float64 `json:"outputs"`
}

// ForestModel averages the leaf outputs of its trees.
type ForestModel struct {
	Trees       []Tree `json:"trees"`
	FeatureSize int    `json:"feature_size"`
}

func (m *ForestModel) validate() error {
	if len(m.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if m.FeatureSize <= 0 {
		return errors.New("forest feature_size must be positive")
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.FeatureIndex < 0 || n.FeatureIndex >= m.FeatureSize {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.FeatureIndex)
			}
			if err := checkChild(t, n.LeftChild, n.LeftIsLeaf); err != nil {
				return fmt.Errorf("tree %d node %d left: %w", ti, ni, err)
			}
			if err := checkChild(t, n.RightChild, n.RightIsLeaf); err != nil {
				return fmt.Errorf("tree %d node %d right: %w", ti, ni, err)
			}
		}
	}
	return nil
}

func checkChild(t Tree, idx int, leaf bool) error {
	limit := len(t.Nodes)
	if leaf {
		limit = len(t.Outputs)
	}
	if idx < 0 || idx >= limit {
		return fmt.Errorf("child index %d out of range", idx)
	}
	return nil
}

// Predict implements domain.Classifier.
func (m *ForestModel) Predict(ctx context.Context, rows [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(rows))
	for i, x := range rows {
		if len(x) != m.FeatureSize {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(x), m.FeatureSize)
		}
		var sum float64
		for ti := range m.Trees {
			out, err := m.Trees[ti].evaluate(x)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", ti, err)
			}
			sum += out
		}
		scores[i] = sum / float64(len(m.Trees))
	}
	return scores, nil
}

// evaluate drops x down the tree. The step bound catches cycles in
// malformed node lists.
func (t *Tree) evaluate(x []float64) (float64, error) {
	cur := t.Nodes[0]
	for step := 0; step <= len(t.Nodes); step++ {
		if x[cur.FeatureIndex] < cur.Threshold {
			if cur.LeftIsLeaf {
				return t.Outputs[cur.LeftChild], nil
			}
			cur = t.Nodes[cur.LeftChild]
		} else {
			if cur.RightIsLeaf {
				return t.Outputs[cur.RightChild], nil
			}
			cur = t.Nodes[cur.RightChild]
		}
	}
	return 0, errors.New("tree traversal did not terminate")
}
