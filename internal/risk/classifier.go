package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/BradenHooton/riskgate/internal/models"
)

// Classifier answers whether a combination of drift looks like an account
// takeover. Implementations must be deterministic and safe for concurrent use.
type Classifier interface {
	Predict(f Features) (bool, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface
type ClassifierFunc func(f Features) (bool, error)

// Predict calls fn(f)
func (fn ClassifierFunc) Predict(f Features) (bool, error) {
	return fn(f)
}

// unavailableClassifier stands in when no model could be loaded, so every
// evaluation fails closed.
type unavailableClassifier struct {
	reason error
}

// Unavailable returns a Classifier whose every prediction fails with
// ErrClassifierUnavailable wrapping reason.
func Unavailable(reason error) Classifier {
	return unavailableClassifier{reason: reason}
}

func (u unavailableClassifier) Predict(Features) (bool, error) {
	if u.reason == nil {
		return false, models.ErrClassifierUnavailable
	}
	return false, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, u.reason)
}

// FeatureCount is the width of the classifier input
const FeatureCount = 4

// Estimator kinds understood by the artifact loader
const (
	KindBoosted = "boosted" // gradient-boosted trees: sigmoid(base_margin + sum of leaves), splits on x < threshold
	KindForest  = "forest"  // random forest: mean of leaf probabilities, splits on x <= threshold
)

// TreeNode is one node of a decision tree. Leaves carry Value; internal nodes
// route to Left or Right by comparing input[Feature] with Threshold.
type TreeNode struct {
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
}

// Estimator is one voter of the ensemble
type Estimator struct {
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	Weight     float64      `json:"weight"`
	BaseMargin float64      `json:"base_margin"`
	Trees      [][]TreeNode `json:"trees"`
}

// Ensemble is a soft-voting classifier: the weighted mean of each estimator's
// probability of the takeover class, admitted as positive above one half.
// It is immutable once loaded.
type Ensemble struct {
	Features   []string    `json:"features"`
	Estimators []Estimator `json:"estimators"`
}

// LoadClassifier reads and validates an ensemble artifact. Errors wrap
// ErrClassifierUnavailable.
func LoadClassifier(path string) (*Ensemble, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no model path configured", models.ErrClassifierUnavailable)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
	}

	var e Ensemble
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrClassifierUnavailable, path, err)
	}
	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
	}

	return &e, nil
}

func (e *Ensemble) validate() error {
	if len(e.Features) != 0 && len(e.Features) != FeatureCount {
		return fmt.Errorf("model expects %d features, want %d", len(e.Features), FeatureCount)
	}
	if len(e.Estimators) == 0 {
		return fmt.Errorf("model has no estimators")
	}

	var totalWeight float64
	for i := range e.Estimators {
		est := &e.Estimators[i]
		if est.Kind != KindBoosted && est.Kind != KindForest {
			return fmt.Errorf("estimator %q: unknown kind %q", est.Name, est.Kind)
		}
		if est.Weight == 0 {
			est.Weight = 1
		}
		if est.Weight < 0 {
			return fmt.Errorf("estimator %q: negative weight", est.Name)
		}
		totalWeight += est.Weight
		if len(est.Trees) == 0 {
			return fmt.Errorf("estimator %q: no trees", est.Name)
		}
		for t, tree := range est.Trees {
			if err := validateTree(tree); err != nil {
				return fmt.Errorf("estimator %q tree %d: %w", est.Name, t, err)
			}
		}
	}
	if totalWeight == 0 {
		return fmt.Errorf("estimator weights sum to zero")
	}
	return nil
}

// validateTree requires a non-empty tree whose children always sit after
// their parent, which rules out cycles.
func validateTree(tree []TreeNode) error {
	if len(tree) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range tree {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= FeatureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(tree) || n.Right <= i || n.Right >= len(tree) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// Predict returns true when the ensemble votes for the takeover class
func (e *Ensemble) Predict(f Features) (bool, error) {
	return e.Probability(f) > 0.5, nil
}

// Probability returns the weighted soft-vote probability of the takeover class
func (e *Ensemble) Probability(f Features) float64 {
	x := f.Vector()

	var sum, weights float64
	for i := range e.Estimators {
		est := &e.Estimators[i]
		sum += est.Weight * est.probability(x)
		weights += est.Weight
	}
	return sum / weights
}

func (est *Estimator) probability(x []float64) float64 {
	switch est.Kind {
	case KindBoosted:
		margin := est.BaseMargin
		for _, tree := range est.Trees {
			margin += walk(tree, x, func(v, t float64) bool { return v < t })
		}
		return 1 / (1 + math.Exp(-margin))
	default:
		var sum float64
		for _, tree := range est.Trees {
			sum += walk(tree, x, func(v, t float64) bool { return v <= t })
		}
		return sum / float64(len(est.Trees))
	}
}

func walk(tree []TreeNode, x []float64, goLeft func(v, threshold float64) bool) float64 {
	i := 0
	for !tree[i].Leaf {
		n := tree[i]
		if goLeft(x[n.Feature], n.Threshold) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return tree[i].Value
}
