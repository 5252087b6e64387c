package mlp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// WeightedBCE is binary cross-entropy on logits applied independently to
// both output channels, with positive examples weighted by
// ForegroundWeight/BackgroundWeight. Class imbalance (vessels cover a small
// fraction of the image) is compensated this way.
type WeightedBCE struct {
	BackgroundWeight float64 `json:"background_weight" yaml:"background_weight"`
	ForegroundWeight float64 `json:"foreground_weight" yaml:"foreground_weight"`
}

// DefaultLoss returns the 0.2 / 0.8 weighting (positive weight 4).
func DefaultLoss() WeightedBCE {
	return WeightedBCE{BackgroundWeight: 0.2, ForegroundWeight: 0.8}
}

// PosWeight is the multiplier applied to the positive term of every element.
func (l WeightedBCE) PosWeight() float64 {
	return l.ForegroundWeight / l.BackgroundWeight
}

// Validate rejects non-positive weights.
func (l WeightedBCE) Validate() error {
	if !(l.BackgroundWeight > 0) || !(l.ForegroundWeight > 0) {
		return fmt.Errorf("mlp: class weights must be positive, got %v/%v", l.BackgroundWeight, l.ForegroundWeight)
	}
	return nil
}

// softplus computes log(1 + e^x) without overflow.
func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func checkPair(logits, targets mat.Matrix) (int, int, error) {
	r, c := logits.Dims()
	tr, tc := targets.Dims()
	if r != tr || c != tc || c != OutputSize || r == 0 {
		return 0, 0, fmt.Errorf("logits %dx%d vs targets %dx%d: %w", r, c, tr, tc, ErrShape)
	}
	return r, c, nil
}

// Loss returns the mean weighted BCE over all N×2 elements.
func (l WeightedBCE) Loss(logits, targets mat.Matrix) (float64, error) {
	r, c, err := checkPair(logits, targets)
	if err != nil {
		return 0, err
	}
	pw := l.PosWeight()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x, y := logits.At(i, j), targets.At(i, j)
			sum += pw*y*softplus(-x) + (1-y)*softplus(x)
		}
	}
	return sum / float64(r*c), nil
}

// Gradient returns the loss and its derivative with respect to the logits.
func (l WeightedBCE) Gradient(logits, targets mat.Matrix) (float64, *mat.Dense, error) {
	r, c, err := checkPair(logits, targets)
	if err != nil {
		return 0, nil, err
	}
	pw := l.PosWeight()
	n := float64(r * c)
	grad := mat.NewDense(r, c, nil)
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x, y := logits.At(i, j), targets.At(i, j)
			sum += pw*y*softplus(-x) + (1-y)*softplus(x)
			s := sigmoid(x)
			grad.Set(i, j, (-pw*y*(1-s)+(1-y)*s)/n)
		}
	}
	return sum / n, grad, nil
}
