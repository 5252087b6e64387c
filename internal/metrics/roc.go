package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Curve is a receiver operating characteristic with FPR ascending.
type Curve struct {
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	Thresholds []float64 `json:"thresholds"`
}

// ROC computes the curve of scores against binary truth. Every distinct
// score is a cutoff. It returns a nil curve when truth holds a single class.
func ROC(scores []float64, truth []bool) (*Curve, error) {
	if len(scores) != len(truth) {
		return nil, fmt.Errorf("%d scores vs %d labels: %w", len(scores), len(truth), imaging.ErrShapeMismatch)
	}
	var pos int
	for _, t := range truth {
		if t {
			pos++
		}
	}
	if pos == 0 || pos == len(truth) {
		return nil, nil
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(truth))
	copy(classes, truth)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)
	return &Curve{FPR: fpr, TPR: tpr, Thresholds: thresh}, nil
}

// AUC integrates the curve with the trapezoidal rule.
func (c *Curve) AUC() float64 {
	if c == nil || len(c.FPR) < 2 {
		return math.NaN()
	}
	return integrate.Trapezoidal(c.FPR, c.TPR)
}

// AUROC is the area under the ROC curve of scores against truth. It is NaN
// when truth holds a single class.
func AUROC(scores []float64, truth []bool) (float64, error) {
	c, err := ROC(scores, truth)
	if err != nil {
		return math.NaN(), err
	}
	return c.AUC(), nil
}
