package metrics

import (
	"fmt"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Confusion holds pixel-level confusion counts.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Compare counts agreement between a predicted and a ground-truth mask.
func Compare(pred, truth *imaging.Mask) (Confusion, error) {
	var c Confusion
	if pred.Width != truth.Width || pred.Height != truth.Height {
		return c, fmt.Errorf("prediction %dx%d vs truth %dx%d: %w",
			pred.Width, pred.Height, truth.Width, truth.Height, imaging.ErrShapeMismatch)
	}
	for i, p := range pred.Pix {
		switch t := truth.Pix[i]; {
		case p && t:
			c.TP++
		case p && !t:
			c.FP++
		case !p && t:
			c.FN++
		default:
			c.TN++
		}
	}
	return c, nil
}

// Add accumulates o into c.
func (c *Confusion) Add(o Confusion) {
	c.TP += o.TP
	c.FP += o.FP
	c.TN += o.TN
	c.FN += o.FN
}

// Total returns the number of pixels counted.
func (c Confusion) Total() int {
	return c.TP + c.FP + c.TN + c.FN
}

// Scores are the overlap metrics derived from a Confusion.
type Scores struct {
	Dice        float64 `json:"dice"`
	Sensitivity float64 `json:"sensitivity"`
	Specificity float64 `json:"specificity"`
	Precision   float64 `json:"precision"`
	IoU         float64 `json:"iou"`
}

// ratio returns num/den, or fallback when den is zero.
func ratio(num, den int, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	return float64(num) / float64(den)
}

// Scores derives the overlap metrics. Empty denominators fall back to 1 for
// Dice and IoU (nothing to find and nothing found) and to 0 for the others.
func (c Confusion) Scores() Scores {
	return Scores{
		Dice:        ratio(2*c.TP, 2*c.TP+c.FP+c.FN, 1),
		Sensitivity: ratio(c.TP, c.TP+c.FN, 0),
		Specificity: ratio(c.TN, c.TN+c.FP, 0),
		Precision:   ratio(c.TP, c.TP+c.FP, 0),
		IoU:         ratio(c.TP, c.TP+c.FP+c.FN, 1),
	}
}
