package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// constantSpread is the relative spread below which values count as constant.
const constantSpread = 1e-12

// SNR is the mean over the population standard deviation of the
// probabilities selected by mask. It is NaN when the mask is empty or the
// selected values are constant.
func SNR(probs *imaging.Grid, mask *imaging.Mask) (float64, error) {
	if probs.Width != mask.Width || probs.Height != mask.Height {
		return math.NaN(), fmt.Errorf("probabilities %dx%d vs mask %dx%d: %w",
			probs.Width, probs.Height, mask.Width, mask.Height, imaging.ErrShapeMismatch)
	}
	var sel []float64
	for i, on := range mask.Pix {
		if on {
			sel = append(sel, probs.Pix[i])
		}
	}
	if len(sel) == 0 {
		return math.NaN(), nil
	}
	mean, std := stat.PopMeanStdDev(sel, nil)
	// Rounding in the mean can leave a tiny residual spread on constant input.
	if std <= constantSpread*math.Abs(mean) {
		return math.NaN(), nil
	}
	return mean / std, nil
}
