package report

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Default percentile window for contrast stretching.
const (
	LowPercentile  = 0.05
	HighPercentile = 0.95
)

// PercentileRange returns the lo and hi empirical quantiles (fractions in
// [0,1]) of the finite values of g. It returns (NaN, NaN) when g has none.
func PercentileRange(g *imaging.Grid, lo, hi float64) (float64, float64) {
	sorted := make([]float64, 0, len(g.Pix))
	for _, v := range g.Pix {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(sorted)
	return stat.Quantile(lo, stat.Empirical, sorted, nil), stat.Quantile(hi, stat.Empirical, sorted, nil)
}

// Stretch renders g as 8-bit gray with the 5th percentile mapped to black
// and the 95th to white. Maps dominated by one value, such as pruned feature
// maps that are zero almost everywhere, fall back to the full range.
func Stretch(g *imaging.Grid) *image.Gray {
	lo, hi := PercentileRange(g, LowPercentile, HighPercentile)
	if !(hi > lo) {
		lo, hi = g.MinMax()
	}
	return g.ToGray(lo, hi)
}
