package segment

import (
	"math"
)

// Bins is the histogram resolution used by Otsu.
const Bins = 256

// histogram bins values into n equal-width bins spanning [lo, hi]. The last
// bin is closed on the right. Bin membership is corrected against the
// explicit edges so values sitting on an edge fall in the upper bin.
func histogram(values []float64, lo, hi float64, n int) (counts, centres []float64) {
	edges := make([]float64, n+1)
	step := (hi - lo) / float64(n)
	for i := 0; i < n; i++ {
		edges[i] = lo + float64(i)*step
	}
	edges[n] = hi

	counts = make([]float64, n)
	norm := float64(n) / (hi - lo)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		idx := int((v - lo) * norm)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		if v < edges[idx] && idx > 0 {
			idx--
		} else if idx < n-1 && v >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	centres = make([]float64, n)
	for i := range centres {
		centres[i] = (edges[i] + edges[i+1]) / 2
	}
	return counts, centres
}

// Otsu returns the threshold that maximises the between-class variance of a
// 256-bin histogram of values. The threshold is a bin centre; callers
// binarise with value > threshold. When every value is identical that value
// is returned, so the resulting mask is empty. NaN entries are ignored and an
// input with no finite values yields NaN.
func Otsu(values []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return math.NaN()
	}
	if lo == hi {
		return lo
	}

	counts, centres := histogram(values, lo, hi, Bins)

	// Cumulative class weights and means from both ends.
	w1 := make([]float64, Bins)
	m1 := make([]float64, Bins)
	var cw, cm float64
	for i := 0; i < Bins; i++ {
		cw += counts[i]
		cm += counts[i] * centres[i]
		w1[i] = cw
		m1[i] = cm / cw
	}
	w2 := make([]float64, Bins)
	m2 := make([]float64, Bins)
	cw, cm = 0, 0
	for i := Bins - 1; i >= 0; i-- {
		cw += counts[i]
		cm += counts[i] * centres[i]
		w2[i] = cw
		m2[i] = cm / cw
	}

	// The minimum falls in the first bin and the maximum in the last, so
	// w1[i] and w2[i+1] are never zero below.
	best, bestVar := 0, math.Inf(-1)
	for i := 0; i < Bins-1; i++ {
		d := m1[i] - m2[i+1]
		v := w1[i] * w2[i+1] * d * d
		if v > bestVar {
			best, bestVar = i, v
		}
	}
	return centres[best]
}
