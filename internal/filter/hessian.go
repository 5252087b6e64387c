package filter

import (
	"math"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// truncate is the kernel half-width in units of sigma.
const truncate = 4.0

// gaussianKernels returns the sampled, normalised Gaussian of the given sigma
// together with its first and second derivatives, all of radius
// int(truncate*sigma + 0.5).
//
// The derivative kernels are the analytic derivatives of the normalised
// Gaussian:
//
//	g1(x) = -x/σ² · g0(x)
//	g2(x) = (x²/σ⁴ - 1/σ²) · g0(x)
func gaussianKernels(sigma float64) (g0, g1, g2 []float64, radius int) {
	radius = int(truncate*sigma + 0.5)
	size := 2*radius + 1
	g0 = make([]float64, size)
	g1 = make([]float64, size)
	g2 = make([]float64, size)

	s2 := sigma * sigma
	var sum float64
	for i := 0; i < size; i++ {
		x := float64(i - radius)
		g0[i] = math.Exp(-x * x / (2 * s2))
		sum += g0[i]
	}
	for i := 0; i < size; i++ {
		x := float64(i - radius)
		g0[i] /= sum
		g1[i] = -x / s2 * g0[i]
		g2[i] = (x*x/(s2*s2) - 1/s2) * g0[i]
	}
	return g0, g1, g2, radius
}

// reflectIndex maps an out-of-range coordinate into [0, n) using half-sample
// symmetric reflection (d c b a | a b c d | d c b a). The pattern repeats with
// period 2n, so kernels wider than the image are handled as well.
func reflectIndex(i, n int) int {
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// reflectTable precomputes reflectIndex(p+j, n) for p in [0, n) and
// j in [-radius, radius]; entry p*(2*radius+1) + j + radius.
func reflectTable(n, radius int) []int {
	size := 2*radius + 1
	table := make([]int, n*size)
	for p := 0; p < n; p++ {
		for j := -radius; j <= radius; j++ {
			table[p*size+j+radius] = reflectIndex(p+j, n)
		}
	}
	return table
}

// correlateRows applies kernel k along the vertical (row index) axis.
func correlateRows(src *imaging.Grid, k []float64, radius int, table []int) *imaging.Grid {
	w, h := src.Width, src.Height
	size := 2*radius + 1
	dst := imaging.NewGrid(w, h)
	for y := 0; y < h; y++ {
		taps := table[y*size : (y+1)*size]
		row := dst.Pix[y*w : (y+1)*w]
		for j, sy := range taps {
			kv := k[j]
			if kv == 0 {
				continue
			}
			srcRow := src.Pix[sy*w : (sy+1)*w]
			for x := 0; x < w; x++ {
				row[x] += kv * srcRow[x]
			}
		}
	}
	return dst
}

// correlateCols applies kernel k along the horizontal (column index) axis.
func correlateCols(src *imaging.Grid, k []float64, radius int, table []int) *imaging.Grid {
	w, h := src.Width, src.Height
	size := 2*radius + 1
	dst := imaging.NewGrid(w, h)
	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*w : (y+1)*w]
		row := dst.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			taps := table[x*size : (x+1)*size]
			var sum float64
			for j, sx := range taps {
				sum += k[j] * srcRow[sx]
			}
			row[x] = sum
		}
	}
	return dst
}

// hessian holds the three distinct entries of the 2×2 Hessian per pixel:
// rr = ∂²/∂y², rc = ∂²/∂y∂x, cc = ∂²/∂x².
type hessian struct {
	rr, rc, cc *imaging.Grid
}

// hessianAt computes the scale-normalised (σ²) Hessian of img with separable
// Gaussian-derivative kernels.
func hessianAt(img *imaging.Grid, sigma float64) hessian {
	g0, g1, g2, radius := gaussianKernels(sigma)
	rowTable := reflectTable(img.Height, radius)
	colTable := reflectTable(img.Width, radius)

	v0 := correlateRows(img, g0, radius, rowTable)
	v1 := correlateRows(img, g1, radius, rowTable)
	v2 := correlateRows(img, g2, radius, rowTable)

	h := hessian{
		rr: correlateCols(v2, g0, radius, colTable),
		rc: correlateCols(v1, g1, radius, colTable),
		cc: correlateCols(v0, g2, radius, colTable),
	}

	s2 := sigma * sigma
	for _, g := range []*imaging.Grid{h.rr, h.rc, h.cc} {
		for i := range g.Pix {
			g.Pix[i] *= s2
		}
	}
	return h
}

// eigenvalues2x2 returns the eigenvalues of the symmetric matrix
// [[a, b], [b, c]] ordered by absolute value, |l1| <= |l2|.
func eigenvalues2x2(a, b, c float64) (l1, l2 float64) {
	tmp := math.Sqrt((a-c)*(a-c) + 4*b*b)
	e1 := (a + c + tmp) / 2
	e2 := (a + c - tmp) / 2
	if math.Abs(e1) > math.Abs(e2) {
		return e2, e1
	}
	return e1, e2
}
