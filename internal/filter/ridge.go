package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// ErrEmptyImage is returned when a filter receives a nil or zero-area grid.
var ErrEmptyImage = errors.New("filter: empty image")

// ErrInvalidScales is returned for an empty, non-positive or non-ascending
// sigma list.
var ErrInvalidScales = errors.New("filter: invalid scales")

// lambdaFloor bounds the larger eigenvalue away from zero in the blobness
// ratio.
const lambdaFloor = 1e-10

// RidgeParams configures the multi-scale Frangi filter.
type RidgeParams struct {
	// Sigmas are the Gaussian scales, strictly ascending.
	Sigmas []float64 `json:"sigmas" yaml:"sigmas"`

	// Alpha weights plate-like structures. It has no effect on 2D input
	// and is carried so that parameter sets stay portable to 3D.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Beta controls sensitivity to deviation from a line (blobness).
	Beta float64 `json:"beta" yaml:"beta"`

	// Gamma controls sensitivity to structureness. Zero selects half the
	// maximum Hessian norm at the first scale, then keeps it for the rest.
	Gamma float64 `json:"gamma" yaml:"gamma"`

	// BlackRidges detects dark ridges on a bright background when true.
	BlackRidges bool `json:"black_ridges" yaml:"black_ridges"`
}

// DefaultSigmas returns the 23 scales 1.8, 1.9, ..., 4.0.
func DefaultSigmas() []float64 {
	s := make([]float64, 23)
	for i := range s {
		// Computed from integers so each value is the closest float64 to
		// its decimal spelling.
		s[i] = float64(18+i) / 10
	}
	return s
}

// DefaultRidgeParams returns the parameter set used for angiogram vessels.
func DefaultRidgeParams() RidgeParams {
	return RidgeParams{
		Sigmas:      DefaultSigmas(),
		Alpha:       1,
		Beta:        1,
		Gamma:       0.3,
		BlackRidges: true,
	}
}

// Validate checks the scale list and the shape constants.
func (p RidgeParams) Validate() error {
	if len(p.Sigmas) == 0 {
		return fmt.Errorf("%w: no sigmas", ErrInvalidScales)
	}
	for i, s := range p.Sigmas {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: sigma[%d] = %v", ErrInvalidScales, i, s)
		}
		if i > 0 && s <= p.Sigmas[i-1] {
			return fmt.Errorf("%w: sigmas not ascending at index %d", ErrInvalidScales, i)
		}
	}
	if !(p.Beta > 0) {
		return fmt.Errorf("filter: beta must be positive, got %v", p.Beta)
	}
	if p.Gamma < 0 || math.IsNaN(p.Gamma) {
		return fmt.Errorf("filter: gamma must be non-negative, got %v", p.Gamma)
	}
	return nil
}

// Frangi computes the multi-scale vesselness of img. The result has the
// same shape as img, values in [0, 1], and is a pure function of img and p.
func Frangi(img *imaging.Grid, p RidgeParams) (*imaging.Grid, error) {
	if img == nil || img.Empty() {
		return nil, ErrEmptyImage
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	src := img
	if !p.BlackRidges {
		src = img.Clone()
		for i, v := range src.Pix {
			src.Pix[i] = -v
		}
	}

	out := imaging.NewGrid(img.Width, img.Height)
	betaSq := 2 * p.Beta * p.Beta
	l1 := make([]float64, img.Len())
	l2 := make([]float64, img.Len())
	gamma := p.Gamma

	for _, sigma := range p.Sigmas {
		h := hessianAt(src, sigma)

		var maxNorm float64
		for i := range l1 {
			l1[i], l2[i] = eigenvalues2x2(h.rr.Pix[i], h.rc.Pix[i], h.cc.Pix[i])
			if n := math.Hypot(l1[i], l2[i]); n > maxNorm {
				maxNorm = n
			}
		}

		if gamma == 0 {
			gamma = maxNorm / 2
			if gamma == 0 {
				gamma = 1
			}
		}
		gammaSq := 2 * gamma * gamma

		for i := range l1 {
			rb := math.Abs(l1[i]) / math.Max(l2[i], lambdaFloor)
			s2 := l1[i]*l1[i] + l2[i]*l2[i]
			v := math.Exp(-rb*rb/betaSq) * (1 - math.Exp(-s2/gammaSq))
			if v > out.Pix[i] {
				out.Pix[i] = v
			}
		}
	}
	return out, nil
}
