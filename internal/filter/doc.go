// Package filter implements the hand-crafted feature stage of the vessel
// segmenter: a multi-scale Frangi ridge filter and small-object pruning.
//
// # Ridge Filter
//
// For every scale σ the Hessian is computed with separable sampled Gaussian
// derivative kernels truncated at 4σ and multiplied by σ² for scale
// normalisation. With eigenvalues ordered |λ1| ≤ |λ2|, the response is
//
//	Rb = |λ1| / max(λ2, 1e-10)
//	S  = sqrt(λ1² + λ2²)
//	v  = exp(-Rb²/2β²) · (1 - exp(-S²/2γ²))
//
// and the final vesselness is the maximum of v over all scales. Negative λ2
// (bright ridges when looking for dark ones) drives Rb to a huge value and v
// to zero.
//
// Borders use half-sample symmetric reflection (d c b a | a b c d | d c b a)
// for every kernel.
//
// # Pruning
//
// The vesselness map is thresholded (strictly greater than the threshold),
// connected components are labelled and those smaller than the minimum size
// are dropped. The feature map is the vesselness masked by what remains.
//
// All functions are pure: they never mutate their inputs and return
// identical output for identical input.
package filter
