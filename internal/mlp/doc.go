// Package mlp implements the per-pixel vessel classifier: a small fully
// connected network mapping one feature value to a (background, foreground)
// pair of logits, together with its loss, optimiser and persistence.
//
// The network has no spatial context. Callers flatten an H×W feature map to
// (H·W)×1, run Forward, and reshape the (H·W)×2 logits back; ForwardGrid does
// both steps.
//
// Weights are gonum matrices stored out×in so a layer computes x·Wᵀ + b.
// Gradients are computed analytically and accumulated in Param.Grad.
package mlp
