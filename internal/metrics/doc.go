// Package metrics evaluates binary vessel masks against ground truth.
//
// Overlap scores come from pixel confusion counts with fixed fallbacks for
// empty denominators: Dice and IoU are 1 when neither mask has foreground,
// sensitivity, specificity and precision are 0 when undefined.
//
// ROC curves and AUROC are computed from foreground probabilities with
// gonum's stat.ROC and integrate.Trapezoidal. A ground truth with a single
// class has no ROC curve; its AUROC is NaN and is excluded when results are
// aggregated. SNR (mean over standard deviation of the probabilities of the
// predicted foreground) is NaN for an empty prediction or constant values.
//
// Undefined metrics are carried as Value, which encodes NaN as JSON null.
package metrics
