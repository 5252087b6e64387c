// Package report renders diagnostics for segmentation runs: confusion
// overlays, contrast-stretched probability and feature maps, intensity
// histograms before and after filtering, and text or JSON metric summaries.
//
// Overlays mark true positives green, false positives red and false
// negatives blue, blended in CIE Lab over the stretched input so the
// underlying vessel texture stays readable.
package report
