// Package segment is the decision layer: it converts classifier logits into
// foreground probabilities with a per-pixel softmax and binarises them with
// an Otsu threshold computed separately for every image.
//
// Otsu uses a 256-bin histogram over the observed value range and returns a
// bin centre. A map with a single distinct value yields that value as the
// threshold, which makes the strict comparison select no pixels.
package segment
