// Package dataset reads DCA1-style angiogram directories.
//
// A directory holds raw angiograms and their hand-labelled vessel masks side
// by side; the mask of "12.pgm" is "12_gt.pgm". Any format understood by the
// imaging package may be used. Ground-truth pixels brighter than 127 are
// vessel.
//
// Each sample carries the raw image, the binarised ground truth and the
// output of the feature pipeline. Augmentation doubles the dataset with
// vertically flipped copies; the flip is applied to the raw image and its
// ground truth before the pipeline runs.
package dataset
