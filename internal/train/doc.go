// Package train drives k-fold cross-validation of the pixel classifier.
//
// Whole images, not pixels, are split into folds: the dataset indices are
// shuffled with a fixed seed and cut into k validation blocks. With
// augmentation on, an image and its flipped copy are separate indices and
// may land in different folds.
//
// Every fold trains a fresh network with Adam on minibatches of images; a
// minibatch contributes every one of its pixels as an independent sample and
// its loss is the mean over all of them. Validation loss is reported after
// each epoch and the final weights are saved per fold.
//
// Randomness (fold split, weight initialisation, batch order) comes only
// from the Exec seed, so a run is reproducible.
package train
