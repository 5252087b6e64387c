// Package imaging provides the 2D data types and image I/O shared by the
// vessel segmentation pipeline.
//
// The package defines three dense, row-major containers:
//
//   - Grid: one float64 per pixel (raw intensities, vesselness, features,
//     foreground probabilities)
//   - Mask: one bool per pixel (threshold masks, object masks, predictions,
//     binarised ground truth)
//   - ClassMap: a (background, foreground) pair per pixel (logits,
//     probabilities, one-hot ground truth)
//
// # Reshaping Contract
//
// The per-pixel classifier has no notion of neighbourhood. Converting between
// an H×W map and a flat list of H·W independent samples is done explicitly:
//
//	Grid.Flatten / Grid.Column      H×W      -> (H·W) values / (H·W)×1 matrix
//	Unflatten                       (H·W)    -> H×W
//	ClassMapFromMatrix              (H·W)×2  -> H×W×2
//	ClassMap.Matrix                 H×W×2    -> (H·W)×2
//
// Pixel (x, y) always maps to flat index y*Width+x.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Grids, masks and class maps
// are plain values; functions in this package never mutate their inputs.
//
// # Supported Formats
//
// PNG, JPEG and GIF through the standard library, BMP and TIFF through
// golang.org/x/image, and PGM/PPM/PBM/PAM through github.com/spakin/netpbm.
// Output is always PNG.
package imaging
