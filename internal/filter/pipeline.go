package filter

import (
	"fmt"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Pipeline turns a raw grayscale image into the single-channel feature map
// consumed by the pixel classifier: Frangi vesselness followed by small-object
// pruning. It behaves identically in training and inference.
type Pipeline struct {
	Ridge RidgeParams `json:"ridge" yaml:"ridge"`
	Prune PruneParams `json:"prune" yaml:"prune"`
}

// DefaultPipeline returns the pipeline with default ridge and prune
// parameters.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Ridge: DefaultRidgeParams(),
		Prune: DefaultPruneParams(),
	}
}

// Features is the output of Pipeline.Apply.
type Features struct {
	// Feature is the pruned vesselness map fed to the classifier.
	Feature *imaging.Grid

	// Vesselness is the raw multi-scale Frangi response.
	Vesselness *imaging.Grid

	ThresholdMask *imaging.Mask
	ObjectMask    *imaging.Mask
}

// Validate checks both parameter sets.
func (p Pipeline) Validate() error {
	if err := p.Ridge.Validate(); err != nil {
		return err
	}
	return p.Prune.Validate()
}

// Apply runs the pipeline on img. Raw intensities are used as-is (0..255 for
// 8-bit input); no normalisation happens here.
func (p Pipeline) Apply(img *imaging.Grid) (*Features, error) {
	v, err := Frangi(img, p.Ridge)
	if err != nil {
		return nil, fmt.Errorf("ridge filter: %w", err)
	}
	pr, err := RemoveSmallObjects(v, p.Prune)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	return &Features{
		Feature:       pr.Feature,
		Vesselness:    v,
		ThresholdMask: pr.ThresholdMask,
		ObjectMask:    pr.ObjectMask,
	}, nil
}
