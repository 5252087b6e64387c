package filter

import (
	"fmt"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// PruneParams configures small-object removal on a vesselness map.
type PruneParams struct {
	// Threshold binarises the vesselness map; pixels strictly above it are
	// candidate foreground.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MinSize is the smallest component, in pixels, that survives.
	MinSize int `json:"min_size" yaml:"min_size"`

	// Connectivity is the pixel neighbourhood used to group components.
	Connectivity imaging.Connectivity `json:"connectivity" yaml:"connectivity"`
}

// DefaultPruneParams returns threshold 0.3, min size 5000, 8-connectivity.
func DefaultPruneParams() PruneParams {
	return PruneParams{
		Threshold:    0.3,
		MinSize:      5000,
		Connectivity: imaging.Connectivity8,
	}
}

// Validate checks the connectivity and size.
func (p PruneParams) Validate() error {
	if !p.Connectivity.Valid() {
		return fmt.Errorf("filter: unsupported connectivity %d", p.Connectivity)
	}
	if p.MinSize < 0 {
		return fmt.Errorf("filter: min size must be non-negative, got %d", p.MinSize)
	}
	return nil
}

// PruneResult holds the intermediate and final maps of RemoveSmallObjects.
type PruneResult struct {
	// Feature is the vesselness map with pruned pixels set to zero.
	Feature *imaging.Grid

	// ThresholdMask is vesselness > Threshold.
	ThresholdMask *imaging.Mask

	// ObjectMask keeps the components of ThresholdMask with at least
	// MinSize pixels.
	ObjectMask *imaging.Mask
}

// RemoveSmallObjects thresholds v, drops connected components smaller than
// p.MinSize and returns v masked by the surviving components. Kept pixels
// carry their original vesselness, not 1.
func RemoveSmallObjects(v *imaging.Grid, p PruneParams) (*PruneResult, error) {
	if v == nil || v.Empty() {
		return nil, ErrEmptyImage
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	thresh := v.Above(p.Threshold)
	regions, err := thresh.Components(p.Connectivity)
	if err != nil {
		return nil, fmt.Errorf("label components: %w", err)
	}

	objects := imaging.NewMask(v.Width, v.Height)
	for _, region := range regions {
		if len(region) < p.MinSize {
			continue
		}
		for _, idx := range region {
			objects.Pix[idx] = true
		}
	}

	feature, err := v.Masked(objects)
	if err != nil {
		return nil, err
	}
	return &PruneResult{
		Feature:       feature,
		ThresholdMask: thresh,
		ObjectMask:    objects,
	}, nil
}
