package segment

import (
	"errors"
	"fmt"

	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/mlp"
)

// ErrNoModel is returned when a Segmenter has no classifier.
var ErrNoModel = errors.New("segment: no model")

// Result is the decision for one image.
type Result struct {
	// Logits are the raw classifier outputs, H×W×2.
	Logits *imaging.ClassMap

	// Probabilities are the softmax of Logits, H×W×2.
	Probabilities *imaging.ClassMap

	// Foreground is the foreground-probability channel.
	Foreground *imaging.Grid

	// Threshold is the Otsu threshold of Foreground.
	Threshold float64

	// Mask is Foreground > Threshold.
	Mask *imaging.Mask
}

// Segmenter turns feature maps into binary vessel masks with a trained
// classifier. It never modifies the model.
type Segmenter struct {
	Model *mlp.Network
}

// Segment classifies every pixel of feature and binarises the foreground
// probabilities with a threshold computed from this image alone.
func (s Segmenter) Segment(feature *imaging.Grid) (*Result, error) {
	if s.Model == nil {
		return nil, ErrNoModel
	}
	logits, err := s.Model.ForwardGrid(feature)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return Decide(logits), nil
}

// Decide applies softmax and the per-image Otsu threshold to logits.
func Decide(logits *imaging.ClassMap) *Result {
	probs := Softmax(logits)
	fg := probs.Channel(imaging.Foreground)
	t := Otsu(fg.Pix)
	return &Result{
		Logits:        logits,
		Probabilities: probs,
		Foreground:    fg,
		Threshold:     t,
		Mask:          fg.Above(t),
	}
}

// SegmentBatch segments each feature map independently; every image gets
// its own threshold.
func (s Segmenter) SegmentBatch(features []*imaging.Grid) ([]*Result, error) {
	results := make([]*Result, len(features))
	for i, f := range features {
		r, err := s.Segment(f)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		results[i] = r
	}
	return results, nil
}
