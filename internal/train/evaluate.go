package train

import (
	"context"
	"fmt"

	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/logging"
	"github.com/ironsheep/vessel-seg/internal/metrics"
	"github.com/ironsheep/vessel-seg/internal/mlp"
	"github.com/ironsheep/vessel-seg/internal/segment"
)

// ImageReport is the evaluation of one validation image.
type ImageReport struct {
	Index     int                   `json:"index"`
	Name      string                `json:"name"`
	Flipped   bool                  `json:"flipped"`
	Threshold float64               `json:"threshold"`
	Metrics   *metrics.ImageMetrics `json:"metrics"`

	// Segmentation holds the maps behind the metrics for rendering.
	Segmentation *segment.Result `json:"-"`
}

// Evaluation is the validation report of one model.
type Evaluation struct {
	Images  []ImageReport   `json:"images"`
	Summary metrics.Summary `json:"summary"`
}

// Evaluate segments the samples at indices with model, each with its own
// Otsu threshold, and scores them against ground truth.
func Evaluate(ctx context.Context, model *mlp.Network, ds *dataset.Dataset, indices []int, exec Exec) (*Evaluation, error) {
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	if err := ds.Prefetch(ctx, indices, exec.workers()); err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	log := logging.Component(exec.Log, "evaluate")
	seg := segment.Segmenter{Model: model}
	eval := &Evaluation{Images: make([]ImageReport, 0, len(indices))}
	results := make([]*metrics.ImageMetrics, 0, len(indices))

	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := ds.Get(i)
		if err != nil {
			return nil, err
		}
		res, err := seg.Segment(s.Features.Feature)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		m, err := metrics.Evaluate(res.Mask, s.Truth, res.Foreground)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		if !m.AUROC.Defined() {
			log.Warn().Str("image", s.Name).Msg("single-class ground truth, AUROC undefined")
		}
		log.Debug().
			Str("image", s.Name).
			Float64("threshold", res.Threshold).
			Float64("dice", m.Scores.Dice).
			Msg("image evaluated")

		eval.Images = append(eval.Images, ImageReport{
			Index:        i,
			Name:         s.Name,
			Flipped:      s.Flipped,
			Threshold:    res.Threshold,
			Metrics:      m,
			Segmentation: res,
		})
		results = append(results, m)
	}

	eval.Summary = metrics.Aggregate(results)
	log.Info().
		Int("images", eval.Summary.Images).
		Stringer("dice", eval.Summary.Dice.Mean).
		Stringer("auroc", eval.Summary.AUROC.Mean).
		Stringer("snr", eval.Summary.SNR.Mean).
		Msg("evaluation finished")
	return eval, nil
}
