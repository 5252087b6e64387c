package train

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/ironsheep/vessel-seg/internal/config"
	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/logging"
	"github.com/ironsheep/vessel-seg/internal/mlp"
)

// Options are the cross-validation and optimiser settings.
type Options struct {
	Folds        int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Loss         mlp.WeightedBCE
}

// OptionsFromConfig extracts the training options from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Folds:        cfg.Train.Folds,
		Epochs:       cfg.Train.Epochs,
		BatchSize:    cfg.Train.BatchSize,
		LearningRate: cfg.Train.LearningRate,
		Loss:         cfg.Loss,
	}
}

// EpochStats records the mean batch losses of one epoch.
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
}

// FoldResult is the outcome of training one fold.
type FoldResult struct {
	Fold      Fold
	Model     *mlp.Network
	History   []EpochStats
	ModelPath string
}

// Trainer runs k-fold cross-validation over a dataset. Each fold trains a
// fresh network and, when OutDir is set, saves it as mlp_fold<N>.json.
type Trainer struct {
	Data    *dataset.Dataset
	Options Options
	Exec    Exec
	OutDir  string
}

// Folds returns the cross-validation split of the trainer's dataset.
func (t *Trainer) Folds() ([]Fold, error) {
	return KFold(t.Data.Len(), t.Options.Folds, t.Exec.Seed)
}

// Run trains every fold in order.
func (t *Trainer) Run(ctx context.Context) ([]*FoldResult, error) {
	if err := t.Exec.Validate(); err != nil {
		return nil, err
	}
	folds, err := t.Folds()
	if err != nil {
		return nil, err
	}

	log := logging.Component(t.Exec.Log, "train")
	all := make([]int, t.Data.Len())
	for i := range all {
		all[i] = i
	}
	start := time.Now()
	if err := t.Data.Prefetch(ctx, all, t.Exec.workers()); err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	log.Info().Int("samples", len(all)).Dur("elapsed", time.Since(start)).Msg("features ready")

	results := make([]*FoldResult, 0, len(folds))
	for _, f := range folds {
		res, err := t.TrainFold(ctx, f)
		if err != nil {
			return results, fmt.Errorf("fold %d: %w", f.Number, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// TrainFold trains a new network on fold.Train and reports the validation
// loss on fold.Val after every epoch.
func (t *Trainer) TrainFold(ctx context.Context, fold Fold) (*FoldResult, error) {
	if err := t.Exec.Validate(); err != nil {
		return nil, err
	}
	if err := t.Options.Loss.Validate(); err != nil {
		return nil, err
	}
	log := logging.Component(t.Exec.Log, "train").With().Int("fold", fold.Number).Logger()

	rng := rand.New(rand.NewSource(t.Exec.Seed + int64(fold.Number)))
	model := mlp.New(rng.Int63())
	opt := mlp.NewAdam(t.Options.LearningRate)
	batch := t.Options.BatchSize
	if batch < 1 {
		batch = 1
	}

	res := &FoldResult{Fold: fold, Model: model}
	order := make([]int, len(fold.Train))
	copy(order, fold.Train)

	for epoch := 1; epoch <= t.Options.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var trainSum float64
		var batches int
		for lo := 0; lo < len(order); lo += batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hi := min(lo+batch, len(order))
			loss, err := t.step(model, opt, order[lo:hi])
			if err != nil {
				return nil, err
			}
			trainSum += loss
			batches++
		}

		valLoss, err := t.validationLoss(ctx, model, fold.Val, batch)
		if err != nil {
			return nil, err
		}
		stats := EpochStats{Epoch: epoch, TrainLoss: trainSum / float64(batches), ValLoss: valLoss}
		res.History = append(res.History, stats)
		log.Info().
			Int("epoch", epoch).
			Float64("train_loss", stats.TrainLoss).
			Float64("val_loss", stats.ValLoss).
			Msg("epoch finished")
	}

	if t.OutDir != "" {
		res.ModelPath = filepath.Join(t.OutDir, mlp.FoldArtifact(fold.Number))
		if err := model.SaveFile(res.ModelPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", res.ModelPath).Msg("model saved")
	}
	return res, nil
}

// batchPixels returns the total pixel count of the samples at indices.
func (t *Trainer) batchPixels(indices []int) (int, error) {
	var total int
	for _, i := range indices {
		s, err := t.Data.Get(i)
		if err != nil {
			return 0, err
		}
		total += s.Features.Feature.Len()
	}
	return total, nil
}

// step performs one optimiser update on a minibatch of images. The loss is
// the mean over every pixel and channel of the batch.
func (t *Trainer) step(model *mlp.Network, opt *mlp.Adam, indices []int) (float64, error) {
	total, err := t.batchPixels(indices)
	if err != nil {
		return 0, err
	}
	model.ZeroGrad()
	var loss float64
	for _, i := range indices {
		s, err := t.Data.Get(i)
		if err != nil {
			return 0, err
		}
		w := float64(s.Features.Feature.Len()) / float64(total)
		l, err := model.BackwardWeighted(s.Features.Feature.Column(), s.Target().Matrix(), t.Options.Loss, w)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", s.Name, err)
		}
		loss += w * l
	}
	opt.Step(model.Params())
	return loss, nil
}

// validationLoss averages the batch losses over indices in order, without
// updating the model.
func (t *Trainer) validationLoss(ctx context.Context, model *mlp.Network, indices []int, batch int) (float64, error) {
	var sum float64
	var batches int
	for lo := 0; lo < len(indices); lo += batch {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		hi := min(lo+batch, len(indices))
		total, err := t.batchPixels(indices[lo:hi])
		if err != nil {
			return 0, err
		}
		var loss float64
		for _, i := range indices[lo:hi] {
			s, err := t.Data.Get(i)
			if err != nil {
				return 0, err
			}
			logits, err := model.Forward(s.Features.Feature.Column())
			if err != nil {
				return 0, err
			}
			l, err := t.Options.Loss.Loss(logits, s.Target().Matrix())
			if err != nil {
				return 0, err
			}
			loss += float64(s.Features.Feature.Len()) / float64(total) * l
		}
		sum += loss
		batches++
	}
	if batches == 0 {
		return 0, nil
	}
	return sum / float64(batches), nil
}

// LoadFold restores the model saved for fold number fold from dir and the
// validation indices it was trained against, reproduced from the same
// seeded split of ds.
func LoadFold(dir string, fold int, ds *dataset.Dataset, k int, seed int64) (*mlp.Network, []int, error) {
	folds, err := KFold(ds.Len(), k, seed)
	if err != nil {
		return nil, nil, err
	}
	if fold < 1 || fold > len(folds) {
		return nil, nil, fmt.Errorf("fold %d out of range 1..%d", fold, len(folds))
	}
	model, err := mlp.LoadFile(filepath.Join(dir, mlp.FoldArtifact(fold)))
	if err != nil {
		return nil, nil, err
	}
	return model, folds[fold-1].Val, nil
}
