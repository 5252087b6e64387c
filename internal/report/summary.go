package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/metrics"
	"github.com/ironsheep/vessel-seg/internal/train"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteText writes a per-image table followed by the aggregate summary.
func WriteText(w io.Writer, eval *train.Evaluation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IMAGE\tTHRESH\tDICE\tSENS\tSPEC\tPREC\tIOU\tAUROC\tSNR")
	for _, im := range eval.Images {
		name := im.Name
		if im.Flipped {
			name += " (flipped)"
		}
		s := im.Metrics.Scores
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%s\t%s\n",
			name, im.Threshold, s.Dice, s.Sensitivity, s.Specificity, s.Precision, s.IoU,
			im.Metrics.AUROC, im.Metrics.SNR)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := eval.Summary
	fmt.Fprintf(w, "\n%d images\n", sum.Images)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tMEAN\tMEDIAN\tUNDEFINED")
	rows := []struct {
		name string
		s    metrics.Stat
	}{
		{"dice", sum.Dice},
		{"sensitivity", sum.Sensitivity},
		{"specificity", sum.Specificity},
		{"precision", sum.Precision},
		{"iou", sum.IoU},
		{"auroc", sum.AUROC},
		{"snr", sum.SNR},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.name, r.s.Mean, r.s.Median, r.s.Undefined)
	}
	return tw.Flush()
}

// WriteHistory writes the per-epoch losses of every fold.
func WriteHistory(w io.Writer, results []*train.FoldResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLD\tEPOCH\tTRAIN LOSS\tVAL LOSS")
	for _, r := range results {
		for _, e := range r.History {
			fmt.Fprintf(tw, "%d\t%d\t%.6f\t%.6f\n", r.Fold.Number, e.Epoch, e.TrainLoss, e.ValLoss)
		}
	}
	return tw.Flush()
}

// Render writes the diagnostic images of every evaluated sample to dir:
// <name>_overlay.png, <name>_prob.png, <name>_mask.png and <name>_feature.png.
// Flipped samples get a "_flip" suffix on the name.
func Render(dir string, eval *train.Evaluation, ds *dataset.Dataset) error {
	palette := DefaultPalette()
	for _, im := range eval.Images {
		if im.Segmentation == nil {
			continue
		}
		s, err := ds.Get(im.Index)
		if err != nil {
			return err
		}
		stem := im.Name
		if im.Flipped {
			stem += "_flip"
		}
		seg := im.Segmentation

		overlay, err := Overlay(s.Image, seg.Mask, s.Truth, palette, DefaultOpacity)
		if err != nil {
			return fmt.Errorf("%s: %w", im.Name, err)
		}
		outputs := []struct {
			suffix string
			save   func(string) error
		}{
			{"overlay", func(p string) error { return imaging.SavePNG(p, overlay) }},
			{"prob", func(p string) error { return imaging.SaveGrid(p, seg.Foreground, 0, 1) }},
			{"mask", func(p string) error { return imaging.SaveMask(p, seg.Mask) }},
			{"feature", func(p string) error { return imaging.SavePNG(p, Stretch(s.Features.Feature)) }},
		}
		for _, o := range outputs {
			if err := o.save(filepath.Join(dir, stem+"_"+o.suffix+".png")); err != nil {
				return err
			}
		}
	}
	return nil
}
