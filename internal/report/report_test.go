package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/metrics"
	"github.com/ironsheep/vessel-seg/internal/mlp"
	"github.com/ironsheep/vessel-seg/internal/train"
)

// ramp returns a width×1 grid holding 0, 1, ..., width-1.
func ramp(t *testing.T, width int) *imaging.Grid {
	t.Helper()
	g := imaging.NewGrid(width, 1)
	for i := range g.Pix {
		g.Pix[i] = float64(i)
	}
	return g
}

func TestPercentileRange(t *testing.T) {
	g := ramp(t, 100)
	lo, hi := PercentileRange(g, LowPercentile, HighPercentile)
	if lo != 4 || hi != 94 {
		t.Errorf("got (%v, %v), want (4, 94)", lo, hi)
	}

	nan := imaging.NewGrid(2, 1)
	nan.Pix[0], nan.Pix[1] = math.NaN(), math.Inf(1)
	if lo, hi := PercentileRange(nan, 0.05, 0.95); !math.IsNaN(lo) || !math.IsNaN(hi) {
		t.Errorf("got (%v, %v) for non-finite input, want NaN", lo, hi)
	}
}

func TestStretch(t *testing.T) {
	img := Stretch(ramp(t, 100))
	if img.Pix[0] != 0 || img.Pix[4] != 0 {
		t.Errorf("values at or below the 5th percentile should be black, got %d %d", img.Pix[0], img.Pix[4])
	}
	if img.Pix[94] != 255 || img.Pix[99] != 255 {
		t.Errorf("values at or above the 95th percentile should be white, got %d %d", img.Pix[94], img.Pix[99])
	}

	// Sparse map: 95th percentile is still zero.
	sparse := imaging.NewGrid(100, 1)
	sparse.Pix[50] = 0.8
	img = Stretch(sparse)
	if img.Pix[50] != 255 || img.Pix[0] != 0 {
		t.Errorf("sparse map: got %d at the peak and %d elsewhere", img.Pix[50], img.Pix[0])
	}
}

func TestIntensity(t *testing.T) {
	g := imaging.NewGrid(4, 2)
	copy(g.Pix, []float64{0, 0, 0, 255, 255, 128, 128, 128})
	h := GridHistogram(g, 0, 255)

	if len(h.Bins) != 256 {
		t.Fatalf("got %d bins, want 256", len(h.Bins))
	}
	if h.Total != 8 {
		t.Errorf("total %d, want 8", h.Total)
	}
	if h.Min != 0 || h.Max != 255 {
		t.Errorf("range [%d, %d], want [0, 255]", h.Min, h.Max)
	}
	if h.Bins[0] != 3 || h.Bins[128] != 3 || h.Bins[255] != 2 {
		t.Errorf("unexpected counts: 0→%d 128→%d 255→%d", h.Bins[0], h.Bins[128], h.Bins[255])
	}
	// Ties go to the lowest level.
	if h.Peak != 0 || h.PeakCount != 3 {
		t.Errorf("peak %d×%d, want 0×3", h.Peak, h.PeakCount)
	}
	cum := h.Cumulative()
	if cum[255] != 8 || cum[127] != 3 {
		t.Errorf("cumulative: got %d at 127 and %d at 255", cum[127], cum[255])
	}
	if b := h.Plot().Bounds(); b.Empty() {
		t.Error("empty histogram plot")
	}
}

func TestCompareFilter(t *testing.T) {
	raw := imaging.NewGrid(20, 20)
	for i := range raw.Pix {
		raw.Pix[i] = 255
	}
	for y := 0; y < 20; y++ {
		for x := 9; x < 12; x++ {
			raw.Set(x, y, 0)
		}
	}
	p := filter.DefaultPipeline()
	p.Ridge.Sigmas = []float64{1}
	p.Prune.MinSize = 10
	f, err := p.Apply(raw)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	h := CompareFilter(raw, f)
	if h.Raw.Bins[0] != 60 || h.Raw.Bins[255] != 340 {
		t.Errorf("raw histogram: %d dark, %d bright", h.Raw.Bins[0], h.Raw.Bins[255])
	}
	if h.Vesselness.Total != 400 || h.Feature.Total != 400 {
		t.Errorf("filtered histograms should count every pixel")
	}
	if h.Feature.Max < 128 {
		t.Errorf("feature histogram max level %d, want the vessel near the top", h.Feature.Max)
	}
}

func TestOverlay_Colours(t *testing.T) {
	base := imaging.NewGrid(4, 1)
	pred := imaging.NewMask(4, 1)
	truth := imaging.NewMask(4, 1)
	pred.Pix[0], truth.Pix[0] = true, true // TP
	pred.Pix[1] = true                     // FP
	truth.Pix[2] = true                    // FN

	img, err := Overlay(base, pred, truth, DefaultPalette(), 1)
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	tp, fp, fn, tn := img.RGBAAt(0, 0), img.RGBAAt(1, 0), img.RGBAAt(2, 0), img.RGBAAt(3, 0)
	if !(tp.G > tp.R && tp.G > tp.B) {
		t.Errorf("true positive %v is not green", tp)
	}
	if !(fp.R > fp.G && fp.R > fp.B) {
		t.Errorf("false positive %v is not red", fp)
	}
	if !(fn.B > fn.R && fn.B > fn.G) {
		t.Errorf("false negative %v is not blue", fn)
	}
	if tn.R != tn.G || tn.G != tn.B || tn.A != 255 {
		t.Errorf("true negative %v is not opaque gray", tn)
	}
}

func TestOverlay_ZeroOpacityKeepsBase(t *testing.T) {
	base := ramp(t, 10)
	pred := imaging.NewMask(10, 1)
	truth := imaging.NewMask(10, 1)
	for i := range pred.Pix {
		pred.Pix[i] = i%2 == 0
		truth.Pix[i] = i%3 == 0
	}
	img, err := Overlay(base, pred, truth, DefaultPalette(), 0)
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	gray := Stretch(base)
	for x := 0; x < 10; x++ {
		c := img.RGBAAt(x, 0)
		want := gray.GrayAt(x, 0).Y
		if c.R != want || c.G != want || c.B != want {
			t.Errorf("x=%d: got %v, want gray %d", x, c, want)
		}
	}
}

func TestOverlay_ShapeMismatch(t *testing.T) {
	_, err := Overlay(imaging.NewGrid(3, 3), imaging.NewMask(3, 3), imaging.NewMask(2, 3), DefaultPalette(), 0.5)
	if !errors.Is(err, imaging.ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}

func sampleEvaluation() *train.Evaluation {
	good := &metrics.ImageMetrics{
		Confusion: metrics.Confusion{TP: 8, FP: 2, TN: 88, FN: 2},
		AUROC:     0.97,
		SNR:       3.5,
	}
	good.Scores = good.Confusion.Scores()
	blank := &metrics.ImageMetrics{
		Confusion: metrics.Confusion{TN: 100},
		AUROC:     metrics.Value(math.NaN()),
		SNR:       metrics.Value(math.NaN()),
	}
	blank.Scores = blank.Confusion.Scores()
	return &train.Evaluation{
		Images: []train.ImageReport{
			{Index: 0, Name: "1", Threshold: 0.42, Metrics: good},
			{Index: 3, Name: "2", Flipped: true, Threshold: 0.5, Metrics: blank},
		},
		Summary: metrics.Aggregate([]*metrics.ImageMetrics{good, blank}),
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleEvaluation()); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"IMAGE", "2 (flipped)", "0.4200", "0.8000", "n/a", "2 images", "auroc"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON_UndefinedAsNull(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleEvaluation()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var decoded struct {
		Images []struct {
			Metrics struct {
				AUROC *float64 `json:"auroc"`
			} `json:"metrics"`
		} `json:"images"`
		Summary struct {
			AUROC struct {
				Count     int `json:"count"`
				Undefined int `json:"undefined"`
			} `json:"auroc"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Images[0].Metrics.AUROC == nil || decoded.Images[1].Metrics.AUROC != nil {
		t.Errorf("AUROC should be a number for image 1 and null for image 2")
	}
	if decoded.Summary.AUROC.Count != 1 || decoded.Summary.AUROC.Undefined != 1 {
		t.Errorf("AUROC summary: %+v", decoded.Summary.AUROC)
	}
}

func TestWriteHistory(t *testing.T) {
	results := []*train.FoldResult{{
		Fold:    train.Fold{Number: 2},
		History: []train.EpochStats{{Epoch: 1, TrainLoss: 0.5, ValLoss: 0.6}},
	}}
	var buf bytes.Buffer
	if err := WriteHistory(&buf, results); err != nil {
		t.Fatalf("WriteHistory failed: %v", err)
	}
	if !strings.Contains(buf.String(), "0.500000") || !strings.Contains(buf.String(), "0.600000") {
		t.Errorf("unexpected history:\n%s", buf.String())
	}
}

func writeBandPair(t *testing.T, dir string) {
	t.Helper()
	const w, h = 16, 12
	img := image.NewGray(image.Rect(0, 0, w, h))
	gt := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= 6 && x < 9 {
				gt.SetGray(x, y, color.Gray{Y: 255})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	if err := imaging.SavePNG(filepath.Join(dir, "1.png"), img); err != nil {
		t.Fatal(err)
	}
	if err := imaging.SavePNG(filepath.Join(dir, "1_gt.png"), gt); err != nil {
		t.Fatal(err)
	}
}

func TestRender(t *testing.T) {
	data := t.TempDir()
	writeBandPair(t, data)
	p := filter.DefaultPipeline()
	p.Ridge.Sigmas = []float64{1}
	p.Prune.MinSize = 5
	ds, err := dataset.Open(data, p, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	model := mlp.New(3)
	eval, err := train.Evaluate(context.Background(), model, ds, []int{0, 1}, train.DefaultExec())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	out := t.TempDir()
	if err := Render(out, eval, ds); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, name := range []string{
		"1_overlay.png", "1_prob.png", "1_mask.png", "1_feature.png",
		"1_flip_overlay.png", "1_flip_prob.png", "1_flip_mask.png", "1_flip_feature.png",
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	// Reports without segmentation maps are skipped.
	empty := t.TempDir()
	if err := Render(empty, sampleEvaluation(), ds); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if entries, _ := os.ReadDir(empty); len(entries) != 0 {
		t.Errorf("wrote %d files for reports without segmentation", len(entries))
	}
}
