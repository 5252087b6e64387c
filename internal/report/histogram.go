package report

import (
	"image"

	"github.com/anthonynsimon/bild/histogram"

	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Histogram is a 256-level intensity histogram.
type Histogram struct {
	Bins []int `json:"bins"`

	// Lowest and highest occupied levels.
	Min int `json:"min"`
	Max int `json:"max"`

	// Peak is the most frequent level, PeakCount its pixel count.
	Peak      int `json:"peak"`
	PeakCount int `json:"peak_count"`

	Total int `json:"total"`
}

// Intensity computes the gray-level histogram of img. Color images are
// reduced through their red channel, which equals luminance for the
// grayscale angiograms this tool reads.
func Intensity(img image.Image) *Histogram {
	h := histogram.NewRGBAHistogram(img)
	out := &Histogram{Bins: h.R.Bins, Min: -1, Max: -1}
	for level, n := range out.Bins {
		if n == 0 {
			continue
		}
		if out.Min < 0 {
			out.Min = level
		}
		out.Max = level
		out.Total += n
		if n > out.PeakCount {
			out.Peak, out.PeakCount = level, n
		}
	}
	return out
}

// GridHistogram renders g between lo and hi and returns its histogram.
func GridHistogram(g *imaging.Grid, lo, hi float64) *Histogram {
	return Intensity(g.ToGray(lo, hi))
}

// Cumulative returns the running pixel count per level.
func (h *Histogram) Cumulative() []int {
	c := histogram.Histogram{Bins: h.Bins}
	return c.Cumulative().Bins
}

// Plot draws the histogram as a grayscale bar chart.
func (h *Histogram) Plot() image.Image {
	c := histogram.Histogram{Bins: h.Bins}
	return c.Image()
}

// FilterHistograms holds intensity histograms of one image before and after
// the feature pipeline. Filtered maps in [0,1] are scaled to 0..255.
type FilterHistograms struct {
	Raw        *Histogram `json:"raw"`
	Vesselness *Histogram `json:"vesselness"`
	Feature    *Histogram `json:"feature"`
}

// CompareFilter builds the before/after histograms of raw and its features.
func CompareFilter(raw *imaging.Grid, f *filter.Features) *FilterHistograms {
	return &FilterHistograms{
		Raw:        GridHistogram(raw, 0, 255),
		Vesselness: GridHistogram(f.Vesselness, 0, 1),
		Feature:    GridHistogram(f.Feature, 0, 1),
	}
}
