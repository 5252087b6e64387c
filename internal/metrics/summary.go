package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Value is a metric that may be undefined (NaN). It encodes as JSON null
// when undefined.
type Value float64

// Defined reports whether v is a finite number.
func (v Value) Defined() bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(v), 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("metric value: %w", err)
	}
	*v = Value(f)
	return nil
}

// String formats the value, printing "n/a" when undefined.
func (v Value) String() string {
	if !v.Defined() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(v), 'f', 4, 64)
}

// ImageMetrics is the evaluation of one segmented image.
type ImageMetrics struct {
	Confusion Confusion `json:"confusion"`
	Scores    Scores    `json:"scores"`
	AUROC     Value     `json:"auroc"`
	SNR       Value     `json:"snr"`
}

// Evaluate scores one prediction. probs is the foreground-probability map
// the prediction was thresholded from; AUROC is computed from it against
// truth and SNR over the predicted foreground.
func Evaluate(pred, truth *imaging.Mask, probs *imaging.Grid) (*ImageMetrics, error) {
	c, err := Compare(pred, truth)
	if err != nil {
		return nil, err
	}
	auroc, err := AUROC(probs.Pix, truth.Pix)
	if err != nil {
		return nil, err
	}
	snr, err := SNR(probs, pred)
	if err != nil {
		return nil, err
	}
	return &ImageMetrics{
		Confusion: c,
		Scores:    c.Scores(),
		AUROC:     Value(auroc),
		SNR:       Value(snr),
	}, nil
}

// Stat summarises one metric over a set of images.
type Stat struct {
	Mean   Value `json:"mean"`
	Median Value `json:"median"`

	// Count is the number of defined values that entered Mean and Median.
	Count int `json:"count"`

	// Undefined is the number of NaN values that were excluded.
	Undefined int `json:"undefined"`
}

// Describe computes mean and median over the defined entries of values.
// With no defined entries both are NaN.
func Describe(values []float64) Stat {
	var kept []float64
	var s Stat
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.Undefined++
			continue
		}
		kept = append(kept, v)
	}
	s.Count = len(kept)
	if len(kept) == 0 {
		s.Mean, s.Median = Value(math.NaN()), Value(math.NaN())
		return s
	}
	sort.Float64s(kept)
	s.Mean = Value(stat.Mean(kept, nil))
	mid := len(kept) / 2
	if len(kept)%2 == 1 {
		s.Median = Value(kept[mid])
	} else {
		s.Median = Value((kept[mid-1] + kept[mid]) / 2)
	}
	return s
}

// Summary aggregates per-image metrics.
type Summary struct {
	Images      int       `json:"images"`
	Dice        Stat      `json:"dice"`
	Sensitivity Stat      `json:"sensitivity"`
	Specificity Stat      `json:"specificity"`
	Precision   Stat      `json:"precision"`
	IoU         Stat      `json:"iou"`
	AUROC       Stat      `json:"auroc"`
	SNR         Stat      `json:"snr"`
	Pooled      Confusion `json:"pooled"`
}

// Aggregate summarises per-image results. Undefined AUROC and SNR values are
// excluded from the averages rather than counted as zero.
func Aggregate(results []*ImageMetrics) Summary {
	n := len(results)
	cols := make([][]float64, 7)
	for i := range cols {
		cols[i] = make([]float64, 0, n)
	}
	var pooled Confusion
	for _, r := range results {
		pooled.Add(r.Confusion)
		cols[0] = append(cols[0], r.Scores.Dice)
		cols[1] = append(cols[1], r.Scores.Sensitivity)
		cols[2] = append(cols[2], r.Scores.Specificity)
		cols[3] = append(cols[3], r.Scores.Precision)
		cols[4] = append(cols[4], r.Scores.IoU)
		cols[5] = append(cols[5], float64(r.AUROC))
		cols[6] = append(cols[6], float64(r.SNR))
	}
	return Summary{
		Images:      n,
		Dice:        Describe(cols[0]),
		Sensitivity: Describe(cols[1]),
		Specificity: Describe(cols[2]),
		Precision:   Describe(cols[3]),
		IoU:         Describe(cols[4]),
		AUROC:       Describe(cols[5]),
		SNR:         Describe(cols[6]),
		Pooled:      pooled,
	}
}
