package segment

import (
	"math"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Softmax converts per-pixel logits to probabilities. Each pixel's pair is
// shifted by its maximum before exponentiation, so large logits do not
// overflow and the two channels always sum to 1.
func Softmax(logits *imaging.ClassMap) *imaging.ClassMap {
	out := imaging.NewClassMap(logits.Width, logits.Height)
	for i := 0; i < logits.Len(); i++ {
		bg, fg := logits.Pair(i)
		m := math.Max(bg, fg)
		eb, ef := math.Exp(bg-m), math.Exp(fg-m)
		sum := eb + ef
		out.Data[2*i+imaging.Background] = eb / sum
		out.Data[2*i+imaging.Foreground] = ef / sum
	}
	return out
}
