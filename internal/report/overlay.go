package report

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// Palette colours the confusion classes of an overlay. True negatives keep
// the underlying gray.
type Palette struct {
	TP colorful.Color
	FP colorful.Color
	FN colorful.Color
}

// DefaultPalette marks hits green, false alarms red and misses blue.
func DefaultPalette() Palette {
	return Palette{
		TP: colorful.Color{R: 0.18, G: 0.80, B: 0.44},
		FP: colorful.Color{R: 0.91, G: 0.30, B: 0.24},
		FN: colorful.Color{R: 0.20, G: 0.60, B: 0.86},
	}
}

// DefaultOpacity is the blend weight of the class colour over the base.
const DefaultOpacity = 0.6

// Overlay draws pred against truth on top of base. Each labelled pixel is
// the Lab blend of the contrast-stretched base gray and its class colour, so
// vessel texture stays visible under the marking.
func Overlay(base *imaging.Grid, pred, truth *imaging.Mask, p Palette, opacity float64) (*image.RGBA, error) {
	if pred.Width != base.Width || pred.Height != base.Height ||
		truth.Width != base.Width || truth.Height != base.Height {
		return nil, fmt.Errorf("overlay %dx%d on %dx%d: %w",
			pred.Width, pred.Height, base.Width, base.Height, imaging.ErrShapeMismatch)
	}
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}

	gray := Stretch(base)
	out := image.NewRGBA(image.Rect(0, 0, base.Width, base.Height))
	for i := range base.Pix {
		x, y := i%base.Width, i/base.Width
		l := float64(gray.GrayAt(x, y).Y) / 255
		c := colorful.Color{R: l, G: l, B: l}

		switch got, want := pred.Pix[i], truth.Pix[i]; {
		case got && want:
			c = c.BlendLab(p.TP, opacity)
		case got:
			c = c.BlendLab(p.FP, opacity)
		case want:
			c = c.BlendLab(p.FN, opacity)
		}
		r, g, b := c.Clamped().RGB255()
		out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return out, nil
}
