package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when two grids, masks or maps that must share
// spatial dimensions do not.
var ErrShapeMismatch = errors.New("shape mismatch")

// Grid is a dense single-channel 2D map of float64 values stored row-major.
//
// Grids are used for raw intensities (0-255), vesselness responses and
// feature maps (0-1) and foreground probabilities. A Grid is treated as
// immutable once it has been handed to another package; every operation in
// this module returns a new Grid instead of modifying its receiver.
type Grid struct {
	// Width is the number of columns.
	Width int

	// Height is the number of rows.
	Height int

	// Pix holds Width*Height values; pixel (x, y) lives at Pix[y*Width+x].
	Pix []float64
}

// NewGrid allocates a zero-filled grid of the given size.
func NewGrid(width, height int) *Grid {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Grid{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// GridFromRows builds a grid from a slice of equally long rows.
//
// Returns ErrShapeMismatch if the rows are ragged.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}
	width := len(rows[0])
	g := NewGrid(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d: %w", y, len(row), width, ErrShapeMismatch)
		}
		copy(g.Pix[y*width:], row)
	}
	return g, nil
}

// Unflatten is the inverse of Flatten: it reshapes a flat per-pixel sequence
// of length width*height back into an H×W grid. The values are copied.
func Unflatten(width, height int, values []float64) (*Grid, error) {
	if width*height != len(values) {
		return nil, fmt.Errorf("cannot reshape %d values to %dx%d: %w", len(values), width, height, ErrShapeMismatch)
	}
	g := NewGrid(width, height)
	copy(g.Pix, values)
	return g, nil
}

// Empty reports whether the grid has no pixels.
func (g *Grid) Empty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0 || len(g.Pix) == 0
}

// Validate returns ErrShapeMismatch when Pix does not hold exactly
// Width*Height values.
func (g *Grid) Validate() error {
	if g.Width < 0 || g.Height < 0 || len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("%dx%d grid holds %d values: %w", g.Width, g.Height, len(g.Pix), ErrShapeMismatch)
	}
	return nil
}

// Len returns the number of pixels.
func (g *Grid) Len() int {
	return g.Width * g.Height
}

// At returns the value at column x, row y.
func (g *Grid) At(x, y int) float64 {
	return g.Pix[y*g.Width+x]
}

// Set stores v at column x, row y.
func (g *Grid) Set(x, y int, v float64) {
	g.Pix[y*g.Width+x] = v
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := NewGrid(g.Width, g.Height)
	copy(c.Pix, g.Pix)
	return c
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Flatten reshapes the H×W grid into a flat sequence of H·W independent
// per-pixel values in row-major order. The returned slice is a copy.
func (g *Grid) Flatten() []float64 {
	out := make([]float64, len(g.Pix))
	copy(out, g.Pix)
	return out
}

// Column returns the flattened grid as an (H·W)×1 matrix, one row per pixel.
// This is the input layout expected by the per-pixel classifier.
func (g *Grid) Column() *mat.Dense {
	return mat.NewDense(g.Len(), 1, g.Flatten())
}

// FlipV returns the grid with its rows in reverse order.
func (g *Grid) FlipV() *Grid {
	out := NewGrid(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		copy(out.Pix[(g.Height-1-y)*g.Width:(g.Height-y)*g.Width], g.Pix[y*g.Width:(y+1)*g.Width])
	}
	return out
}

// Equal reports whether both grids have the same shape and bit-identical values.
func (g *Grid) Equal(o *Grid) bool {
	if !g.SameShape(o) {
		return false
	}
	for i, v := range g.Pix {
		if math.Float64bits(v) != math.Float64bits(o.Pix[i]) {
			return false
		}
	}
	return true
}

// MinMax returns the smallest and largest value. An empty grid yields (0, 0).
func (g *Grid) MinMax() (lo, hi float64) {
	if len(g.Pix) == 0 {
		return 0, 0
	}
	lo, hi = g.Pix[0], g.Pix[0]
	for _, v := range g.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Masked multiplies the grid elementwise by a boolean mask, zeroing every
// pixel where the mask is false and preserving the original value elsewhere.
func (g *Grid) Masked(m *Mask) (*Grid, error) {
	if g.Width != m.Width || g.Height != m.Height {
		return nil, fmt.Errorf("grid %dx%d vs mask %dx%d: %w", g.Width, g.Height, m.Width, m.Height, ErrShapeMismatch)
	}
	out := NewGrid(g.Width, g.Height)
	for i, keep := range m.Pix {
		if keep {
			out.Pix[i] = g.Pix[i]
		}
	}
	return out, nil
}

// Above returns the mask of pixels strictly greater than threshold.
func (g *Grid) Above(threshold float64) *Mask {
	m := NewMask(g.Width, g.Height)
	for i, v := range g.Pix {
		m.Pix[i] = v > threshold
	}
	return m
}

// ToGray renders the grid as an 8-bit grayscale image, mapping lo to black
// and hi to white. Values outside [lo, hi] are clipped. When lo == hi every
// pixel is rendered black.
func (g *Grid) ToGray(lo, hi float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	span := hi - lo
	for i, v := range g.Pix {
		var level float64
		if span > 0 {
			level = (v - lo) / span
		}
		if level < 0 {
			level = 0
		} else if level > 1 {
			level = 1
		}
		img.Pix[(i/g.Width)*img.Stride+i%g.Width] = uint8(math.Round(level * 255))
	}
	return img
}

// FromImage converts any image to a grayscale intensity grid in [0, 255].
//
// *image.Gray inputs are read directly so that 8-bit sources keep their exact
// intensities; every other colour model is converted with
// imaging.Grayscale, which uses the ITU-R BT.601 luma weights.
func FromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	g := NewGrid(bounds.Dx(), bounds.Dy())

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float64(gray.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y)
			}
		}
		return g
	}

	if gray16, ok := img.(*image.Gray16); ok {
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float64(gray16.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y) / 257.0
			}
		}
		return g
	}

	nrgba := imaging.Grayscale(img)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Pix[y*g.Width+x] = float64(nrgba.Pix[y*nrgba.Stride+x*4])
		}
	}
	return g
}
