package imaging

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Class channel indices of a ClassMap.
const (
	Background = 0
	Foreground = 1
)

// ClassMap is a per-pixel (background, foreground) pair laid out H×W×2.
//
// It carries classifier logits, softmax probabilities and one-hot ground
// truth. The two channels of pixel i are Data[2i] (background) and
// Data[2i+1] (foreground).
type ClassMap struct {
	Width  int
	Height int
	Data   []float64
}

// NewClassMap allocates a zero-filled class map.
func NewClassMap(width, height int) *ClassMap {
	return &ClassMap{Width: width, Height: height, Data: make([]float64, width*height*2)}
}

// ClassMapFromMatrix reshapes an (H·W)×2 matrix of per-pixel outputs back
// into an H×W×2 map. It is the inverse of ClassMap.Matrix.
func ClassMapFromMatrix(width, height int, m mat.Matrix) (*ClassMap, error) {
	r, c := m.Dims()
	if r != width*height || c != 2 {
		return nil, fmt.Errorf("cannot reshape %dx%d outputs to %dx%dx2: %w", r, c, width, height, ErrShapeMismatch)
	}
	out := NewClassMap(width, height)
	for i := 0; i < r; i++ {
		out.Data[2*i] = m.At(i, Background)
		out.Data[2*i+1] = m.At(i, Foreground)
	}
	return out, nil
}

// OneHot encodes a binary mask as a (background, foreground) class map.
// Every pixel has exactly one channel set to 1.
func OneHot(m *Mask) *ClassMap {
	out := NewClassMap(m.Width, m.Height)
	for i, fg := range m.Pix {
		if fg {
			out.Data[2*i+1] = 1
		} else {
			out.Data[2*i] = 1
		}
	}
	return out
}

// Len returns the number of pixels.
func (c *ClassMap) Len() int {
	return c.Width * c.Height
}

// Pair returns the (background, foreground) values of pixel i.
func (c *ClassMap) Pair(i int) (bg, fg float64) {
	return c.Data[2*i], c.Data[2*i+1]
}

// Matrix flattens the map into an (H·W)×2 matrix, one row per pixel.
func (c *ClassMap) Matrix() *mat.Dense {
	data := make([]float64, len(c.Data))
	copy(data, c.Data)
	return mat.NewDense(c.Len(), 2, data)
}

// Channel extracts one channel as a grid.
func (c *ClassMap) Channel(ch int) *Grid {
	g := NewGrid(c.Width, c.Height)
	for i := range g.Pix {
		g.Pix[i] = c.Data[2*i+ch]
	}
	return g
}

// FlipV returns the map with its rows in reverse order.
func (c *ClassMap) FlipV() *ClassMap {
	out := NewClassMap(c.Width, c.Height)
	row := c.Width * 2
	for y := 0; y < c.Height; y++ {
		copy(out.Data[(c.Height-1-y)*row:(c.Height-y)*row], c.Data[y*row:(y+1)*row])
	}
	return out
}
