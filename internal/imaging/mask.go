package imaging

import (
	"fmt"
	"image"
)

// Connectivity selects which neighbours join two foreground pixels into the
// same connected component.
type Connectivity int

const (
	// Connectivity4 joins pixels sharing an edge (N, S, E, W).
	Connectivity4 Connectivity = 4

	// Connectivity8 additionally joins diagonal neighbours.
	Connectivity8 Connectivity = 8
)

// Valid reports whether c is one of the supported neighbourhoods.
func (c Connectivity) Valid() bool {
	return c == Connectivity4 || c == Connectivity8
}

// Mask is a binary 2D map stored row-major. It represents threshold masks,
// object masks, predicted segmentations and binarised ground truth.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask allocates an all-false mask.
func NewMask(width, height int) *Mask {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At returns the value at column x, row y.
func (m *Mask) At(x, y int) bool {
	return m.Pix[y*m.Width+x]
}

// Set stores v at column x, row y.
func (m *Mask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether both masks have the same shape and contents.
func (m *Mask) Equal(o *Mask) bool {
	if m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i, v := range m.Pix {
		if v != o.Pix[i] {
			return false
		}
	}
	return true
}

// FlipV returns the mask with its rows in reverse order.
func (m *Mask) FlipV() *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		copy(out.Pix[(m.Height-1-y)*m.Width:(m.Height-y)*m.Width], m.Pix[y*m.Width:(y+1)*m.Width])
	}
	return out
}

// Values returns the mask as 0/1 floats in row-major order.
func (m *Mask) Values() []float64 {
	out := make([]float64, len(m.Pix))
	for i, v := range m.Pix {
		if v {
			out[i] = 1
		}
	}
	return out
}

// ToGray renders true pixels as 255 and false pixels as 0.
func (m *Mask) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			img.Pix[(i/m.Width)*img.Stride+i%m.Width] = 255
		}
	}
	return img
}

// MaskFromGrid binarises a grid: pixels strictly above level are foreground.
// Ground-truth images with 0/255 labels use level 127.
func MaskFromGrid(g *Grid, level float64) *Mask {
	return g.Above(level)
}

// Components labels the connected foreground regions of the mask and returns
// the flat pixel indices of each region in discovery order (row-major scan).
//
// Regions are grown with an explicit stack rather than recursion so that
// vessel trees covering most of a 300×300 image do not exhaust the goroutine
// stack.
func (m *Mask) Components(conn Connectivity) ([][]int, error) {
	if !conn.Valid() {
		return nil, fmt.Errorf("unsupported connectivity %d", conn)
	}

	offsets := [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	if conn == Connectivity8 {
		offsets = append(offsets, [2]int{-1, -1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{1, 1})
	}

	visited := make([]bool, len(m.Pix))
	var regions [][]int

	for start, fg := range m.Pix {
		if !fg || visited[start] {
			continue
		}

		region := make([]int, 0)
		stack := []int{start}
		visited[start] = true

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, p)

			px, py := p%m.Width, p/m.Width
			for _, off := range offsets {
				nx, ny := px+off[0], py+off[1]
				if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
					continue
				}
				n := ny*m.Width + nx
				if m.Pix[n] && !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}

		regions = append(regions, region)
	}

	return regions, nil
}
