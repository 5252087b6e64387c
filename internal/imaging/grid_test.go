package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"
)

func TestFlattenUnflatten_RoundTrip(t *testing.T) {
	g, err := GridFromRows([][]float64{
		{1, 2, 3},
		{4, 5, 6},
	})
	if err != nil {
		t.Fatalf("GridFromRows failed: %v", err)
	}

	flat := g.Flatten()
	want := []float64{1, 2, 3, 4, 5, 6}
	for i := range want {
		if flat[i] != want[i] {
			t.Fatalf("Flatten[%d]: got %v, want %v", i, flat[i], want[i])
		}
	}

	// Flatten must copy.
	flat[0] = 99
	if g.At(0, 0) != 1 {
		t.Error("Flatten aliased the grid storage")
	}
	flat[0] = 1

	back, err := Unflatten(3, 2, flat)
	if err != nil {
		t.Fatalf("Unflatten failed: %v", err)
	}
	if !back.Equal(g) {
		t.Error("Unflatten(Flatten(g)) != g")
	}
}

func TestUnflatten_ShapeMismatch(t *testing.T) {
	_, err := Unflatten(3, 3, make([]float64, 8))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name string
		g    *Grid
		ok   bool
	}{
		{"well formed", NewGrid(4, 3), true},
		{"zero area", NewGrid(0, 0), true},
		{"short pix", &Grid{Width: 4, Height: 4, Pix: make([]float64, 5)}, false},
		{"long pix", &Grid{Width: 2, Height: 2, Pix: make([]float64, 5)}, false},
		{"negative width", &Grid{Width: -2, Height: -2, Pix: make([]float64, 4)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("got %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestGridFromRows_Ragged(t *testing.T) {
	_, err := GridFromRows([][]float64{{1, 2}, {3}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}

func TestGrid_FlipV(t *testing.T) {
	g, _ := GridFromRows([][]float64{
		{1, 2},
		{3, 4},
		{5, 6},
	})
	f := g.FlipV()
	want, _ := GridFromRows([][]float64{
		{5, 6},
		{3, 4},
		{1, 2},
	})
	if !f.Equal(want) {
		t.Errorf("FlipV: got %v, want %v", f.Pix, want.Pix)
	}
	if !f.FlipV().Equal(g) {
		t.Error("FlipV is not an involution")
	}
}

func TestGrid_Masked(t *testing.T) {
	g, _ := GridFromRows([][]float64{{0.5, 0.7}, {0.2, 0.9}})
	m := NewMask(2, 2)
	m.Set(1, 0, true)
	m.Set(1, 1, true)

	out, err := g.Masked(m)
	if err != nil {
		t.Fatalf("Masked failed: %v", err)
	}
	want := []float64{0, 0.7, 0, 0.9}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Errorf("pixel %d: got %v, want %v", i, out.Pix[i], want[i])
		}
	}

	if _, err := g.Masked(NewMask(3, 2)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("mismatched mask: got %v, want ErrShapeMismatch", err)
	}
}

func TestGrid_Equal_Bitwise(t *testing.T) {
	a, _ := Unflatten(1, 1, []float64{0})
	b, _ := Unflatten(1, 1, []float64{math.Copysign(0, -1)})
	if a.Equal(b) {
		t.Error("Equal treated +0 and -0 as bit-identical")
	}
}

func TestGrid_ToGray(t *testing.T) {
	g, _ := GridFromRows([][]float64{{0, 0.5, 1, 2}})
	img := g.ToGray(0, 1)
	want := []uint8{0, 128, 255, 255}
	for x, w := range want {
		if got := img.GrayAt(x, 0).Y; got != w {
			t.Errorf("x=%d: got %d, want %d", x, got, w)
		}
	}

	flat := g.ToGray(3, 3)
	for x := 0; x < 4; x++ {
		if flat.GrayAt(x, 0).Y != 0 {
			t.Errorf("degenerate range should render black at x=%d", x)
		}
	}
}

func TestFromImage_RGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{200, 200, 200, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})

	g := FromImage(img)
	if g.At(0, 0) != 200 || g.At(1, 0) != 0 {
		t.Errorf("got %v, want [200 0]", g.Pix)
	}
}

func TestFromImage_SubImageOffset(t *testing.T) {
	base := image.NewGray(image.Rect(0, 0, 4, 4))
	base.SetGray(2, 2, color.Gray{Y: 77})
	sub := base.SubImage(image.Rect(2, 2, 4, 4))

	g := FromImage(sub)
	if g.Width != 2 || g.Height != 2 {
		t.Fatalf("dimensions: got %dx%d, want 2x2", g.Width, g.Height)
	}
	if g.At(0, 0) != 77 {
		t.Errorf("origin pixel: got %v, want 77", g.At(0, 0))
	}
}

func TestMask_Components(t *testing.T) {
	// Two diagonal touching pixels plus an isolated one:
	//
	//	X . .
	//	. X .
	//	. . . X  (width 4)
	m := NewMask(4, 3)
	m.Set(0, 0, true)
	m.Set(1, 1, true)
	m.Set(3, 2, true)

	tests := []struct {
		name  string
		conn  Connectivity
		sizes []int
	}{
		{"8-connected", Connectivity8, []int{2, 1}},
		{"4-connected", Connectivity4, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions, err := m.Components(tt.conn)
			if err != nil {
				t.Fatalf("Components failed: %v", err)
			}
			if len(regions) != len(tt.sizes) {
				t.Fatalf("got %d regions, want %d", len(regions), len(tt.sizes))
			}
			for i, r := range regions {
				if len(r) != tt.sizes[i] {
					t.Errorf("region %d: got %d pixels, want %d", i, len(r), tt.sizes[i])
				}
			}
		})
	}
}

func TestMask_Components_InvalidConnectivity(t *testing.T) {
	if _, err := NewMask(2, 2).Components(Connectivity(6)); err == nil {
		t.Error("expected error for connectivity 6")
	}
}

func TestMask_Components_LargeRegion(t *testing.T) {
	// A full 300x300 mask is a single region and must not overflow anything.
	m := NewMask(300, 300)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	regions, err := m.Components(Connectivity8)
	if err != nil {
		t.Fatalf("Components failed: %v", err)
	}
	if len(regions) != 1 || len(regions[0]) != 90000 {
		t.Errorf("got %d regions, want a single region of 90000 pixels", len(regions))
	}
}

func TestOneHot_ChannelsSumToOne(t *testing.T) {
	m := NewMask(3, 2)
	m.Set(1, 0, true)
	m.Set(2, 1, true)

	oh := OneHot(m)
	for i := 0; i < oh.Len(); i++ {
		bg, fg := oh.Pair(i)
		if bg+fg != 1 {
			t.Errorf("pixel %d: channels sum to %v", i, bg+fg)
		}
		if (fg == 1) != m.Pix[i] {
			t.Errorf("pixel %d: foreground channel %v disagrees with mask %v", i, fg, m.Pix[i])
		}
	}
}

func TestClassMap_MatrixRoundTrip(t *testing.T) {
	cm := NewClassMap(2, 2)
	for i := range cm.Data {
		cm.Data[i] = float64(i)
	}

	back, err := ClassMapFromMatrix(2, 2, cm.Matrix())
	if err != nil {
		t.Fatalf("ClassMapFromMatrix failed: %v", err)
	}
	for i := range cm.Data {
		if back.Data[i] != cm.Data[i] {
			t.Errorf("Data[%d]: got %v, want %v", i, back.Data[i], cm.Data[i])
		}
	}

	fg := cm.Channel(Foreground)
	if fg.At(1, 1) != 7 {
		t.Errorf("foreground channel at (1,1): got %v, want 7", fg.At(1, 1))
	}

	if _, err := ClassMapFromMatrix(3, 2, cm.Matrix()); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}

func TestSaveMask(t *testing.T) {
	m := NewMask(4, 4)
	m.Set(1, 1, true)
	path := filepath.Join(t.TempDir(), "out", "mask.png")

	if err := SaveMask(path, m); err != nil {
		t.Fatalf("SaveMask failed: %v", err)
	}

	g, err := NewImageCache().LoadGrid(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	back := MaskFromGrid(g, 127)
	if !back.Equal(m) {
		t.Error("saved mask does not round-trip")
	}
}

func TestEncodePNG(t *testing.T) {
	enc, err := EncodePNG(NewMask(5, 3).ToGray())
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if enc.Width != 5 || enc.Height != 3 || enc.MimeType != "image/png" || enc.ImageBase64 == "" {
		t.Errorf("unexpected encoding: %+v", enc)
	}
}
