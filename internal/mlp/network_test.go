package mlp

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// column builds an N×1 input matrix.
func column(values ...float64) *mat.Dense {
	return mat.NewDense(len(values), 1, values)
}

func TestNew_Deterministic(t *testing.T) {
	a, b, c := New(42), New(42), New(43)
	pa, pb, pc := a.Params(), b.Params(), c.Params()
	differ := false
	for i := range pa {
		if !mat.Equal(pa[i].Value, pb[i].Value) {
			t.Errorf("%s differs for the same seed", pa[i].Name)
		}
		if !mat.Equal(pa[i].Value, pc[i].Value) {
			differ = true
		}
	}
	if !differ {
		t.Error("different seeds produced identical networks")
	}
}

func TestNew_InitBounds(t *testing.T) {
	n := New(1)
	tests := []struct {
		p     *Param
		bound float64
	}{
		{n.FC1.Weight, 1},
		{n.FC1.Bias, 1},
		{n.FC2.Weight, 1.0 / 3},
		{n.FC2.Bias, 1.0 / 3},
		{n.Out.Weight, 1.0 / 3},
		{n.Out.Bias, 1.0 / 3},
	}
	for _, tt := range tests {
		r, c := tt.p.Value.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if v := tt.p.Value.At(i, j); math.Abs(v) > tt.bound {
					t.Errorf("%s[%d,%d] = %v exceeds bound %v", tt.p.Name, i, j, v, tt.bound)
				}
			}
		}
	}
}

func TestNetwork_Params(t *testing.T) {
	n := New(0)
	names := []string{"fc1.weight", "fc1.bias", "fc2.weight", "fc2.bias", "out.weight", "out.bias"}
	params := n.Params()
	if len(params) != len(names) {
		t.Fatalf("got %d params, want %d", len(params), len(names))
	}
	for i, p := range params {
		if p.Name != names[i] {
			t.Errorf("param %d: got %s, want %s", i, p.Name, names[i])
		}
	}
	if got := n.NumParams(); got != 128 {
		t.Errorf("NumParams: got %d, want 128", got)
	}
	if n.FC1.In() != 1 || n.FC1.Out() != 9 || n.Out.Out() != 2 {
		t.Error("unexpected layer widths")
	}
}

func TestNetwork_Forward_Shape(t *testing.T) {
	n := New(0)
	logits, err := n.Forward(column(0, 0.5, 1))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if r, c := logits.Dims(); r != 3 || c != 2 {
		t.Errorf("logits: got %dx%d, want 3x2", r, c)
	}

	if _, err := n.Forward(mat.NewDense(3, 2, nil)); !errors.Is(err, ErrShape) {
		t.Errorf("two input columns: got %v, want ErrShape", err)
	}
}

func TestNetwork_Forward_PixelsIndependent(t *testing.T) {
	n := New(7)
	values := []float64{0, 0.1, 0.35, 0.8, 1}
	batch, err := n.Forward(column(values...))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for i, v := range values {
		single, err := n.Forward(column(v))
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		for j := 0; j < 2; j++ {
			if math.Abs(single.At(0, j)-batch.At(i, j)) > 1e-12 {
				t.Errorf("sample %d channel %d: alone %v, in batch %v", i, j, single.At(0, j), batch.At(i, j))
			}
		}
	}
}

func TestNetwork_ForwardGrid_Malformed(t *testing.T) {
	g := &imaging.Grid{Width: 4, Height: 4, Pix: make([]float64, 5)}
	if _, err := New(0).ForwardGrid(g); !errors.Is(err, ErrShape) {
		t.Errorf("got %v, want ErrShape", err)
	}
}

func TestNetwork_ForwardGrid(t *testing.T) {
	n := New(3)
	g, _ := imaging.GridFromRows([][]float64{
		{0, 0.2, 0.4},
		{0.6, 0.8, 1},
	})
	cm, err := n.ForwardGrid(g)
	if err != nil {
		t.Fatalf("ForwardGrid failed: %v", err)
	}
	if cm.Width != 3 || cm.Height != 2 {
		t.Fatalf("shape: got %dx%d, want 3x2", cm.Width, cm.Height)
	}
	flat, _ := n.Forward(column(g.Flatten()...))
	for i := 0; i < g.Len(); i++ {
		bg, fg := cm.Pair(i)
		if bg != flat.At(i, 0) || fg != flat.At(i, 1) {
			t.Errorf("pixel %d: grid (%v,%v), flat (%v,%v)", i, bg, fg, flat.At(i, 0), flat.At(i, 1))
		}
	}

	if _, err := n.ForwardGrid(imaging.NewGrid(0, 0)); !errors.Is(err, ErrShape) {
		t.Errorf("empty grid: got %v, want ErrShape", err)
	}
}

// numericGradient perturbs one parameter entry and differentiates the loss.
func numericGradient(t *testing.T, n *Network, p *Param, i, j int, x, y *mat.Dense, loss WeightedBCE) float64 {
	t.Helper()
	const h = 1e-6
	orig := p.Value.At(i, j)
	eval := func(v float64) float64 {
		p.Value.Set(i, j, v)
		logits, err := n.Forward(x)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		l, err := loss.Loss(logits, y)
		if err != nil {
			t.Fatalf("Loss failed: %v", err)
		}
		return l
	}
	up, down := eval(orig+h), eval(orig-h)
	p.Value.Set(i, j, orig)
	return (up - down) / (2 * h)
}

func TestNetwork_Backward_MatchesNumericGradient(t *testing.T) {
	n := New(11)
	x := column(0.05, 0.3, 0.55, 0.9, 0.72, 0.13)
	y := mat.NewDense(6, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
		0, 1,
		1, 0,
	})
	loss := DefaultLoss()

	n.ZeroGrad()
	if _, err := n.Backward(x, y, loss); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	for _, p := range n.Params() {
		r, c := p.Value.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				want := numericGradient(t, n, p, i, j, x, y, loss)
				got := p.Grad.At(i, j)
				if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
					t.Errorf("%s[%d,%d]: analytic %v, numeric %v", p.Name, i, j, got, want)
				}
			}
		}
	}
}

func TestNetwork_ZeroGrad(t *testing.T) {
	n := New(0)
	y := mat.NewDense(1, 2, []float64{0, 1})
	if _, err := n.Backward(column(0.7), y, DefaultLoss()); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	n.ZeroGrad()
	for _, p := range n.Params() {
		if mat.Norm(p.Grad, 1) != 0 {
			t.Errorf("%s gradient not cleared", p.Name)
		}
	}
}

func TestNetwork_BackwardWeighted_SplitsBatch(t *testing.T) {
	full := New(5)
	split := New(5)
	loss := DefaultLoss()

	x := column(0.1, 0.9, 0.4, 0.0, 0.7)
	y := mat.NewDense(5, 2, []float64{1, 0, 0, 1, 1, 0, 1, 0, 0, 1})
	want, err := full.Backward(x, y, loss)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// Two images of 2 and 3 pixels weighted by their share of the batch.
	l1, err := split.BackwardWeighted(x.Slice(0, 2, 0, 1), mat.DenseCopyOf(y.Slice(0, 2, 0, 2)), loss, 2.0/5)
	if err != nil {
		t.Fatalf("BackwardWeighted failed: %v", err)
	}
	l2, err := split.BackwardWeighted(x.Slice(2, 5, 0, 1), mat.DenseCopyOf(y.Slice(2, 5, 0, 2)), loss, 3.0/5)
	if err != nil {
		t.Fatalf("BackwardWeighted failed: %v", err)
	}
	if got := 2.0/5*l1 + 3.0/5*l2; math.Abs(got-want) > 1e-12 {
		t.Errorf("weighted loss %v, want %v", got, want)
	}
	fp, sp := full.Params(), split.Params()
	for i := range fp {
		if !mat.EqualApprox(fp[i].Grad, sp[i].Grad, 1e-12) {
			t.Errorf("%s gradient differs between full and split batch", fp[i].Name)
		}
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	n := New(99)
	var buf bytes.Buffer
	if err := n.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	back, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for i, p := range n.Params() {
		q := back.Params()[i]
		r, c := p.Value.Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				if math.Float64bits(p.Value.At(a, b)) != math.Float64bits(q.Value.At(a, b)) {
					t.Fatalf("%s[%d,%d]: saved %v, loaded %v", p.Name, a, b, p.Value.At(a, b), q.Value.At(a, b))
				}
			}
		}
	}
}

func TestSaveLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", FoldArtifact(2))
	if filepath.Base(path) != "mlp_fold2.json" {
		t.Fatalf("FoldArtifact: got %s", filepath.Base(path))
	}
	n := New(5)
	if err := n.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	x := column(0.25, 0.75)
	a, _ := n.Forward(x)
	b, _ := back.Forward(x)
	if !mat.Equal(a, b) {
		t.Error("reloaded network produces different logits")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"garbage", "not json"},
		{"version", `{"version": 9, "params": []}`},
		{"tensor count", `{"version": 1, "params": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
