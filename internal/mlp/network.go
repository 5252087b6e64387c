package mlp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// ErrShape is returned when an input matrix does not have the expected
// number of columns or rows.
var ErrShape = errors.New("mlp: shape mismatch")

// Layer widths of the classifier.
const (
	InputSize  = 1
	HiddenSize = 9
	OutputSize = 2
)

// Param is one trainable tensor and its accumulated gradient. Both are
// stored as out×in matrices; biases are 1×out.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(r, c, nil),
		Grad:  mat.NewDense(r, c, nil),
	}
}

// Linear is a fully connected layer computing x·Wᵀ + b.
type Linear struct {
	Weight *Param // out×in
	Bias   *Param // 1×out
}

func newLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		Weight: newParam(name+".weight", out, in),
		Bias:   newParam(name+".bias", 1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			l.Weight.Value.Set(i, j, (2*rng.Float64()-1)*bound)
		}
	}
	for j := 0; j < out; j++ {
		l.Bias.Value.Set(0, j, (2*rng.Float64()-1)*bound)
	}
	return l
}

// In returns the input width of the layer.
func (l *Linear) In() int {
	_, c := l.Weight.Value.Dims()
	return c
}

// Out returns the output width of the layer.
func (l *Linear) Out() int {
	r, _ := l.Weight.Value.Dims()
	return r
}

func (l *Linear) forward(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, l.Weight.Value.T())
	r, c := z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z.Set(i, j, z.At(i, j)+l.Bias.Value.At(0, j))
		}
	}
	return &z
}

// backward accumulates parameter gradients for upstream gradient dz given
// the layer input x, and returns the gradient with respect to x.
func (l *Linear) backward(x mat.Matrix, dz *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(dz.T(), x)
	l.Weight.Grad.Add(l.Weight.Grad, &dw)

	r, c := dz.Dims()
	for j := 0; j < c; j++ {
		var s float64
		for i := 0; i < r; i++ {
			s += dz.At(i, j)
		}
		l.Bias.Grad.Set(0, j, l.Bias.Grad.At(0, j)+s)
	}

	var dx mat.Dense
	dx.Mul(dz, l.Weight.Value)
	return &dx
}

// Network is the per-pixel classifier: 1 → 9 → 9 → 2 with ReLU on the hidden
// layers and raw logits on the output. Every pixel is an independent sample.
type Network struct {
	FC1 *Linear
	FC2 *Linear
	Out *Linear
}

// New returns a network initialised from seed with the uniform
// U(-1/√fan_in, 1/√fan_in) scheme for weights and biases.
func New(seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	return &Network{
		FC1: newLinear("fc1", InputSize, HiddenSize, rng),
		FC2: newLinear("fc2", HiddenSize, HiddenSize, rng),
		Out: newLinear("out", HiddenSize, OutputSize, rng),
	}
}

// Params returns the trainable parameters in a fixed order: fc1.weight,
// fc1.bias, fc2.weight, fc2.bias, out.weight, out.bias.
func (n *Network) Params() []*Param {
	return []*Param{
		n.FC1.Weight, n.FC1.Bias,
		n.FC2.Weight, n.FC2.Bias,
		n.Out.Weight, n.Out.Bias,
	}
}

// NumParams returns the total number of scalar parameters.
func (n *Network) NumParams() int {
	var total int
	for _, p := range n.Params() {
		r, c := p.Value.Dims()
		total += r * c
	}
	return total
}

// ZeroGrad clears all accumulated gradients.
func (n *Network) ZeroGrad() {
	for _, p := range n.Params() {
		p.Grad.Zero()
	}
}

// trace keeps the activations of one forward pass for backpropagation.
type trace struct {
	x      mat.Matrix
	a1, h1 *mat.Dense
	a2, h2 *mat.Dense
	logits *mat.Dense
}

func relu(m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, m)
	return &out
}

// reluGrad zeroes entries of d where the pre-activation a is not positive.
func reluGrad(d, a *mat.Dense) {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.At(i, j) <= 0 {
				d.Set(i, j, 0)
			}
		}
	}
}

func (n *Network) forward(x mat.Matrix) (*trace, error) {
	rows, cols := x.Dims()
	if cols != InputSize || rows == 0 {
		return nil, fmt.Errorf("input %dx%d, want Nx%d: %w", rows, cols, InputSize, ErrShape)
	}
	t := &trace{x: x}
	t.a1 = n.FC1.forward(x)
	t.h1 = relu(t.a1)
	t.a2 = n.FC2.forward(t.h1)
	t.h2 = relu(t.a2)
	t.logits = n.Out.forward(t.h2)
	return t, nil
}

// Forward maps an N×1 column of feature values to N×2 logits
// (background, foreground).
func (n *Network) Forward(x mat.Matrix) (*mat.Dense, error) {
	t, err := n.forward(x)
	if err != nil {
		return nil, err
	}
	return t.logits, nil
}

// ForwardGrid classifies every pixel of a feature map. The grid is flattened
// row-major to (H·W)×1 and the logits are reshaped back to H×W×2.
func (n *Network) ForwardGrid(g *imaging.Grid) (*imaging.ClassMap, error) {
	if g == nil || g.Empty() {
		return nil, fmt.Errorf("empty feature map: %w", ErrShape)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("feature map (%v): %w", err, ErrShape)
	}
	logits, err := n.Forward(g.Column())
	if err != nil {
		return nil, err
	}
	return imaging.ClassMapFromMatrix(g.Width, g.Height, logits)
}

// Backward runs a forward pass on x, evaluates loss against targets and
// accumulates the parameter gradients. It returns the loss value. Gradients
// are added to whatever is already stored; call ZeroGrad between steps.
func (n *Network) Backward(x mat.Matrix, targets *mat.Dense, loss WeightedBCE) (float64, error) {
	return n.BackwardWeighted(x, targets, loss, 1)
}

// BackwardWeighted is Backward with the loss scaled by weight. Calling it for
// every image of a batch with weight = pixels(image)/pixels(batch) yields the
// gradient of the mean loss over all pixels of the batch without
// materialising the batch as one matrix.
func (n *Network) BackwardWeighted(x mat.Matrix, targets *mat.Dense, loss WeightedBCE, weight float64) (float64, error) {
	t, err := n.forward(x)
	if err != nil {
		return 0, err
	}
	value, dz, err := loss.Gradient(t.logits, targets)
	if err != nil {
		return 0, err
	}
	if weight != 1 {
		dz.Scale(weight, dz)
	}

	dh2 := n.Out.backward(t.h2, dz)
	reluGrad(dh2, t.a2)
	dh1 := n.FC2.backward(t.h1, dh2)
	reluGrad(dh1, t.a1)
	n.FC1.backward(t.x, dh1)
	return value, nil
}
