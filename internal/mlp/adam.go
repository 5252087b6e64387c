package mlp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam implements the Adam optimiser with bias correction.
type Adam struct {
	LR    float64 `json:"lr" yaml:"lr"`
	Beta1 float64 `json:"beta1" yaml:"beta1"`
	Beta2 float64 `json:"beta2" yaml:"beta2"`
	Eps   float64 `json:"eps" yaml:"eps"`

	step  int
	state map[*Param]*moments
}

type moments struct {
	m, v *mat.Dense
}

// NewAdam returns an optimiser with learning rate lr and the usual
// β1 = 0.9, β2 = 0.999, ε = 1e-8.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Steps reports how many updates have been applied.
func (a *Adam) Steps() int {
	return a.step
}

// Step updates every parameter from its accumulated gradient.
func (a *Adam) Step(params []*Param) {
	if a.state == nil {
		a.state = make(map[*Param]*moments)
	}
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range params {
		st, ok := a.state[p]
		if !ok {
			r, c := p.Value.Dims()
			st = &moments{m: mat.NewDense(r, c, nil), v: mat.NewDense(r, c, nil)}
			a.state[p] = st
		}
		r, c := p.Value.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := p.Grad.At(i, j)
				m := a.Beta1*st.m.At(i, j) + (1-a.Beta1)*g
				v := a.Beta2*st.v.At(i, j) + (1-a.Beta2)*g*g
				st.m.Set(i, j, m)
				st.v.Set(i, j, v)
				mhat := m / bc1
				vhat := v / bc2
				p.Value.Set(i, j, p.Value.At(i, j)-a.LR*mhat/(math.Sqrt(vhat)+a.Eps))
			}
		}
	}
}
