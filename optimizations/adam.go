package optimizations

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/utils"
)

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	utils.MustSameShape("adamUpdateInPlace: grad", p, g)
	utils.MustSameShape("adamUpdateInPlace: m", p, m)
	utils.MustSameShape("adamUpdateInPlace: v", p, v)
	pr, pc := p.Dims()
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			denom := math.Sqrt(vhat) + eps
			wdTerm := weightDecay * p.At(i, j)
			update := mhat/denom + wdTerm
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

type adamState struct {
	M, V *mat.Dense
}

// Adam keeps first/second moment estimates per param. Gradients are
// clipped the same way SGD clips them before the moment update.
type Adam struct {
	LearningRate float64
	MaxNorm      float64
	GlobalClip   bool
	Beta1, Beta2 float64
	Eps          float64
	WeightDecay  float64

	T     int
	state map[*Param]*adamState
}

func NewAdam(lr, maxNorm, beta1, beta2, eps, weightDecay float64) *Adam {
	return &Adam{
		LearningRate: lr,
		MaxNorm:      maxNorm,
		Beta1:        beta1,
		Beta2:        beta2,
		Eps:          eps,
		WeightDecay:  weightDecay,
		state:        map[*Param]*adamState{},
	}
}

func (a *Adam) Step(ps []*Param) {
	if a.state == nil {
		a.state = map[*Param]*adamState{}
	}
	clipAll(ps, a.MaxNorm, a.GlobalClip)
	a.T++
	for _, p := range ps {
		if p.Frozen {
			p.ZeroGrad()
			continue
		}
		st, ok := a.state[p]
		if !ok {
			st = &adamState{M: utils.ZerosLike(p.W), V: utils.ZerosLike(p.W)}
			a.state[p] = st
		}
		// weight decay only on matrices, not bias columns
		wd := a.WeightDecay
		if _, c := p.W.Dims(); c == 1 {
			wd = 0
		}
		AdamUpdateInPlace(p.W, p.Grad, st.M, st.V, a.T, a.LearningRate, a.Beta1, a.Beta2, a.Eps, wd)
		p.ZeroGrad()
	}
}

// NewOptimizer builds the optimizer named by kind ("sgd" or "adam").
func NewOptimizer(kind string, lr, maxNorm float64, globalClip bool, beta1, beta2, eps, weightDecay float64) (Optimizer, error) {
	switch kind {
	case "sgd", "":
		return &SGD{LearningRate: lr, MaxNorm: maxNorm, GlobalClip: globalClip}, nil
	case "adam":
		a := NewAdam(lr, maxNorm, beta1, beta2, eps, weightDecay)
		a.GlobalClip = globalClip
		return a, nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", kind)
}
