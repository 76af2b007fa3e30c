package optimizations

import (
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/utils"
)

// Param is one learnable tensor and its gradient accumulator.
// Grad always has W's shape; layers add into it during backward and the
// optimizer consumes and zeroes it.
type Param struct {
	Name   string
	W      *mat.Dense
	Grad   *mat.Dense
	Frozen bool
}

func NewParam(name string, w *mat.Dense) *Param {
	return &Param{Name: name, W: w, Grad: utils.ZerosLike(w)}
}

// ZeroGrad resets the accumulator.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Accumulate adds g into the accumulator. Frozen params ignore it.
func (p *Param) Accumulate(g mat.Matrix) {
	if p.Frozen {
		return
	}
	utils.MustSameShape("Param.Accumulate "+p.Name, p.Grad, g)
	p.Grad.Add(p.Grad, g)
}

// ShareForGrads returns a Param that reads the same W but owns a private
// Grad, for per-worker gradient computation.
func (p *Param) ShareForGrads() *Param {
	return &Param{Name: p.Name, W: p.W, Grad: utils.ZerosLike(p.W), Frozen: p.Frozen}
}

// GradsFinite reports whether every accumulator is free of NaN/Inf.
func GradsFinite(ps []*Param) bool {
	for _, p := range ps {
		if !utils.AllFinite(p.Grad) {
			return false
		}
	}
	return true
}

// ZeroGrads resets every accumulator.
func ZeroGrads(ps []*Param) {
	for _, p := range ps {
		p.ZeroGrad()
	}
}

// Optimizer applies one update to every param from its accumulated
// gradient, then zeroes the gradients.
type Optimizer interface {
	Step(ps []*Param)
}

// Clip returns g rescaled by min(1, maxNorm/||g||). g is not modified.
func Clip(g *mat.Dense, maxNorm float64) *mat.Dense {
	out := mat.DenseCopyOf(g)
	utils.ClipGrads(maxNorm, out)
	return out
}

// clipAll clips every trainable gradient in place, per tensor or by joint norm.
func clipAll(ps []*Param, maxNorm float64, global bool) {
	if maxNorm <= 0 {
		return
	}
	if global {
		grads := make([]*mat.Dense, 0, len(ps))
		for _, p := range ps {
			if !p.Frozen {
				grads = append(grads, p.Grad)
			}
		}
		if s := utils.ClipGrads(maxNorm, grads...); s < 1.0 {
			utils.Debugf("optimizer: clipped grads by %.4f", s)
		}
		return
	}
	for _, p := range ps {
		if !p.Frozen {
			utils.ClipGrads(maxNorm, p.Grad)
		}
	}
}
