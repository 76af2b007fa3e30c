package optimizations

import "gonum.org/v1/gonum/mat"

// SGD is plain gradient descent with gradient-norm clipping:
// W <- W - lr * clip(G, MaxNorm).
type SGD struct {
	LearningRate float64
	MaxNorm      float64
	GlobalClip   bool // clip by the joint norm of all grads instead of per tensor
}

// Update applies one step to w from gradient g. g is left untouched.
func (o *SGD) Update(w, g *mat.Dense) {
	var step mat.Dense
	if o.GlobalClip {
		step.Scale(o.LearningRate, g) // already clipped jointly by Step
	} else {
		step.Scale(o.LearningRate, Clip(g, o.MaxNorm))
	}
	w.Sub(w, &step)
}

func (o *SGD) Step(ps []*Param) {
	if o.GlobalClip {
		clipAll(ps, o.MaxNorm, true)
	}
	for _, p := range ps {
		if !p.Frozen {
			o.Update(p.W, p.Grad)
		}
		p.ZeroGrad()
	}
}
