package layers

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
)

// Dense is y = W x + b.
type Dense struct {
	Inputs, Outputs int
	W, B            *optimizations.Param
}

func NewDense(rng *rand.Rand, name string, inputs, outputs int) *Dense {
	return &Dense{
		Inputs:  inputs,
		Outputs: outputs,
		W:       optimizations.NewParam(name+".W", mat.NewDense(outputs, inputs, utils.RandomArray(rng, outputs*inputs, float64(inputs)))),
		B:       optimizations.NewParam(name+".b", mat.NewDense(outputs, 1, nil)),
	}
}

// Forward: (Inputs x 1) -> (Outputs x 1)
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	if r, c := x.Dims(); r != d.Inputs || c != 1 {
		panic(fmt.Errorf("dense forward: %w: input (%dx%d), want (%dx1)", utils.ErrShapeMismatch, r, c, d.Inputs))
	}
	var y mat.Dense
	y.Mul(d.W.W, x)
	y.Add(&y, d.B.W)
	return &y
}

// Backward accumulates dW = dY xᵀ, db = dY and returns Wᵀ dY.
func (d *Dense) Backward(x, dY *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(dY, x.T())
	d.W.Accumulate(&dw)
	d.B.Accumulate(dY)

	var dX mat.Dense
	dX.Mul(d.W.W.T(), dY)
	return &dX
}

func (d *Dense) Parameters() []*optimizations.Param {
	return []*optimizations.Param{d.W, d.B}
}

func (d *Dense) ShareForGrads() *Dense {
	return &Dense{Inputs: d.Inputs, Outputs: d.Outputs, W: d.W.ShareForGrads(), B: d.B.ShareForGrads()}
}
