package layers

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
)

// LSTMState is the (h, c) pair carried between steps. Both are (H x 1).
type LSTMState struct {
	H, C *mat.Dense
}

// gate holds W (H x I), U (H x H) and b (H x 1) for one of f, i, g, o.
type gate struct {
	W, U, B *optimizations.Param
}

func newGate(rng *rand.Rand, name string, in, hidden int) gate {
	return gate{
		W: optimizations.NewParam(name+".W", mat.NewDense(hidden, in, utils.RandomArray(rng, hidden*in, float64(in)))),
		U: optimizations.NewParam(name+".U", mat.NewDense(hidden, hidden, utils.RandomArray(rng, hidden*hidden, float64(hidden)))),
		B: optimizations.NewParam(name+".b", mat.NewDense(hidden, 1, nil)),
	}
}

// pre = W x + U h + b
func (g gate) pre(x, h *mat.Dense) *mat.Dense {
	var a, b mat.Dense
	a.Mul(g.W.W, x)
	b.Mul(g.U.W, h)
	a.Add(&a, &b)
	a.Add(&a, g.B.W)
	return &a
}

// backward accumulates dW, dU, db from the pre-activation grad da and adds
// this gate's share of dX and dHPrev.
func (g gate) backward(da, x, hPrev, dX, dHPrev *mat.Dense) {
	var dw, du mat.Dense
	dw.Mul(da, x.T())
	du.Mul(da, hPrev.T())
	g.W.Accumulate(&dw)
	g.U.Accumulate(&du)
	g.B.Accumulate(da)

	var t mat.Dense
	t.Mul(g.W.W.T(), da)
	dX.Add(dX, &t)
	t.Reset()
	t.Mul(g.U.W.T(), da)
	dHPrev.Add(dHPrev, &t)
}

// LSTM is a single hand-written LSTM cell.
//
//	f = σ(Wf x + Uf h + bf)   i = σ(Wi x + Ui h + bi)
//	g = tanh(Wg x + Ug h + bg) o = σ(Wo x + Uo h + bo)
//	c' = f⊙c + i⊙g            h' = o⊙tanh(c')
type LSTM struct {
	InputSize, HiddenSize int
	ClampLimit            float64

	Forget, Input, Cell, Output gate
}

func NewLSTM(rng *rand.Rand, name string, inputSize, hiddenSize int, clampLimit float64) *LSTM {
	return &LSTM{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		ClampLimit: clampLimit,
		Forget:     newGate(rng, name+".f", inputSize, hiddenSize),
		Input:      newGate(rng, name+".i", inputSize, hiddenSize),
		Cell:       newGate(rng, name+".g", inputSize, hiddenSize),
		Output:     newGate(rng, name+".o", inputSize, hiddenSize),
	}
}

func (l *LSTM) ZeroState() LSTMState {
	return LSTMState{H: mat.NewDense(l.HiddenSize, 1, nil), C: mat.NewDense(l.HiddenSize, 1, nil)}
}

// LSTMCache keeps what StepBackward needs from one forward step.
type LSTMCache struct {
	X, HPrev, CPrev *mat.Dense
	F, I, G, O      *mat.Dense
	TanhC           *mat.Dense
}

// Step runs one time step. x must be (InputSize x 1).
func (l *LSTM) Step(x *mat.Dense, prev LSTMState) (LSTMState, *LSTMCache) {
	if r, c := x.Dims(); r != l.InputSize || c != 1 {
		panic(fmt.Errorf("lstm step: %w: input (%dx%d), want (%dx1)", utils.ErrShapeMismatch, r, c, l.InputSize))
	}
	f := utils.SigmoidCol(l.Forget.pre(x, prev.H), l.ClampLimit)
	i := utils.SigmoidCol(l.Input.pre(x, prev.H), l.ClampLimit)
	g := utils.TanhCol(l.Cell.pre(x, prev.H), l.ClampLimit)
	o := utils.SigmoidCol(l.Output.pre(x, prev.H), l.ClampLimit)

	var c, ig mat.Dense
	c.MulElem(f, prev.C)
	ig.MulElem(i, g)
	c.Add(&c, &ig)
	tc := utils.TanhCol(&c, l.ClampLimit)
	var h mat.Dense
	h.MulElem(o, tc)

	cache := &LSTMCache{X: x, HPrev: prev.H, CPrev: prev.C, F: f, I: i, G: g, O: o, TanhC: tc}
	return LSTMState{H: &h, C: &c}, cache
}

// StepBackward takes dL/dh' and dL/dc' for one step, accumulates the twelve
// parameter gradients and returns dL/dx, dL/dh, dL/dc for the inputs.
func (l *LSTM) StepBackward(cache *LSTMCache, dH, dC *mat.Dense) (dX, dHPrev, dCPrev *mat.Dense) {
	// dO = dH ⊙ tanh(c')
	var dO mat.Dense
	dO.MulElem(dH, cache.TanhC)

	// dc' total = dC + dH ⊙ o ⊙ (1 - tanh²c')
	var dCt mat.Dense
	dCt.MulElem(dH, cache.O)
	dCt.MulElem(&dCt, utils.TanhPrimeFromOut(cache.TanhC))
	dCt.Add(&dCt, dC)

	var dF, dI, dG, dCp mat.Dense
	dF.MulElem(&dCt, cache.CPrev)
	dI.MulElem(&dCt, cache.G)
	dG.MulElem(&dCt, cache.I)
	dCp.MulElem(&dCt, cache.F)

	// through the nonlinearities
	dF.MulElem(&dF, utils.SigmoidPrimeFromOut(cache.F))
	dI.MulElem(&dI, utils.SigmoidPrimeFromOut(cache.I))
	dG.MulElem(&dG, utils.TanhPrimeFromOut(cache.G))
	dO.MulElem(&dO, utils.SigmoidPrimeFromOut(cache.O))

	dX = mat.NewDense(l.InputSize, 1, nil)
	dHPrev = mat.NewDense(l.HiddenSize, 1, nil)
	l.Forget.backward(&dF, cache.X, cache.HPrev, dX, dHPrev)
	l.Input.backward(&dI, cache.X, cache.HPrev, dX, dHPrev)
	l.Cell.backward(&dG, cache.X, cache.HPrev, dX, dHPrev)
	l.Output.backward(&dO, cache.X, cache.HPrev, dX, dHPrev)
	return dX, dHPrev, &dCp
}

func (l *LSTM) Parameters() []*optimizations.Param {
	ps := make([]*optimizations.Param, 0, 12)
	for _, g := range []gate{l.Forget, l.Input, l.Cell, l.Output} {
		ps = append(ps, g.W, g.U, g.B)
	}
	return ps
}

// ShareForGrads returns a cell reading the same weights with private grads.
func (l *LSTM) ShareForGrads() *LSTM {
	share := func(g gate) gate {
		return gate{W: g.W.ShareForGrads(), U: g.U.ShareForGrads(), B: g.B.ShareForGrads()}
	}
	return &LSTM{
		InputSize:  l.InputSize,
		HiddenSize: l.HiddenSize,
		ClampLimit: l.ClampLimit,
		Forget:     share(l.Forget),
		Input:      share(l.Input),
		Cell:       share(l.Cell),
		Output:     share(l.Output),
	}
}
