package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/layers"
	"github.com/manningwu07/seq2seq/utils"
)

// Decoder predicts one token per step from the previous token, its own
// state and an attention context over the encoder states.
//
//	ctx    = Attention(query=h, keys=values=encoder states)
//	h', c' = LSTM([embed(y); ctx], (h, c))
//	logits = Out([h'; ctx])
type Decoder struct {
	Embed *layers.Embedding
	Cell  *layers.LSTM
	Attn  *layers.Attention
	Out   *layers.Dense
}

// DecoderCache keeps one step's intermediates for StepBackward.
type DecoderCache struct {
	Input int
	attn  *layers.AttentionCache
	lstm  *layers.LSTMCache
	z     *mat.Dense // [h'; ctx]
}

// Step feeds token y. It returns the vocabulary logits and the new state.
func (d *Decoder) Step(y int, state layers.LSTMState, enc *EncoderOutput) (*mat.Dense, layers.LSTMState, *DecoderCache, error) {
	ctx, ac, err := d.Attn.Forward(state.H, enc.States, enc.States, enc.Mask)
	if err != nil {
		return nil, layers.LSTMState{}, nil, fmt.Errorf("decoder attention: %w", err)
	}
	emb, err := d.Embed.Lookup(y)
	if err != nil {
		return nil, layers.LSTMState{}, nil, fmt.Errorf("decoder input: %w", err)
	}
	next, lc := d.Cell.Step(utils.StackCols(emb, ctx), state)
	z := utils.StackCols(next.H, ctx)
	logits := d.Out.Forward(z)
	return logits, next, &DecoderCache{Input: y, attn: ac, lstm: lc, z: z}, nil
}

// StepBackward takes dL/dlogits (nil for an unscored step) plus the
// gradient flowing into this step's output state from the step after it.
// It returns the gradient for the previous state and adds the attention
// gradients for every encoder state into dStates.
func (d *Decoder) StepBackward(c *DecoderCache, dLogits, dHNext, dCNext *mat.Dense, dStates []*mat.Dense) (dHPrev, dCPrev *mat.Dense) {
	H := d.Cell.HiddenSize
	dH := mat.DenseCopyOf(dHNext)
	dCtx := mat.NewDense(H, 1, nil)
	if dLogits != nil {
		parts := utils.SplitCol(d.Out.Backward(c.z, dLogits), H, H)
		dH.Add(dH, parts[0])
		dCtx.Add(dCtx, parts[1])
	}

	dX, dHPrev, dCPrev := d.Cell.StepBackward(c.lstm, dH, dCNext)
	in := utils.SplitCol(dX, d.Embed.Dim, H)
	d.Embed.Backward(c.Input, in[0])
	dCtx.Add(dCtx, in[1])

	dQ, dK, dV := d.Attn.Backward(c.attn, dCtx)
	dHPrev.Add(dHPrev, dQ)
	for i := range dStates {
		if dStates[i] == nil {
			dStates[i] = mat.NewDense(H, 1, nil)
		}
		dStates[i].Add(dStates[i], dK[i])
		dStates[i].Add(dStates[i], dV[i])
	}
	return dHPrev, dCPrev
}
