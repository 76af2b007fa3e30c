package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/layers"
	"github.com/manningwu07/seq2seq/utils"
)

// Encoder runs the LSTM over the embedded source sequence.
type Encoder struct {
	Embed *layers.Embedding
	Cell  *layers.LSTM
}

// EncoderOutput holds every hidden state (the attention keys and values),
// the final (h, c) handed to the decoder, and the per-step caches.
type EncoderOutput struct {
	IDs    []int
	States []*mat.Dense
	Mask   []bool // false at PAD positions
	Final  layers.LSTMState

	caches []*layers.LSTMCache
}

// Forward starts from the zero state and steps once per source id.
func (e *Encoder) Forward(ids []int, padID int) (*EncoderOutput, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("encoder: empty source sequence: %w", utils.ErrInvalidInput)
	}
	out := &EncoderOutput{
		IDs:    ids,
		States: make([]*mat.Dense, len(ids)),
		Mask:   make([]bool, len(ids)),
		caches: make([]*layers.LSTMCache, len(ids)),
	}
	st := e.Cell.ZeroState()
	for t, id := range ids {
		x, err := e.Embed.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("encoder step %d: %w", t, err)
		}
		var cache *layers.LSTMCache
		st, cache = e.Cell.Step(x, st)
		out.States[t] = st.H
		out.Mask[t] = id != padID
		out.caches[t] = cache
	}
	out.Final = st
	return out, nil
}

// Backward runs BPTT from the last step to the first. dStates[t] is the
// gradient reaching h_t through attention (nil means zero); dH and dC are
// the gradients of the final state coming back from the decoder.
func (e *Encoder) Backward(out *EncoderOutput, dStates []*mat.Dense, dH, dC *mat.Dense) {
	dHNext := mat.DenseCopyOf(dH)
	dCNext := dC
	for t := len(out.IDs) - 1; t >= 0; t-- {
		if dStates[t] != nil {
			dHNext.Add(dHNext, dStates[t])
		}
		dX, dHPrev, dCPrev := e.Cell.StepBackward(out.caches[t], dHNext, dCNext)
		e.Embed.Backward(out.IDs[t], dX)
		dHNext, dCNext = dHPrev, dCPrev
	}
}
