package layers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
)

type AttentionKind int

const (
	// ScaledDot scores key i as q·k_i / sqrt(d).
	ScaledDot AttentionKind = iota
	// Additive scores key i as mean_d tanh(k_i[d]); the query is unused.
	Additive
)

func (k AttentionKind) String() string {
	switch k {
	case ScaledDot:
		return "dot"
	case Additive:
		return "additive"
	}
	return fmt.Sprintf("AttentionKind(%d)", int(k))
}

func ParseAttentionKind(s string) (AttentionKind, error) {
	switch s {
	case "dot", "":
		return ScaledDot, nil
	case "additive":
		return Additive, nil
	}
	return 0, fmt.Errorf("unknown attention kind %q: %w", s, utils.ErrInvalidInput)
}

// Attention has no learnable parameters; it weights encoder states by
// their similarity to the decoder query.
type Attention struct {
	Kind AttentionKind
}

func NewAttention(kind AttentionKind) *Attention {
	return &Attention{Kind: kind}
}

func (a *Attention) raw(query *mat.Dense, key *mat.Dense) float64 {
	kd := utils.ColData(key)
	switch a.Kind {
	case Additive:
		s := 0.0
		for _, v := range kd {
			s += math.Tanh(v)
		}
		return s / float64(len(kd))
	default:
		return floats.Dot(utils.ColData(query), kd) / math.Sqrt(float64(len(kd)))
	}
}

// Score returns softmax-normalized weights over keys. mask[i] == false
// excludes key i (weight 0); a nil mask keeps every key.
func (a *Attention) Score(query *mat.Dense, keys []*mat.Dense, mask []bool) ([]float64, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("attention over zero keys: %w", utils.ErrInvalidInput)
	}
	qr, _ := query.Dims()
	scores := make([]float64, len(keys))
	for i, k := range keys {
		kr, kc := k.Dims()
		if kc != 1 || (a.Kind == ScaledDot && kr != qr) {
			return nil, fmt.Errorf("attention key %d is (%dx%d), query has %d rows: %w", i, kr, kc, qr, utils.ErrShapeMismatch)
		}
		scores[i] = a.raw(query, k)
	}
	return utils.MaskedSoftmax(scores, mask)
}

// Combine returns Σ_i w_i v_i.
func Combine(weights []float64, values []*mat.Dense) (*mat.Dense, error) {
	if len(weights) != len(values) || len(values) == 0 {
		return nil, fmt.Errorf("combine: %d weights for %d values: %w", len(weights), len(values), utils.ErrShapeMismatch)
	}
	r, _ := values[0].Dims()
	ctx := mat.NewDense(r, 1, nil)
	var t mat.Dense
	for i, v := range values {
		if vr, vc := v.Dims(); vr != r || vc != 1 {
			return nil, fmt.Errorf("combine: value %d is (%dx%d), want (%dx1): %w", i, vr, vc, r, utils.ErrShapeMismatch)
		}
		if weights[i] == 0 {
			continue
		}
		t.Scale(weights[i], v)
		ctx.Add(ctx, &t)
		t.Reset()
	}
	return ctx, nil
}

type AttentionCache struct {
	Query        *mat.Dense
	Keys, Values []*mat.Dense
	Weights      []float64
}

// Forward scores the keys and combines the values into a context column.
func (a *Attention) Forward(query *mat.Dense, keys, values []*mat.Dense, mask []bool) (*mat.Dense, *AttentionCache, error) {
	w, err := a.Score(query, keys, mask)
	if err != nil {
		return nil, nil, err
	}
	ctx, err := Combine(w, values)
	if err != nil {
		return nil, nil, err
	}
	return ctx, &AttentionCache{Query: query, Keys: keys, Values: values, Weights: w}, nil
}

// Backward maps dL/dctx to gradients for the query, every key and every
// value. Masked positions receive zero.
func (a *Attention) Backward(cache *AttentionCache, dCtx *mat.Dense) (dQuery *mat.Dense, dKeys, dValues []*mat.Dense) {
	n := len(cache.Keys)
	dc := utils.ColData(dCtx)

	dW := make([]float64, n)
	dValues = make([]*mat.Dense, n)
	for i, v := range cache.Values {
		dW[i] = floats.Dot(dc, utils.ColData(v))
		var dv mat.Dense
		dv.Scale(cache.Weights[i], dCtx)
		dValues[i] = &dv
	}
	dS := utils.SoftmaxBackward(dW, cache.Weights)

	qr, _ := cache.Query.Dims()
	dQuery = mat.NewDense(qr, 1, nil)
	dKeys = make([]*mat.Dense, n)
	for i, k := range cache.Keys {
		kr, _ := k.Dims()
		dk := mat.NewDense(kr, 1, nil)
		switch a.Kind {
		case Additive:
			for d := 0; d < kr; d++ {
				t := math.Tanh(k.At(d, 0))
				dk.Set(d, 0, dS[i]*(1-t*t)/float64(kr))
			}
		default:
			s := dS[i] / math.Sqrt(float64(kr))
			var t mat.Dense
			t.Scale(s, k)
			dQuery.Add(dQuery, &t)
			dk.Scale(s, cache.Query)
		}
		dKeys[i] = dk
	}
	return dQuery, dKeys, dValues
}

func (a *Attention) Parameters() []*optimizations.Param { return nil }
