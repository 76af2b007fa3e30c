package layers

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()
	param.Set(i, j, w0-eps)
	lm := forward()
	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-5*math.Max(1, math.Abs(numGrad)) {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func randCol(seed uint64, n int) *mat.Dense {
	return mat.NewDense(n, 1, utils.RandomArray(utils.NewRand(seed), n, 1))
}

// r·v
func project(r, v *mat.Dense) float64 {
	return mat.Dot(r.ColView(0), v.ColView(0))
}

// ---- LSTM ----

func TestLSTMHiddenSize(t *testing.T) {
	l := NewLSTM(utils.NewRand(1), "enc", 3, 7, 30)
	st, _ := l.Step(randCol(2, 3), l.ZeroState())
	if r, c := st.H.Dims(); r != 7 || c != 1 {
		t.Fatalf("h is (%dx%d), want (7x1)", r, c)
	}
	if r, c := st.C.Dims(); r != 7 || c != 1 {
		t.Fatalf("c is (%dx%d), want (7x1)", r, c)
	}
	if n := len(l.Parameters()); n != 12 {
		t.Fatalf("got %d params, want 12", n)
	}
}

func TestLSTMStepShapeMismatchPanics(t *testing.T) {
	l := NewLSTM(utils.NewRand(1), "enc", 3, 4, 30)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, utils.ErrShapeMismatch) {
			t.Fatalf("expected ErrShapeMismatch panic, got %v", r)
		}
	}()
	l.Step(randCol(2, 5), l.ZeroState())
}

func TestLSTMGradCheck(t *testing.T) {
	in, hid := 3, 4
	l := NewLSTM(utils.NewRand(7), "enc", in, hid, 30)
	x1, x2 := randCol(11, in), randCol(12, in)
	rH, rC := randCol(13, hid), randCol(14, hid)

	// two steps, loss = rH·h2 + rC·c2
	forward := func() float64 {
		s1, _ := l.Step(x1, l.ZeroState())
		s2, _ := l.Step(x2, s1)
		return project(rH, s2.H) + project(rC, s2.C)
	}

	s1, c1 := l.Step(x1, l.ZeroState())
	_, c2 := l.Step(x2, s1)
	dX2, dH1, dC1 := l.StepBackward(c2, rH, rC)
	dX1, _, _ := l.StepBackward(c1, dH1, dC1)

	for _, p := range l.Parameters() {
		r, c := p.W.Dims()
		finiteDiffCheck(t, p.Name, p.W, p.Grad, forward, r-1, c-1)
		finiteDiffCheck(t, p.Name, p.W, p.Grad, forward, 0, 0)
	}
	finiteDiffCheck(t, "x1", x1, dX1, forward, 1, 0)
	finiteDiffCheck(t, "x2", x2, dX2, forward, 2, 0)
}

// ---- Attention ----

func TestAttentionWeightsSumToOne(t *testing.T) {
	keys := []*mat.Dense{randCol(1, 4), randCol(2, 4), randCol(3, 4), randCol(4, 4)}
	for _, kind := range []AttentionKind{ScaledDot, Additive} {
		a := NewAttention(kind)
		w, err := a.Score(randCol(5, 4), keys, []bool{true, true, false, true})
		if err != nil {
			t.Fatalf("%v: %v", kind, err)
		}
		sum := 0.0
		for _, v := range w {
			if v < 0 {
				t.Fatalf("%v: negative weight %v", kind, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("%v: weights sum to %v", kind, sum)
		}
		if w[2] != 0 {
			t.Fatalf("%v: masked key got weight %v", kind, w[2])
		}
	}
}

func TestAttentionPrefersAlignedKey(t *testing.T) {
	a := NewAttention(ScaledDot)
	keys := []*mat.Dense{utils.Col([]float64{1, 0}), utils.Col([]float64{0, 1})}
	w, err := a.Score(utils.Col([]float64{1, 0}), keys, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !(w[0] > w[1]) {
		t.Fatalf("weights %v: want w0 > w1", w)
	}
	want := math.Exp(1/math.Sqrt2) / (math.Exp(1/math.Sqrt2) + 1)
	if math.Abs(w[0]-want) > 1e-12 {
		t.Fatalf("w0 = %v, want %v", w[0], want)
	}
}

func TestAttentionAllMaskedIsInvalid(t *testing.T) {
	a := NewAttention(ScaledDot)
	keys := []*mat.Dense{randCol(1, 2), randCol(2, 2)}
	_, _, err := a.Forward(randCol(3, 2), keys, keys, []bool{false, false})
	if !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAttentionGradCheck(t *testing.T) {
	d := 3
	for _, kind := range []AttentionKind{ScaledDot, Additive} {
		a := NewAttention(kind)
		q := randCol(21, d)
		keys := []*mat.Dense{randCol(22, d), randCol(23, d), randCol(24, d)}
		values := []*mat.Dense{randCol(25, d), randCol(26, d), randCol(27, d)}
		mask := []bool{true, false, true}
		r := randCol(28, d)

		forward := func() float64 {
			ctx, _, err := a.Forward(q, keys, values, mask)
			if err != nil {
				t.Fatal(err)
			}
			return project(r, ctx)
		}

		_, cache, err := a.Forward(q, keys, values, mask)
		if err != nil {
			t.Fatal(err)
		}
		dQ, dK, dV := a.Backward(cache, r)

		for row := 0; row < d; row++ {
			finiteDiffCheck(t, kind.String()+".query", q, dQ, forward, row, 0)
			for i := range keys {
				finiteDiffCheck(t, kind.String()+".key", keys[i], dK[i], forward, row, 0)
				finiteDiffCheck(t, kind.String()+".value", values[i], dV[i], forward, row, 0)
			}
		}
	}
}

// ---- Dense ----

func TestDenseGradCheck(t *testing.T) {
	d := NewDense(utils.NewRand(3), "out", 4, 5)
	x := randCol(31, 4)
	gold := 2

	forward := func() float64 {
		loss, _ := utils.CrossEntropyWithIndex(d.Forward(x), gold)
		return loss
	}
	_, dY := utils.CrossEntropyWithIndex(d.Forward(x), gold)
	dX := d.Backward(x, dY)

	finiteDiffCheck(t, "W", d.W.W, d.W.Grad, forward, 0, 0)
	finiteDiffCheck(t, "W", d.W.W, d.W.Grad, forward, 4, 3)
	finiteDiffCheck(t, "b", d.B.W, d.B.Grad, forward, gold, 0)
	finiteDiffCheck(t, "x", x, dX, forward, 1, 0)
}

// ---- Embedding ----

func TestEmbeddingLookupAndBackward(t *testing.T) {
	e := NewEmbedding(utils.NewRand(4), 6, 3)
	v, err := e.Lookup(5)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := v.Dims(); r != 3 || c != 1 {
		t.Fatalf("lookup is (%dx%d), want (3x1)", r, c)
	}
	if _, err := e.Lookup(6); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("out of range lookup: err = %v", err)
	}

	e.Backward(5, utils.Col([]float64{1, 2, 3}))
	e.Backward(5, utils.Col([]float64{1, 0, 0}))
	if got := e.Table.Grad.At(5, 0); got != 2 {
		t.Fatalf("grad[5,0] = %v, want 2", got)
	}
	if got := e.Table.Grad.At(4, 0); got != 0 {
		t.Fatalf("grad[4,0] = %v, want 0", got)
	}
}

func TestEmbeddingLoadPretrained(t *testing.T) {
	vocab := IO.NewVocabulary(append(append([]string{}, params.Specials...), "hello", "world"))
	e := NewEmbedding(utils.NewRand(4), vocab.Size(), 2)
	before := mat.DenseCopyOf(e.Table.W)

	src := &IO.VectorTable{D: 2, Vectors: map[string][]float64{"hello": {0.5, -0.5}}}
	n, err := e.LoadPretrained(vocab, src, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("loaded %d rows, want 1", n)
	}
	id := vocab.TokenToID["hello"]
	if e.Table.W.At(id, 0) != 0.5 || e.Table.W.At(id, 1) != -0.5 {
		t.Fatalf("row %d not overwritten: %v", id, mat.Formatted(e.Table.W.RowView(id)))
	}
	w := vocab.TokenToID["world"]
	if e.Table.W.At(w, 0) != before.At(w, 0) {
		t.Fatal("row without a pretrained vector changed")
	}
	if !e.Table.Frozen {
		t.Fatal("pretrained table should be frozen when not trainable")
	}
	e.Backward(id, utils.Col([]float64{1, 1}))
	if e.Table.Grad.At(id, 0) != 0 {
		t.Fatal("frozen table accumulated a gradient")
	}

	if _, err := e.LoadPretrained(vocab, &IO.VectorTable{D: 3}, true); !errors.Is(err, utils.ErrShapeMismatch) {
		t.Fatalf("dim mismatch: err = %v", err)
	}
}
