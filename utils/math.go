package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Vectors are (n x 1) *mat.Dense columns.

// mapCol returns fn applied to every element of m.
func mapCol(m mat.Matrix, fn func(v float64) float64) *mat.Dense {
	var o mat.Dense
	o.Apply(func(_, _ int, v float64) float64 { return fn(v) }, m)
	return &o
}

// MustSameShape panics with ErrShapeMismatch when a and b differ in shape.
func MustSameShape(op string, a, b mat.Matrix) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Errorf("%s: %w (%dx%d vs %dx%d)", op, ErrShapeMismatch, ar, ac, br, bc))
	}
}

// -------- Gate activations --------

// Clamp bounds a pre-activation so exp() never overflows into Inf/NaN.
func Clamp(x, limit float64) float64 {
	if limit <= 0 {
		return x
	}
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// SigmoidCol applies a clamped sigmoid to every element.
func SigmoidCol(m mat.Matrix, limit float64) *mat.Dense {
	return mapCol(m, func(v float64) float64 { return Sigmoid(Clamp(v, limit)) })
}

// TanhCol applies a clamped tanh to every element.
func TanhCol(m mat.Matrix, limit float64) *mat.Dense {
	return mapCol(m, func(v float64) float64 { return math.Tanh(Clamp(v, limit)) })
}

// SigmoidPrimeFromOut returns s*(1-s) given s = sigmoid(x).
func SigmoidPrimeFromOut(s *mat.Dense) *mat.Dense {
	return mapCol(s, func(v float64) float64 { return v * (1 - v) })
}

// TanhPrimeFromOut returns 1-t^2 given t = tanh(x).
func TanhPrimeFromOut(t *mat.Dense) *mat.Dense {
	return mapCol(t, func(v float64) float64 { return 1 - v*v })
}

// -------- Column helpers --------

// Col wraps a copy of vals as an (n x 1) column.
func Col(vals []float64) *mat.Dense {
	return mat.NewDense(len(vals), 1, append([]float64(nil), vals...))
}

// ColData returns the column's values (copy).
func ColData(v *mat.Dense) []float64 {
	r, c := v.Dims()
	if c != 1 {
		panic(fmt.Errorf("ColData: %w: expected (r x 1), got (%dx%d)", ErrShapeMismatch, r, c))
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = v.At(i, 0)
	}
	return out
}

// StackCols concatenates column vectors top to bottom.
func StackCols(cols ...*mat.Dense) *mat.Dense {
	n := 0
	for _, c := range cols {
		r, cc := c.Dims()
		if cc != 1 {
			panic(fmt.Errorf("StackCols: %w: expected column vectors", ErrShapeMismatch))
		}
		n += r
	}
	out := mat.NewDense(n, 1, nil)
	row := 0
	for _, c := range cols {
		r, _ := c.Dims()
		out.Slice(row, row+r, 0, 1).(*mat.Dense).Copy(c)
		row += r
	}
	return out
}

// SplitCol cuts an (n x 1) column into consecutive pieces of the given sizes.
func SplitCol(v *mat.Dense, sizes ...int) []*mat.Dense {
	r, _ := v.Dims()
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != r {
		panic(fmt.Errorf("SplitCol: %w: sizes sum to %d, column has %d rows", ErrShapeMismatch, total, r))
	}
	out := make([]*mat.Dense, len(sizes))
	row := 0
	for i, s := range sizes {
		out[i] = mat.DenseCopyOf(v.Slice(row, row+s, 0, 1))
		row += s
	}
	return out
}

// ArgMax returns the index of the largest entry of a column, lowest index on ties.
func ArgMax(v *mat.Dense) int {
	return floats.MaxIdx(ColData(v))
}

// AllFinite reports whether every element is neither NaN nor ±Inf.
func AllFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// ---------- Softmax variants ----------

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for logits -> probabilities in the CE loss.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// MaskedSoftmax normalizes scores over the entries where valid[i] is true
// (all entries when valid is nil). Invalid entries get weight 0.
// Returns ErrInvalidInput if nothing is valid.
func MaskedSoftmax(scores []float64, valid []bool) ([]float64, error) {
	if valid != nil && len(valid) != len(scores) {
		return nil, fmt.Errorf("MaskedSoftmax: %w: %d scores, %d mask entries", ErrShapeMismatch, len(scores), len(valid))
	}
	mx := math.Inf(-1)
	seen := false
	for i, s := range scores {
		if valid != nil && !valid[i] {
			continue
		}
		seen = true
		if s > mx {
			mx = s
		}
	}
	if !seen {
		return nil, fmt.Errorf("softmax over zero valid entries: %w", ErrInvalidInput)
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		if valid != nil && !valid[i] {
			continue
		}
		e := math.Exp(s - mx)
		out[i] = e
		sum += e
	}
	floats.Scale(1/sum, out)
	return out, nil
}

// SoftmaxBackward for a single softmax row.
// s = sum_k dA[k] * A[k]; dS[j] = A[j] * (dA[j] - s)
func SoftmaxBackward(dA, A []float64) []float64 {
	s := floats.Dot(dA, A)
	dS := make([]float64, len(A))
	for j, a := range A {
		dS[j] = a * (dA[j] - s)
	}
	return dS
}

// ---------- Loss ----------

func CrossEntropyWithIndex(logits *mat.Dense, gold int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("CrossEntropyWithIndex expects (r x 1) logits vector")
	}
	prob := ColVectorSoftmax(logits)
	if gold < 0 || gold >= r {
		gold = 0
	}
	loss := -math.Log(prob.At(gold, 0) + 1e-12)
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		grad.Set(i, 0, prob.At(i, 0))
	}
	grad.Set(gold, 0, grad.At(gold, 0)-1.0)
	return loss, grad
}

// MSEWithIndex is the simplified loss: mean squared error between the raw
// logits and the one-hot target.
func MSEWithIndex(logits *mat.Dense, gold int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("MSEWithIndex expects (r x 1) logits vector")
	}
	n := float64(r)
	loss := 0.0
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		diff := logits.At(i, 0)
		if i == gold {
			diff -= 1
		}
		loss += diff * diff
		grad.Set(i, 0, 2*diff/n)
	}
	return loss / n, grad
}
