package layers

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// Embedding is a (vocab x D) table, row-indexed by token id.
type Embedding struct {
	VocabSize, Dim int
	Table          *optimizations.Param
}

func NewEmbedding(rng *rand.Rand, vocabSize, dim int) *Embedding {
	w := mat.NewDense(vocabSize, dim, utils.RandomArray(rng, vocabSize*dim, float64(dim)))
	return &Embedding{VocabSize: vocabSize, Dim: dim, Table: optimizations.NewParam("embedding", w)}
}

// Lookup returns a (D x 1) copy of row id.
func (e *Embedding) Lookup(id int) (*mat.Dense, error) {
	if id < 0 || id >= e.VocabSize {
		return nil, fmt.Errorf("embedding lookup: id %d outside [0,%d): %w", id, e.VocabSize, utils.ErrInvalidInput)
	}
	return mat.DenseCopyOf(e.Table.W.RowView(id)), nil
}

// Backward adds dX (D x 1) into row id of the gradient. No-op when frozen.
func (e *Embedding) Backward(id int, dX *mat.Dense) {
	if e.Table.Frozen {
		return
	}
	r, c := dX.Dims()
	if r != e.Dim || c != 1 {
		panic(fmt.Errorf("embedding backward: %w: got (%dx%d), want (%dx1)", utils.ErrShapeMismatch, r, c, e.Dim))
	}
	for j := 0; j < e.Dim; j++ {
		e.Table.Grad.Set(id, j, e.Table.Grad.At(id, j)+dX.At(j, 0))
	}
}

// LoadPretrained overwrites rows for words src knows; other rows keep their
// random init. The table is frozen unless trainable is set. Returns the
// number of rows copied.
func (e *Embedding) LoadPretrained(v params.Vocabulary, src IO.VectorSource, trainable bool) (int, error) {
	if src.Dim() != e.Dim {
		return 0, fmt.Errorf("pretrained vectors have dim %d, embedding has %d: %w", src.Dim(), e.Dim, utils.ErrShapeMismatch)
	}
	n := 0
	for id, word := range v.IDToToken {
		if id >= e.VocabSize {
			break
		}
		vec, ok := src.Fetch(word)
		if !ok {
			continue
		}
		if len(vec) != e.Dim {
			return n, fmt.Errorf("pretrained vector for %q has %d values, want %d: %w", word, len(vec), e.Dim, utils.ErrShapeMismatch)
		}
		e.Table.W.SetRow(id, vec)
		n++
	}
	e.Table.Frozen = !trainable
	return n, nil
}

func (e *Embedding) Parameters() []*optimizations.Param {
	return []*optimizations.Param{e.Table}
}

// ShareForGrads returns a table reading the same weights with a private grad.
func (e *Embedding) ShareForGrads() *Embedding {
	return &Embedding{VocabSize: e.VocabSize, Dim: e.Dim, Table: e.Table.ShareForGrads()}
}
