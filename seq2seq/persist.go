package seq2seq

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

type paramData struct {
	Name       string
	Rows, Cols int
	Data       []float64
	Frozen     bool
}

type modelData struct {
	Config params.TrainingConfig
	Vocab  []string
	Params []paramData
}

// Save writes the config, the vocabulary and every Param to filename.
func Save(m *Model, filename string) error {
	data := modelData{
		Config: m.Config,
		Vocab:  append([]string(nil), m.Vocab.IDToToken...),
	}
	for _, p := range m.Parameters() {
		r, c := p.W.Dims()
		raw := mat.DenseCopyOf(p.W).RawMatrix()
		data.Params = append(data.Params, paramData{
			Name:   p.Name,
			Rows:   r,
			Cols:   c,
			Data:   append([]float64(nil), raw.Data...),
			Frozen: p.Frozen,
		})
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

// Load rebuilds a model saved by Save. Every Param must match the shape
// and name the config implies, otherwise ErrShapeMismatch.
func Load(filename string) (*Model, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var data modelData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}

	m, err := NewModel(data.Config, IO.NewVocabulary(data.Vocab))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	ps := m.Parameters()
	if len(ps) != len(data.Params) {
		return nil, fmt.Errorf("load %s: %d params in file, model has %d: %w", filename, len(data.Params), len(ps), utils.ErrShapeMismatch)
	}
	for i, p := range ps {
		pd := data.Params[i]
		r, c := p.W.Dims()
		if pd.Name != p.Name || pd.Rows != r || pd.Cols != c || len(pd.Data) != r*c {
			return nil, fmt.Errorf("load %s: param %q (%dx%d) does not fit %q (%dx%d): %w",
				filename, pd.Name, pd.Rows, pd.Cols, p.Name, r, c, utils.ErrShapeMismatch)
		}
		p.W.Copy(mat.NewDense(r, c, pd.Data))
		p.Frozen = pd.Frozen
	}
	return m, nil
}
