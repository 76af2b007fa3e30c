// Package seq2seq wires the layers into an attention encoder/decoder and
// owns training, greedy generation and persistence.
package seq2seq

import (
	"fmt"

	"github.com/manningwu07/seq2seq/layers"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// Model is the explicit aggregate of every layer. The embedding table is
// shared by the encoder and the decoder.
type Model struct {
	Config params.TrainingConfig
	Vocab  params.Vocabulary

	Embedding *layers.Embedding
	Encoder   *Encoder
	Decoder   *Decoder
}

// NewModel initializes every parameter from cfg.Seed. Same config and
// vocabulary, same weights.
func NewModel(cfg params.TrainingConfig, vocab params.Vocabulary) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if vocab.Size() == 0 {
		return nil, fmt.Errorf("new model: empty vocabulary: %w", utils.ErrInvalidInput)
	}
	kind, err := layers.ParseAttentionKind(cfg.Attention)
	if err != nil {
		return nil, err
	}
	rng := utils.NewRand(cfg.Seed)
	V, D, H := vocab.Size(), cfg.EmbedDim, cfg.HiddenSize

	emb := layers.NewEmbedding(rng, V, D)
	enc := &Encoder{
		Embed: emb,
		Cell:  layers.NewLSTM(rng, "encoder", D, H, cfg.ClampLimit),
	}
	dec := &Decoder{
		Embed: emb,
		Cell:  layers.NewLSTM(rng, "decoder", D+H, H, cfg.ClampLimit),
		Attn:  layers.NewAttention(kind),
		Out:   layers.NewDense(rng, "output", 2*H, V),
	}
	return &Model{Config: cfg, Vocab: vocab, Embedding: emb, Encoder: enc, Decoder: dec}, nil
}

// Parameters lists every learnable tensor in a fixed order. Save, Load and
// gradient reduction across workers rely on the order.
func (m *Model) Parameters() []*optimizations.Param {
	var ps []*optimizations.Param
	for _, l := range []layers.Layer{m.Embedding, m.Encoder.Cell, m.Decoder.Cell, m.Decoder.Attn, m.Decoder.Out} {
		ps = append(ps, l.Parameters()...)
	}
	return ps
}

// CloneForGrads creates a shallow clone where all weights are shared
// (read-only) but every gradient buffer is private. Safe for concurrent
// per-sequence backward passes.
func (m *Model) CloneForGrads() *Model {
	emb := m.Embedding.ShareForGrads()
	return &Model{
		Config:    m.Config,
		Vocab:     m.Vocab,
		Embedding: emb,
		Encoder:   &Encoder{Embed: emb, Cell: m.Encoder.Cell.ShareForGrads()},
		Decoder: &Decoder{
			Embed: emb,
			Cell:  m.Decoder.Cell.ShareForGrads(),
			Attn:  m.Decoder.Attn,
			Out:   m.Decoder.Out.ShareForGrads(),
		},
	}
}

func (m *Model) padID() int { return m.Vocab.TokenToID[params.PadToken] }
func (m *Model) sosID() int { return m.Vocab.TokenToID[params.SOSToken] }
func (m *Model) eosID() int { return m.Vocab.TokenToID[params.EOSToken] }
