package seq2seq

import (
	"fmt"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// GenerateIDs decodes greedily from SOS until EOS or maxLen tokens.
// Ties in the logits go to the lowest id. EOS is not included.
func (m *Model) GenerateIDs(src []int, maxLen int) ([]int, error) {
	if maxLen < 1 {
		return nil, fmt.Errorf("generate: maxLen %d: %w", maxLen, utils.ErrInvalidInput)
	}
	enc, err := m.Encoder.Forward(src, m.padID())
	if err != nil {
		return nil, err
	}
	eos := m.eosID()
	y := m.sosID()
	state := enc.Final
	out := make([]int, 0, maxLen)
	for step := 0; step < maxLen; step++ {
		logits, next, _, err := m.Decoder.Step(y, state, enc)
		if err != nil {
			return nil, fmt.Errorf("generate step %d: %w", step, err)
		}
		if !utils.AllFinite(logits) {
			return nil, fmt.Errorf("generate step %d: non-finite logits: %w", step, utils.ErrNumericalInstability)
		}
		y = utils.ArgMax(logits)
		if y == eos {
			break
		}
		out = append(out, y)
		state = next
	}
	return out, nil
}

// Generate answers text with at most maxLen tokens.
func Generate(m *Model, text string, maxLen int) (string, error) {
	src, err := IO.Encode(m.Vocab, text, m.Config.MaxLen)
	if err != nil {
		return "", err
	}
	ids, err := m.GenerateIDs(src, maxLen)
	if err != nil {
		return "", err
	}
	return IO.Decode(m.Vocab, ids), nil
}

// Chatbot is the inference boundary: it always answers with a string.
type Chatbot struct {
	Model  *Model
	MaxLen int
}

func NewChatbot(m *Model) *Chatbot {
	return &Chatbot{Model: m, MaxLen: m.Config.MaxLen}
}

// Reply returns the generated answer, or params.Fallback when generation
// fails or produces nothing printable.
func (c *Chatbot) Reply(text string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			utils.Warnf("reply to %q: recovered: %v", text, r)
			reply = params.Fallback
		}
	}()
	out, err := Generate(c.Model, text, c.MaxLen)
	if err != nil {
		utils.Warnf("reply to %q: %v", text, err)
		return params.Fallback
	}
	if out == "" {
		return params.Fallback
	}
	return out
}
