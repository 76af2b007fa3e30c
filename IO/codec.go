package IO

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// Encode turns text into exactly maxLen ids:
// SOS, up to maxLen-2 token ids, EOS, then PAD.
func Encode(v params.Vocabulary, text string, maxLen int) ([]int, error) {
	if maxLen < 2 {
		return nil, fmt.Errorf("encode: maxLen %d cannot hold SOS and EOS: %w", maxLen, utils.ErrInvalidInput)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("encode: text is not valid UTF-8: %w", utils.ErrInvalidInput)
	}
	toks, err := Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(toks) > maxLen-2 {
		toks = toks[:maxLen-2]
	}
	seq := make([]int, 0, maxLen)
	seq = append(seq, VocabLookup(v, params.SOSToken))
	for _, t := range toks {
		seq = append(seq, VocabLookup(v, t))
	}
	seq = append(seq, VocabLookup(v, params.EOSToken))
	pad := VocabLookup(v, params.PadToken)
	for len(seq) < maxLen {
		seq = append(seq, pad)
	}
	return seq, nil
}

// Decode maps ids back to tokens, dropping PAD/SOS/EOS and unknown ids.
func Decode(v params.Vocabulary, seq []int) string {
	skip := map[int]bool{
		v.TokenToID[params.PadToken]: true,
		v.TokenToID[params.SOSToken]: true,
		v.TokenToID[params.EOSToken]: true,
	}
	out := make([]string, 0, len(seq))
	for _, id := range seq {
		if skip[id] || id < 0 || id >= len(v.IDToToken) {
			continue
		}
		out = append(out, v.IDToToken[id])
	}
	return strings.Join(out, " ")
}
