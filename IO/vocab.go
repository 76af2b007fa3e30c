package IO

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sugarme/tokenizer/normalizer"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// asciiPunct is the set stripped before whitespace splitting.
const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Tokenize lowercases (after NFKC), strips ASCII punctuation and splits on whitespace.
// Text the normalizer cannot handle is reported as ErrInvalidInput.
func Tokenize(text string) (toks []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			toks, err = nil, fmt.Errorf("tokenize %q: normalizer: %v: %w", text, r, utils.ErrInvalidInput)
		}
	}()
	norm := normalizer.NewNormalizedFrom(text).NFKC().Lowercase().GetNormalized()
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunct, r) {
			return -1
		}
		return r
	}, norm)
	return strings.Fields(clean), nil
}

// NewVocabulary builds a vocab from an ordered token list; ids are list positions.
func NewVocabulary(tokens []string) params.Vocabulary {
	idToToken := append([]string(nil), tokens...)
	tok2id := make(map[string]int, len(idToToken))
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return params.Vocabulary{TokenToID: tok2id, IDToToken: idToToken}
}

// BuildVocab assigns ids to every distinct token of every question and
// answer, first-seen order, after the four specials.
func BuildVocab(pairs []Pair) (params.Vocabulary, error) {
	idToToken := append([]string{}, params.Specials...)
	seen := make(map[string]bool, len(idToToken))
	for _, s := range idToToken {
		seen[s] = true
	}
	add := func(text string) error {
		toks, err := Tokenize(text)
		if err != nil {
			return err
		}
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				idToToken = append(idToToken, t)
			}
		}
		return nil
	}
	for i, p := range pairs {
		if err := add(p.Question); err != nil {
			return params.Vocabulary{}, fmt.Errorf("pair %d question: %w", i, err)
		}
		if err := add(p.Answer); err != nil {
			return params.Vocabulary{}, fmt.Errorf("pair %d answer: %w", i, err)
		}
	}
	return NewVocabulary(idToToken), nil
}

// VocabLookup maps tok to its id, falling back to <oov>, or to <pad> for
// vocabularies built without an <oov> entry.
func VocabLookup(v params.Vocabulary, tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	if id, ok := v.TokenToID[params.OOVToken]; ok {
		return id
	}
	return v.TokenToID[params.PadToken]
}

func ExportVocabJSON(v params.Vocabulary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data := map[string]any{
		"TokenToID": v.TokenToID,
		"IDToToken": v.IDToToken,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ImportVocabJSON reads a file written by ExportVocabJSON. IDToToken is
// authoritative; TokenToID is rebuilt from it and checked.
func ImportVocabJSON(path string) (params.Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return params.Vocabulary{}, err
	}
	var data struct {
		TokenToID map[string]int
		IDToToken []string
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return params.Vocabulary{}, fmt.Errorf("vocab %s: %w", path, err)
	}
	v := NewVocabulary(data.IDToToken)
	for tok, id := range data.TokenToID {
		if v.TokenToID[tok] != id {
			return params.Vocabulary{}, fmt.Errorf("vocab %s: token %q has id %d, position says %d", path, tok, id, v.TokenToID[tok])
		}
	}
	return v, nil
}
