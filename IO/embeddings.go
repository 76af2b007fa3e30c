package IO

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// VectorSource is the pretrained-embedding collaborator.
type VectorSource interface {
	Fetch(word string) ([]float64, bool)
	Dim() int
}

// VectorTable is an in-memory VectorSource.
type VectorTable struct {
	D       int
	Vectors map[string][]float64
}

func (t *VectorTable) Fetch(word string) ([]float64, bool) {
	v, ok := t.Vectors[word]
	return v, ok
}

func (t *VectorTable) Dim() int { return t.D }

// LoadPretrainedVectors streams a GloVe-style text file ("word v1 ... vD"
// per line). Only words present in vocab are kept. Lines with the wrong
// number of values fail with ErrShapeMismatch.
func LoadPretrainedVectors(path string, dim int, vocab params.Vocabulary) (*VectorTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readVectors(f, dim, vocab)
}

func readVectors(rd io.Reader, dim int, vocab params.Vocabulary) (*VectorTable, error) {
	t := &VectorTable{D: dim, Vectors: map[string][]float64{}}
	r := bufio.NewReaderSize(rd, 1<<20) // 1MB buffer
	lineNum := 0
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			lineNum++
			fields := strings.Fields(line)
			if len(fields) > 0 {
				word := fields[0]
				if _, ok := vocab.TokenToID[word]; ok {
					if len(fields)-1 != dim {
						return nil, fmt.Errorf("vectors line %d: %d values, want %d: %w", lineNum, len(fields)-1, dim, utils.ErrShapeMismatch)
					}
					vec := make([]float64, dim)
					for i, s := range fields[1:] {
						x, perr := strconv.ParseFloat(s, 64)
						if perr != nil {
							return nil, fmt.Errorf("vectors line %d: %w", lineNum, perr)
						}
						vec[i] = x
					}
					t.Vectors[word] = vec
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
