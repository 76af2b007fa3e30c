package IO

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/manningwu07/seq2seq/params"
)

// ExportSequencesBinary encodes every pair and writes a binary data file plus an index:
//
//   - .bin = concatenated int32 token ids (question sequence, then answer sequence)
//   - .idx = int64 (offset, length) per sequence
//
// Files are named <outPrefix>-000.bin / .idx.
func ExportSequencesBinary(v params.Vocabulary, pairs []Pair, maxLen int, outPrefix string) error {
	if v.TokenToID == nil || len(v.IDToToken) == 0 {
		return fmt.Errorf("vocab is not initialized; build or load vocab before exporting")
	}
	dataF, err := os.Create(fmt.Sprintf("%s-000.bin", outPrefix))
	if err != nil {
		return err
	}
	defer dataF.Close()
	idxF, err := os.Create(fmt.Sprintf("%s-000.idx", outPrefix))
	if err != nil {
		return err
	}
	defer idxF.Close()
	wData := bufio.NewWriter(dataF)
	wIdx := bufio.NewWriter(idxF)

	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	var cur int64
	writeSeq := func(ids []int) error {
		binary.LittleEndian.PutUint64(buf8, uint64(cur))
		if _, err := wIdx.Write(buf8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf8, uint64(len(ids)))
		if _, err := wIdx.Write(buf8); err != nil {
			return err
		}
		for _, id := range ids {
			binary.LittleEndian.PutUint32(buf4, uint32(id))
			if _, err := wData.Write(buf4); err != nil {
				return err
			}
		}
		cur += int64(4 * len(ids))
		return nil
	}
	for i, p := range pairs {
		q, err := Encode(v, p.Question, maxLen)
		if err != nil {
			return fmt.Errorf("pair %d question: %w", i, err)
		}
		a, err := Encode(v, p.Answer, maxLen)
		if err != nil {
			return fmt.Errorf("pair %d answer: %w", i, err)
		}
		if err := writeSeq(q); err != nil {
			return err
		}
		if err := writeSeq(a); err != nil {
			return err
		}
	}
	if err := wData.Flush(); err != nil {
		return err
	}
	return wIdx.Flush()
}

// ReadSequencesBinary loads the sequences written by ExportSequencesBinary,
// in file order (question, answer, question, ...).
func ReadSequencesBinary(prefix string) ([][]int, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s-000.bin", prefix))
	if err != nil {
		return nil, err
	}
	idxF, err := os.Open(fmt.Sprintf("%s-000.idx", prefix))
	if err != nil {
		return nil, err
	}
	defer idxF.Close()
	r := bufio.NewReader(idxF)
	buf8 := make([]byte, 8)
	var out [][]int
	for {
		if _, err := io.ReadFull(r, buf8); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("index: %w", err)
		}
		off := int64(binary.LittleEndian.Uint64(buf8))
		if _, err := io.ReadFull(r, buf8); err != nil {
			return nil, fmt.Errorf("index: truncated record: %w", err)
		}
		n := int64(binary.LittleEndian.Uint64(buf8))
		if off < 0 || n < 0 || off > int64(len(data)) || n > (int64(len(data))-off)/4 {
			return nil, fmt.Errorf("index: record (%d,%d) outside data file of %d bytes", off, n, len(data))
		}
		ids := make([]int, n)
		for i := range ids {
			ids[i] = int(int32(binary.LittleEndian.Uint32(data[off+4*int64(i):])))
		}
		out = append(out, ids)
	}
	return out, nil
}
