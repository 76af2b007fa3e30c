package IO

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pair is one training record.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LoadCorpus reads a JSON array of {"question": ..., "answer": ...}.
func LoadCorpus(path string) ([]Pair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pairs []Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("corpus %s: no question/answer pairs", path)
	}
	return pairs, nil
}
