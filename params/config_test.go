package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*TrainingConfig){
		"zero hidden":   func(c *TrainingConfig) { c.HiddenSize = 0 },
		"short maxlen":  func(c *TrainingConfig) { c.MaxLen = 1 },
		"batch":         func(c *TrainingConfig) { c.BatchSize = 0 },
		"valfrac":       func(c *TrainingConfig) { c.ValFrac = 1 },
		"attention":     func(c *TrainingConfig) { c.Attention = "multihead" },
		"optimizer":     func(c *TrainingConfig) { c.Optimizer = "lbfgs" },
		"loss":          func(c *TrainingConfig) { c.Loss = "hinge" },
		"negative rate": func(c *TrainingConfig) { c.LearningRate = -1 },
	}
	for name, mutate := range cases {
		c := Default
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoadConfigOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"HiddenSize": 16, "Attention": "additive"}`), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path, Default)
	if err != nil {
		t.Fatal(err)
	}
	if c.HiddenSize != 16 || c.Attention != "additive" || c.EmbedDim != Default.EmbedDim {
		t.Fatalf("config = %+v", c)
	}

	if err := os.WriteFile(path, []byte(`{"MaxLen": 1}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path, Default); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
}
