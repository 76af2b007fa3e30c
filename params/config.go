package params

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadConfig reads a JSON object of TrainingConfig fields on top of base.
// Fields missing from the file keep base's values.
func LoadConfig(path string, base TrainingConfig) (TrainingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c TrainingConfig) Validate() error {
	switch {
	case c.EmbedDim <= 0:
		return fmt.Errorf("config: EmbedDim must be > 0 (got %d)", c.EmbedDim)
	case c.HiddenSize <= 0:
		return fmt.Errorf("config: HiddenSize must be > 0 (got %d)", c.HiddenSize)
	case c.MaxLen < 2:
		return fmt.Errorf("config: MaxLen must be >= 2 to hold SOS and EOS (got %d)", c.MaxLen)
	case c.LearningRate < 0:
		return fmt.Errorf("config: LearningRate must be >= 0")
	case c.BatchSize < 1:
		return fmt.Errorf("config: BatchSize must be >= 1 (got %d)", c.BatchSize)
	case c.ValFrac < 0 || c.ValFrac >= 1:
		return fmt.Errorf("config: ValFrac must be in [0,1) (got %g)", c.ValFrac)
	}
	switch c.Attention {
	case "dot", "additive":
	default:
		return fmt.Errorf("config: unknown Attention %q (want dot|additive)", c.Attention)
	}
	switch c.Optimizer {
	case "sgd", "adam":
	default:
		return fmt.Errorf("config: unknown Optimizer %q (want sgd|adam)", c.Optimizer)
	}
	switch c.Loss {
	case "xent", "mse":
	default:
		return fmt.Errorf("config: unknown Loss %q (want xent|mse)", c.Loss)
	}
	return nil
}
