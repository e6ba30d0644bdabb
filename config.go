package openspeech

import (
	"fmt"
	"os"

	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// Supported recurrent cell kinds.
const (
	RNNTypeLSTM    = "lstm"
	RNNTypeVanilla = "vanilla"
)

// A Config holds the resolved configuration for an
// experiment.
// It is read-only after LoadConfig/Validate; models keep
// a shared reference to it for their lifetime.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
}

// ModelConfig holds architecture hyperparameters.
type ModelConfig struct {
	// Name selects a registered model variant.
	Name string `yaml:"name"`

	// TeacherForcingRatio is the fraction of sequences in
	// a training batch that are fed ground-truth tokens
	// during decoding.
	// It must be in [0, 1].
	TeacherForcingRatio float64 `yaml:"teacher_forcing_ratio"`

	// MaxLength bounds the number of decode steps.
	MaxLength int `yaml:"max_length"`

	// InputDim is the feature dimension of encoder
	// inputs.
	// Models without an encoder ignore it.
	InputDim int `yaml:"input_dim"`

	HiddenStateDim int     `yaml:"hidden_state_dim"`
	NumLayers      int     `yaml:"num_layers"`
	DropoutP       float64 `yaml:"dropout_p"`
	RNNType        string  `yaml:"rnn_type"`
}

// TrainingConfig holds hyperparameters consumed by the
// experiment driver.
type TrainingConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
}

// LoadConfig reads and validates a YAML configuration
// file.
// Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	if err := c.Validate(); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	return &c, nil
}

// Validate checks the configuration for missing or
// out-of-range fields.
// It is called once before model construction; models
// may assume a validated configuration afterwards.
func (c *Config) Validate() error {
	m := &c.Model
	if m.TeacherForcingRatio < 0 || m.TeacherForcingRatio > 1 {
		return fmt.Errorf("teacher_forcing_ratio must be in [0, 1]: %v",
			m.TeacherForcingRatio)
	}
	if m.MaxLength <= 0 {
		return fmt.Errorf("max_length must be positive: %d", m.MaxLength)
	}
	if m.HiddenStateDim <= 0 {
		return fmt.Errorf("hidden_state_dim must be positive: %d", m.HiddenStateDim)
	}
	if m.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be positive: %d", m.NumLayers)
	}
	if m.DropoutP < 0 || m.DropoutP >= 1 {
		return fmt.Errorf("dropout_p must be in [0, 1): %v", m.DropoutP)
	}
	if m.InputDim < 0 {
		return fmt.Errorf("input_dim must not be negative: %d", m.InputDim)
	}
	switch m.RNNType {
	case RNNTypeLSTM, RNNTypeVanilla:
	default:
		return fmt.Errorf("unknown rnn_type: %q", m.RNNType)
	}
	if c.Training.LearningRate < 0 {
		return fmt.Errorf("learning_rate must not be negative: %v",
			c.Training.LearningRate)
	}
	if c.Training.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative: %d",
			c.Training.BatchSize)
	}
	return nil
}
